package docket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-ns")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func seedItems(t *testing.T, client *Client, items ...*ReviewItem) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, client.SaveItem(context.Background(), item))
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.Equal(t, "test-ns", client.namespace)
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("rejects empty namespace", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "namespace cannot be empty")
	})

	t.Run("rejects malformed url", func(t *testing.T) {
		_, err := NewClientFromURL("not a url", "test-ns")
		assert.Error(t, err)
	})
}

func TestItems(t *testing.T) {
	ctx := context.Background()

	t.Run("save and get round trip", func(t *testing.T) {
		client, _ := setupTestClient(t)
		item := &ReviewItem{
			ID:      7,
			Title:   "Type hints in anger",
			Speaker: "Ada",
			Status:  StatusUnreviewed,
			Tally:   &Tally{Ayes: 2, Nays: 1},
		}
		require.NoError(t, client.SaveItem(ctx, item))

		got, err := client.GetItem(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, item.Title, got.Title)
		assert.Equal(t, StatusUnreviewed, got.Status)
		assert.Equal(t, &Tally{Ayes: 2, Nays: 1}, got.Tally)
		assert.NotZero(t, got.UpdatedAtMs)
	})

	t.Run("missing item is not found", func(t *testing.T) {
		client, _ := setupTestClient(t)
		_, err := client.GetItem(ctx, 99)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects invalid item", func(t *testing.T) {
		client, _ := setupTestClient(t)
		err := client.SaveItem(ctx, &ReviewItem{ID: 1, Status: StatusUnreviewed})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "title cannot be empty")
	})

	t.Run("filter orders by id and honours status, withdrawn and exclusions", func(t *testing.T) {
		client, _ := setupTestClient(t)
		seedItems(t, client,
			&ReviewItem{ID: 30, Title: "c", Status: StatusHold},
			&ReviewItem{ID: 10, Title: "a", Status: StatusUnreviewed},
			&ReviewItem{ID: 20, Title: "b", Status: StatusAccepted},
			&ReviewItem{ID: 25, Title: "w", Status: StatusUnreviewed, Withdrawn: true},
			&ReviewItem{ID: 40, Title: "d", Status: StatusUnreviewed},
		)

		items, err := client.FilterItems(ctx, ItemFilter{
			Statuses: []Status{StatusUnreviewed, StatusHold},
			Exclude:  []int{40},
		})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, 10, items[0].ID)
		assert.Equal(t, 30, items[1].ID)

		next, err := NextItem(ctx, client, ItemFilter{Statuses: []Status{StatusUnreviewed}, AfterID: 10})
		require.NoError(t, err)
		assert.Equal(t, 40, next.ID)

		_, err = NextItem(ctx, client, ItemFilter{AfterID: 40})
		assert.True(t, IsNotFound(err))
	})
}

func TestGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("filter orders by position and skips decided", func(t *testing.T) {
		client, _ := setupTestClient(t)
		require.NoError(t, client.SaveGroup(ctx, &Group{Code: "web", Label: "Web", Position: 2, ItemIDs: []int{1}}))
		require.NoError(t, client.SaveGroup(ctx, &Group{Code: "data", Label: "Data", Position: 1, ItemIDs: []int{2}}))
		require.NoError(t, client.SaveGroup(ctx, &Group{
			Code: "done", Label: "Done", Position: 3, ItemIDs: []int{3},
			Decided: true, Decisions: map[int]Status{3: StatusAccepted},
		}))

		all, err := client.FilterGroups(ctx, GroupFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"data", "web", "done"}, []string{all[0].Code, all[1].Code, all[2].Code})

		next, err := NextGroup(ctx, client, GroupFilter{UndecidedOnly: true, AfterPosition: 1})
		require.NoError(t, err)
		assert.Equal(t, "web", next.Code)

		got, err := client.GetGroup(ctx, "done")
		require.NoError(t, err)
		assert.NoError(t, got.CheckDecided())
		assert.Equal(t, StatusAccepted, got.Decisions[3])
	})

	t.Run("missing group is not found", func(t *testing.T) {
		client, _ := setupTestClient(t)
		_, err := client.GetGroup(ctx, "nope")
		assert.True(t, IsNotFound(err))
	})
}

func TestMoveItem(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *Client {
		client, _ := setupTestClient(t)
		seedItems(t, client,
			&ReviewItem{ID: 1, Title: "one", Status: StatusUnreviewed},
			&ReviewItem{ID: 2, Title: "two", Status: StatusUnreviewed},
		)
		require.NoError(t, client.SaveGroup(ctx, &Group{Code: "a", Position: 1}))
		require.NoError(t, client.SaveGroup(ctx, &Group{Code: "b", Position: 2}))
		return client
	}

	t.Run("assigns and reassigns exclusively", func(t *testing.T) {
		client := setup(t)
		require.NoError(t, client.MoveItem(ctx, 1, "a"))
		require.NoError(t, client.MoveItem(ctx, 2, "a"))
		require.NoError(t, client.MoveItem(ctx, 1, "b"))

		a, err := client.GetGroup(ctx, "a")
		require.NoError(t, err)
		b, err := client.GetGroup(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, []int{2}, a.ItemIDs)
		assert.Equal(t, []int{1}, b.ItemIDs)

		item, err := client.GetItem(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "b", item.GroupCode)
	})

	t.Run("empty target ungroups the item", func(t *testing.T) {
		client := setup(t)
		require.NoError(t, client.MoveItem(ctx, 1, "a"))
		require.NoError(t, client.MoveItem(ctx, 1, ""))

		a, err := client.GetGroup(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, a.ItemIDs)
	})

	t.Run("unknown group or item is not found", func(t *testing.T) {
		client := setup(t)
		assert.True(t, IsNotFound(client.MoveItem(ctx, 1, "zzz")))
		assert.True(t, IsNotFound(client.MoveItem(ctx, 42, "a")))
	})

	t.Run("concurrent moves leave the item in exactly one group", func(t *testing.T) {
		client := setup(t)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			code := "a"
			if i%2 == 1 {
				code = "b"
			}
			go func(code string) {
				defer wg.Done()
				_ = client.MoveItem(ctx, 1, code)
			}(code)
		}
		wg.Wait()

		a, err := client.GetGroup(ctx, "a")
		require.NoError(t, err)
		b, err := client.GetGroup(ctx, "b")
		require.NoError(t, err)
		assert.NotEqual(t, a.Has(1), b.Has(1), "item must be in exactly one group")
	})
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	client, _ := setupTestClient(t)

	first, err := client.CreateSession(ctx, SessionKindSequential)
	require.NoError(t, err)
	second, err := client.CreateSession(ctx, SessionKindGroup)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Number)
	assert.Equal(t, 2, second.Number)
	assert.NotEqual(t, first.ID, second.ID)

	first.RecordDecided(4)
	first.EndedAtMs = time.Now().UnixMilli()
	require.NoError(t, client.SaveSession(ctx, first))

	got, err := client.GetSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got.Decided)
	assert.Equal(t, SessionKindSequential, got.Kind)
	assert.NotZero(t, got.EndedAtMs)

	all, err := client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = client.GetSession(ctx, 9)
	assert.True(t, IsNotFound(err))
}

func TestTranscript(t *testing.T) {
	ctx := context.Background()
	client, _ := setupTestClient(t)

	ref := ItemTranscriptRef(3)
	require.NoError(t, client.AppendTranscript(ctx, ref,
		TranscriptEntry{AtMs: 1, Nick: "alice", Line: "me"},
		TranscriptEntry{AtMs: 2, Nick: "bob", Line: "yes"},
	))
	require.NoError(t, client.AppendTranscript(ctx, ref))

	entries, err := client.Transcript(ctx, ref)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Nick)
	assert.Equal(t, "yes", entries[1].Line)

	empty, err := client.Transcript(ctx, SessionTranscriptRef(1))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDecisionEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := setupTestClient(t)

	sub, err := client.SubscribeDecisionEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	event := &DecisionEvent{ItemID: 5, Decision: StatusRejected, Alternative: AlternativePoster}
	require.NoError(t, client.PublishDecision(ctx, event))
	assert.NotEmpty(t, event.ID)

	select {
	case got := <-sub.Events():
		require.NotNil(t, got)
		assert.Equal(t, 5, got.ItemID)
		assert.Equal(t, StatusRejected, got.Decision)
		assert.Equal(t, AlternativePoster, got.Alternative)
	case <-ctx.Done():
		t.Fatal("timed out waiting for decision event")
	}

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}
