package transcript

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/docket/pkg/docket"
)

func setupStore(t *testing.T) *docket.Client {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := docket.NewClient(&redis.Options{Addr: mr.Addr()}, "transcript-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestBufferFlush(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	b := NewBuffer(store, time.Hour)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return at }

	b.Record("session:1", "alice", "hello")
	b.Record("item:3", "alice", "me")
	b.Record("session:1", "bob", "hi")
	assert.Equal(t, 3, b.Pending())

	require.NoError(t, b.Flush(ctx))
	assert.Zero(t, b.Pending())

	entries, err := store.Transcript(ctx, "session:1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Nick)
	assert.Equal(t, "hi", entries[1].Line)
	assert.Equal(t, at.UnixMilli(), entries[0].AtMs)

	entries, err = store.Transcript(ctx, "item:3")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type flakyAppender struct {
	mu   sync.Mutex
	fail bool
	got  map[string][]docket.TranscriptEntry
}

func (f *flakyAppender) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *flakyAppender) AppendTranscript(_ context.Context, ref string, entries ...docket.TranscriptEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store down")
	}
	if f.got == nil {
		f.got = make(map[string][]docket.TranscriptEntry)
	}
	f.got[ref] = append(f.got[ref], entries...)
	return nil
}

func TestBufferKeepsFailedBatches(t *testing.T) {
	ctx := context.Background()
	store := &flakyAppender{fail: true}
	b := NewBuffer(store, time.Hour)

	b.Record("session:1", "alice", "first")
	assert.EqualError(t, b.Flush(ctx), "store down")
	assert.Equal(t, 1, b.Pending())

	b.Record("session:1", "alice", "second")
	store.fail = false
	require.NoError(t, b.Flush(ctx))

	lines := store.got["session:1"]
	require.Len(t, lines, 2)
	assert.Equal(t, "first", lines[0].Line)
	assert.Equal(t, "second", lines[1].Line)
}

func TestBufferRunFlushesOnShutdown(t *testing.T) {
	store := &flakyAppender{}
	b := NewBuffer(store, time.Hour)
	b.Record("session:2", "bob", "bye")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Len(t, store.got["session:2"], 1)
}

func TestBufferReportsOutageOnce(t *testing.T) {
	store := &flakyAppender{fail: true}
	b := NewBuffer(store, 10*time.Millisecond)
	b.Record("session:3", "carol", "hello")

	reports := make(chan error, 16)
	b.OnFailure(func(err error) { reports <- err })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	select {
	case err := <-reports:
		assert.EqualError(t, err, "store down")
	case <-time.After(time.Second):
		t.Fatal("failure was never reported")
	}

	// several more failing ticks stay quiet
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, reports)

	store.setFail(false)
	assert.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Empty(t, reports)
}
