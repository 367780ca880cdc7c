package docket

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toStringHash mimics what HGetAll hands back for a hash written with HSet.
func toStringHash(in map[string]interface{}) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func TestItemHash(t *testing.T) {
	t.Run("item without tally", func(t *testing.T) {
		hash, err := ItemToHash(&ReviewItem{ID: 3, Title: "t", Status: StatusUnreviewed})
		require.NoError(t, err)
		assert.Equal(t, "", hash["tally"])

		got, err := HashToItem(toStringHash(hash))
		require.NoError(t, err)
		assert.Nil(t, got.Tally)
		assert.False(t, got.Withdrawn)
	})

	t.Run("rejects bad id", func(t *testing.T) {
		_, err := HashToItem(map[string]string{"id": "x"})
		assert.Error(t, err)
	})

	t.Run("rejects corrupt tally", func(t *testing.T) {
		_, err := HashToItem(map[string]string{"id": "1", "tally": "{"})
		assert.Error(t, err)
	})
}

func TestGroupHash(t *testing.T) {
	in := &Group{
		Code:      "web",
		Label:     "Web frameworks",
		Position:  4,
		ItemIDs:   []int{10, 11},
		Decisions: map[int]Status{10: StatusAccepted},
	}
	hash, err := GroupToHash(in)
	require.NoError(t, err)
	assert.Equal(t, "[10,11]", hash["item_ids"])

	got, err := HashToGroup(toStringHash(hash))
	require.NoError(t, err)
	assert.Equal(t, in, got)

	empty, err := GroupToHash(&Group{Code: "x"})
	require.NoError(t, err)
	back, err := HashToGroup(toStringHash(empty))
	require.NoError(t, err)
	assert.Equal(t, []int{}, back.ItemIDs)
	assert.Nil(t, back.Decisions)
}

func TestSessionHash(t *testing.T) {
	in := &Session{ID: "abc", Number: 2, Kind: SessionKindGroup, StartedAtMs: 100, Decided: []int{1, 2}}
	hash, err := SessionToHash(in)
	require.NoError(t, err)

	got, err := HashToSession(toStringHash(hash))
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = HashToSession(map[string]string{"number": "NaN"})
	assert.Error(t, err)
}

func TestSchemaKeys(t *testing.T) {
	assert.Equal(t, "docket:ns:item:5", ItemKey("ns", 5))
	assert.Equal(t, "docket:ns:items", ItemIndexKey("ns"))
	assert.Equal(t, "docket:ns:group:web", GroupKey("ns", "web"))
	assert.Equal(t, "docket:ns:groups", GroupIndexKey("ns"))
	assert.Equal(t, "docket:ns:session:3", SessionKey("ns", 3))
	assert.Equal(t, "docket:ns:session_seq", SessionSeqKey("ns"))
	assert.Equal(t, "docket:ns:transcript:item:5", TranscriptKey("ns", ItemTranscriptRef(5)))
	assert.Equal(t, "docket:ns:decision_events", DecisionEventsChannel("ns"))
}
