package quorum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNonVoterRoster(t *testing.T) {
	tr := New("docketbot")
	assert.Equal(t, "none", tr.Describe())

	added := tr.AddNonVoters("bob", "DocketBot", "alice", "Bob")
	assert.Equal(t, []string{"bob", "alice"}, added)
	assert.Equal(t, "alice, bob", tr.Describe())
	assert.True(t, tr.IsNonVoter("BOB"))
	assert.False(t, tr.IsNonVoter("docketbot"))

	removed := tr.RemoveNonVoters("bob", "docketbot")
	assert.Equal(t, []string{"bob"}, removed)
	assert.Equal(t, []string{"alice"}, tr.NonVoters())

	tr.ClearNonVoters()
	assert.Empty(t, tr.NonVoters())
}

func TestLaggards(t *testing.T) {
	tr := New("docketbot")
	tr.AddNonVoters("lurker")

	roster := []string{"docketbot", "alice", "bob", "Carol", "lurker", "alice"}
	responded := map[string]bool{"bob": true, "carol": true}

	assert.Equal(t, []string{"alice"}, tr.Laggards(roster, responded))
	assert.Empty(t, tr.Laggards(roster, map[string]bool{"alice": true, "bob": true, "carol": true}))

	tr.SetSelf("alice")
	assert.Contains(t, tr.Laggards(roster, nil), "docketbot")
	assert.NotContains(t, tr.Laggards(roster, nil), "alice")

	tr.Reset()
	assert.Contains(t, tr.Laggards(roster, nil), "lurker")
}
