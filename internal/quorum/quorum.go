// Package quorum tracks who is expected to take part in a round and who has not yet.
package quorum

import (
	"sort"
	"strings"
)

// Tracker holds the chair-managed non-voter roster. Nicks are compared case-insensitively
// and the bot's own nick is never a participant.
type Tracker struct {
	self      string
	nonvoters map[string]string // folded nick -> nick as given
}

// New creates a Tracker for a bot known as self.
func New(self string) *Tracker {
	return &Tracker{self: self, nonvoters: make(map[string]string)}
}

// SetSelf updates the bot's nick (it may change after connecting).
func (t *Tracker) SetSelf(self string) {
	t.self = self
}

// Reset empties the non-voter roster. Called at session start.
func (t *Tracker) Reset() {
	t.nonvoters = make(map[string]string)
}

// AddNonVoters adds users and returns the ones actually named (self excluded).
func (t *Tracker) AddNonVoters(users ...string) []string {
	var added []string
	for _, u := range dedupe(users) {
		if t.isSelf(u) {
			continue
		}
		t.nonvoters[fold(u)] = u
		added = append(added, u)
	}
	return added
}

// RemoveNonVoters removes users and returns the ones named (self excluded).
func (t *Tracker) RemoveNonVoters(users ...string) []string {
	var removed []string
	for _, u := range dedupe(users) {
		if t.isSelf(u) {
			continue
		}
		delete(t.nonvoters, fold(u))
		removed = append(removed, u)
	}
	return removed
}

// ClearNonVoters empties the roster.
func (t *Tracker) ClearNonVoters() {
	t.Reset()
}

// IsNonVoter reports whether nick is on the roster.
func (t *Tracker) IsNonVoter(nick string) bool {
	_, ok := t.nonvoters[fold(nick)]
	return ok
}

// NonVoters returns the roster sorted.
func (t *Tracker) NonVoters() []string {
	out := make([]string, 0, len(t.nonvoters))
	for _, nick := range t.nonvoters {
		out = append(out, nick)
	}
	sort.Strings(out)
	return out
}

// Describe renders the roster for the channel, "none" when empty.
func (t *Tracker) Describe() string {
	if len(t.nonvoters) == 0 {
		return "none"
	}
	return strings.Join(t.NonVoters(), ", ")
}

// Laggards returns the roster members who are neither in responded, nor non-voters,
// nor the bot itself. Order follows roster order.
func (t *Tracker) Laggards(roster []string, responded map[string]bool) []string {
	answered := make(map[string]bool, len(responded))
	for nick := range responded {
		answered[fold(nick)] = true
	}

	var out []string
	seen := make(map[string]bool, len(roster))
	for _, nick := range roster {
		key := fold(nick)
		if nick == "" || seen[key] || answered[key] || t.isSelf(nick) || t.IsNonVoter(nick) {
			continue
		}
		seen[key] = true
		out = append(out, nick)
	}
	return out
}

func (t *Tracker) isSelf(nick string) bool {
	return t.self != "" && strings.EqualFold(nick, t.self)
}

func fold(nick string) string {
	return strings.ToLower(nick)
}

func dedupe(users []string) []string {
	seen := make(map[string]bool, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		u = strings.TrimSpace(u)
		if u == "" || seen[fold(u)] {
			continue
		}
		seen[fold(u)] = true
		out = append(out, u)
	}
	return out
}
