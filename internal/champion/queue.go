// Package champion holds the FIFO of volunteers waiting to argue for the current item.
package champion

import "strings"

// Queue is an ordered, duplicate-free list of nicks. Nicks compare case-insensitively.
type Queue struct {
	nicks []string
}

// Add appends nick if absent. Returns its zero-based position and whether it was added.
func (q *Queue) Add(nick string) (int, bool) {
	if pos := q.Position(nick); pos >= 0 {
		return pos, false
	}
	q.nicks = append(q.nicks, nick)
	return len(q.nicks) - 1, true
}

// Head returns the current speaker.
func (q *Queue) Head() (string, bool) {
	if len(q.nicks) == 0 {
		return "", false
	}
	return q.nicks[0], true
}

// IsHead reports whether nick is the current speaker.
func (q *Queue) IsHead(nick string) bool {
	head, ok := q.Head()
	return ok && strings.EqualFold(head, nick)
}

// Advance drops the head and returns the new head, if any.
func (q *Queue) Advance() (string, bool) {
	if len(q.nicks) > 0 {
		q.nicks = q.nicks[1:]
	}
	return q.Head()
}

// Position returns nick's zero-based position, or -1.
func (q *Queue) Position(nick string) int {
	for i, n := range q.nicks {
		if strings.EqualFold(n, nick) {
			return i
		}
	}
	return -1
}

// Contains reports whether nick is queued.
func (q *Queue) Contains(nick string) bool {
	return q.Position(nick) >= 0
}

// Len returns the queue length.
func (q *Queue) Len() int {
	return len(q.nicks)
}

// List returns a copy of the queue in order.
func (q *Queue) List() []string {
	return append([]string(nil), q.nicks...)
}

// Clear empties the queue. Called for every new item.
func (q *Queue) Clear() {
	q.nicks = nil
}

// Normalize lowercases and trims a line the way the champion listener compares it:
// surrounding space and trailing periods are dropped.
func Normalize(text string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".")
}

// IsVolunteer reports whether a line volunteers the speaker ("me", "Me.").
func IsVolunteer(text string) bool {
	return Normalize(text) == "me"
}

// IsDone reports whether a champion's line ends their turn: it ends in "done",
// optionally followed by "." or "!".
func IsDone(text string) bool {
	msg := strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), ".!")
	return strings.HasSuffix(msg, "done")
}
