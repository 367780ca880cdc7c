package docket

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned (wrapped) by every store when a record does not exist.
var ErrNotFound = errors.New("not found")

// Status is the review state of an item.
type Status string

const (
	// StatusUnreviewed marks an item that has not been in front of a session yet
	StatusUnreviewed Status = "unreviewed"

	// StatusHold marks an item that was debated and put aside for a later session
	StatusHold Status = "hold"

	// StatusAccepted marks an item the committee wants
	StatusAccepted Status = "accepted"

	// StatusRejected marks an item the committee turned down
	StatusRejected Status = "rejected"

	// StatusDamaged marks an item with lukewarm group support, kept as standby
	StatusDamaged Status = "damaged"
)

// Validate checks if the Status is a known enum value.
func (s Status) Validate() error {
	switch s {
	case StatusUnreviewed, StatusHold, StatusAccepted, StatusRejected, StatusDamaged:
		return nil
	default:
		return fmt.Errorf("unknown status: %q", s)
	}
}

// Final reports whether the status is a terminal decision.
func (s Status) Final() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusDamaged
}

// Alternative is a suggestion attached to a rejected item (e.g. resubmit as a poster).
type Alternative string

const (
	AlternativeNone      Alternative = ""
	AlternativePoster    Alternative = "poster"
	AlternativeLightning Alternative = "lightning"
	AlternativeOpenSpace Alternative = "open_space"
)

// ParseAlternative maps user input onto a known alternative.
func ParseAlternative(s string) (Alternative, error) {
	switch a := Alternative(strings.ToLower(strings.TrimSpace(s))); a {
	case AlternativePoster, AlternativeLightning, AlternativeOpenSpace:
		return a, nil
	case "open-space", "openspace":
		return AlternativeOpenSpace, nil
	default:
		return AlternativeNone, fmt.Errorf("unknown alternative: %q (valid: poster, lightning, open_space)", s)
	}
}

// Describe renders the alternative as a short human phrase.
func (a Alternative) Describe() string {
	switch a {
	case AlternativePoster:
		return "poster"
	case AlternativeLightning:
		return "lightning talk"
	case AlternativeOpenSpace:
		return "open space"
	default:
		return ""
	}
}

// Tally is the vote snapshot persisted on an item after a report.
// Sequential sessions fill Ayes/Nays/Abstentions, group sessions fill Supporters/Voters.
type Tally struct {
	Ayes        int `json:"ayes,omitempty"`
	Nays        int `json:"nays,omitempty"`
	Abstentions int `json:"abstentions,omitempty"`
	Supporters  int `json:"supporters,omitempty"`
	Voters      int `json:"voters,omitempty"`
}

// ReviewItem is a single proposal under review.
type ReviewItem struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Speaker     string      `json:"speaker"`
	Status      Status      `json:"status"`
	Alternative Alternative `json:"alternative,omitempty"`
	Withdrawn   bool        `json:"withdrawn,omitempty"` // skipped by queue selection
	GroupCode   string      `json:"group_code,omitempty"`
	Tally       *Tally      `json:"tally,omitempty"`
	UpdatedAtMs int64       `json:"updated_at_ms,omitempty"`
}

// Validate checks if the ReviewItem has valid field values.
func (i *ReviewItem) Validate() error {
	if i.ID <= 0 {
		return fmt.Errorf("invalid item ID: must be > 0, got %d", i.ID)
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("item %d: title cannot be empty", i.ID)
	}
	if err := i.Status.Validate(); err != nil {
		return fmt.Errorf("item %d: invalid status: %w", i.ID, err)
	}
	return nil
}

// TranscriptRef returns the transcript reference for this item.
func (i *ReviewItem) TranscriptRef() string {
	return ItemTranscriptRef(i.ID)
}

// Group is a batch of items reviewed and voted on together.
type Group struct {
	Code      string         `json:"code"`
	Label     string         `json:"label"`
	Position  int            `json:"position"`
	ItemIDs   []int          `json:"item_ids"`
	Decided   bool           `json:"decided"`
	Decisions map[int]Status `json:"decisions,omitempty"`
}

// Validate checks if the Group has valid field values.
func (g *Group) Validate() error {
	if strings.TrimSpace(g.Code) == "" {
		return fmt.Errorf("group code cannot be empty")
	}
	seen := make(map[int]bool, len(g.ItemIDs))
	for _, id := range g.ItemIDs {
		if seen[id] {
			return fmt.Errorf("group %s: item %d listed twice", g.Code, id)
		}
		seen[id] = true
	}
	for id, status := range g.Decisions {
		if !seen[id] {
			return fmt.Errorf("group %s: decision for non-member item %d", g.Code, id)
		}
		if !status.Final() {
			return fmt.Errorf("group %s: item %d has non-final decision %q", g.Code, id, status)
		}
	}
	return nil
}

// Has reports whether id is a member of the group.
func (g *Group) Has(id int) bool {
	for _, member := range g.ItemIDs {
		if member == id {
			return true
		}
	}
	return false
}

// Decide records a decision for a member item and refreshes the decided flag.
func (g *Group) Decide(id int, status Status) error {
	if !g.Has(id) {
		return fmt.Errorf("item %d is not in group %s", id, g.Code)
	}
	if !status.Final() {
		return fmt.Errorf("cannot decide item %d as %q", id, status)
	}
	if g.Decisions == nil {
		g.Decisions = make(map[int]Status)
	}
	g.Decisions[id] = status
	g.Decided = len(g.Undecided()) == 0
	return nil
}

// Undecided returns the member items without a decision, in group order.
func (g *Group) Undecided() []int {
	var out []int
	for _, id := range g.ItemIDs {
		if _, ok := g.Decisions[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// CheckDecided verifies the decided flag agrees with the decision map.
func (g *Group) CheckDecided() error {
	complete := len(g.ItemIDs) > 0 && len(g.Undecided()) == 0
	if g.Decided != complete {
		return fmt.Errorf("group %s: decided=%v but %d of %d items undecided",
			g.Code, g.Decided, len(g.Undecided()), len(g.ItemIDs))
	}
	return nil
}

// SortedIDs returns a sorted copy of the member ids.
func (g *Group) SortedIDs() []int {
	ids := append([]int(nil), g.ItemIDs...)
	sort.Ints(ids)
	return ids
}

// SessionKind selects the review format a session runs in.
type SessionKind string

const (
	SessionKindSequential SessionKind = "sequential"
	SessionKindGroup      SessionKind = "group"
)

// Session is one sitting of the committee.
type Session struct {
	ID          string      `json:"id"`     // UUID
	Number      int         `json:"number"` // store-assigned, monotonic
	Kind        SessionKind `json:"kind"`
	StartedAtMs int64       `json:"started_at_ms"`
	EndedAtMs   int64       `json:"ended_at_ms,omitempty"`
	Decided     []int       `json:"decided"`
}

// RecordDecided adds an item to the decided list. Returns false if it was already there.
func (s *Session) RecordDecided(id int) bool {
	for _, existing := range s.Decided {
		if existing == id {
			return false
		}
	}
	s.Decided = append(s.Decided, id)
	return true
}

// HasDecided reports whether the session already decided the item.
func (s *Session) HasDecided(id int) bool {
	for _, existing := range s.Decided {
		if existing == id {
			return true
		}
	}
	return false
}

// TranscriptRef returns the transcript reference for this session.
func (s *Session) TranscriptRef() string {
	return SessionTranscriptRef(s.Number)
}

// TranscriptEntry is one chat line attached to an item or session.
type TranscriptEntry struct {
	AtMs int64  `json:"at_ms"`
	Nick string `json:"nick"`
	Line string `json:"line"`
}

// DecisionEvent is published whenever a decision is applied to an item.
type DecisionEvent struct {
	ID            string      `json:"id"` // UUID
	ItemID        int         `json:"item_id"`
	Decision      Status      `json:"decision"`
	Alternative   Alternative `json:"alternative,omitempty"`
	SessionNumber int         `json:"session_number,omitempty"`
	AtMs          int64       `json:"at_ms"`
}

// ItemFilter selects items ordered by id.
type ItemFilter struct {
	Statuses         []Status // empty = any status
	AfterID          int      // exclusive lower bound
	IncludeWithdrawn bool
	Exclude          []int
	Limit            int // 0 = unlimited
}

// Match reports whether an item passes the filter (ordering and limit aside).
func (f ItemFilter) Match(i *ReviewItem) bool {
	if i.ID <= f.AfterID {
		return false
	}
	if i.Withdrawn && !f.IncludeWithdrawn {
		return false
	}
	for _, ex := range f.Exclude {
		if ex == i.ID {
			return false
		}
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if i.Status == s {
			return true
		}
	}
	return false
}

// GroupFilter selects groups ordered by position.
type GroupFilter struct {
	UndecidedOnly bool
	AfterPosition int // exclusive lower bound, 0 = from the start
}

// Match reports whether a group passes the filter.
func (f GroupFilter) Match(g *Group) bool {
	if g.Position <= f.AfterPosition {
		return false
	}
	return !f.UndecidedOnly || !g.Decided
}

// ItemTranscriptRef returns the store-agnostic transcript reference for an item.
func ItemTranscriptRef(id int) string {
	return fmt.Sprintf("item:%d", id)
}

// SessionTranscriptRef returns the store-agnostic transcript reference for a session.
func SessionTranscriptRef(number int) string {
	return fmt.Sprintf("session:%d", number)
}
