package ballot

import (
	"fmt"

	"github.com/dyluth/docket/pkg/docket"
)

// Tally counts a sequential round.
type Tally struct {
	Ayes        int
	Nays        int
	Abstentions int
}

// TallySequential counts votes keyed by participant.
func TallySequential(votes map[string]Vote) Tally {
	var t Tally
	for _, v := range votes {
		switch v {
		case Aye:
			t.Ayes++
		case Nay:
			t.Nays++
		case Abstain:
			t.Abstentions++
		}
	}
	return t
}

// Report renders the tally announcement for an item.
func (t Tally) Report(itemID int) string {
	report := fmt.Sprintf("=== Votes on #%d: %d in favor, %d opposed", itemID, t.Ayes, t.Nays)
	if t.Abstentions > 0 {
		plural := "s"
		if t.Abstentions == 1 {
			plural = ""
		}
		report += fmt.Sprintf(", with %d abstention%s", t.Abstentions, plural)
	}
	return report + " ==="
}

// Snapshot converts the tally to its persisted form.
func (t Tally) Snapshot() *docket.Tally {
	return &docket.Tally{Ayes: t.Ayes, Nays: t.Nays, Abstentions: t.Abstentions}
}

// Thresholds are the percentage cut-offs used to classify group results.
type Thresholds struct {
	Accept  float64
	Damaged float64
}

// DefaultThresholds accept at 75% support and keep items at 50% as damaged.
var DefaultThresholds = Thresholds{Accept: 75, Damaged: 50}

// Classify maps a support percentage onto a decision.
func (th Thresholds) Classify(percent float64) docket.Status {
	switch {
	case percent >= th.Accept:
		return docket.StatusAccepted
	case percent >= th.Damaged:
		return docket.StatusDamaged
	default:
		return docket.StatusRejected
	}
}

// ItemScore is one item's result in a group round.
type ItemScore struct {
	ItemID     int
	Supporters int
	Voters     int
	Percent    float64
	Status     docket.Status
}

// Snapshot converts the score to its persisted form.
func (s ItemScore) Snapshot() *docket.Tally {
	return &docket.Tally{Supporters: s.Supporters, Voters: s.Voters}
}

// ScoreGroup computes supporters / distinct voters for every member, in member order.
// Every participant in votes is a voter, including those whose vote is empty.
func ScoreGroup(members Set, votes map[string]Set, th Thresholds) []ItemScore {
	voters := len(votes)
	support := make(map[int]int, len(members))
	for _, vote := range votes {
		for _, id := range vote {
			support[id]++
		}
	}

	scores := make([]ItemScore, 0, len(members))
	for _, id := range members {
		score := ItemScore{ItemID: id, Supporters: support[id], Voters: voters}
		if voters > 0 {
			score.Percent = float64(score.Supporters) / float64(voters) * 100
		}
		score.Status = th.Classify(score.Percent)
		scores = append(scores, score)
	}
	return scores
}

// AcceptedShare returns the percentage of scored items classified as accepted.
func AcceptedShare(scores []ItemScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	accepted := 0
	for _, s := range scores {
		if s.Status == docket.StatusAccepted {
			accepted++
		}
	}
	return float64(accepted) / float64(len(scores)) * 100
}
