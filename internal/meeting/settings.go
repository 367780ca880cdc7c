package meeting

import (
	"time"

	"github.com/dyluth/docket/internal/ballot"
)

// Settings are the tunable timings and thresholds of a session.
type Settings struct {
	ChampionCall        time.Duration // sequential: wait for a champion; doubled for held items
	DebateTime          time.Duration // sequential default debate window
	HoldDebateReduction time.Duration // taken off DebateTime for held items
	DeferBoundary       time.Duration // deferred votes at or above this get a second warning
	DeferSecondCall     time.Duration // lead time of that second warning

	ReviewPerItem      time.Duration // group: silent review time per item
	ReviewMin          time.Duration
	GroupDebatePerItem time.Duration
	GroupDebateMin     time.Duration

	Thresholds        ballot.Thresholds
	AcceptanceWarning float64 // percent of accepted items in one group that triggers a warning

	AgendaSize int // items listed by the private agenda command
	RulesURL   string
	ProcessURL string
}

// DefaultSettings returns the stock session timings.
func DefaultSettings() Settings {
	return Settings{
		ChampionCall:        30 * time.Second,
		DebateTime:          3 * time.Minute,
		HoldDebateReduction: time.Minute,
		DeferBoundary:       10 * time.Second,
		DeferSecondCall:     5 * time.Second,

		ReviewPerItem:      time.Minute,
		ReviewMin:          2 * time.Minute,
		GroupDebatePerItem: 90 * time.Second,
		GroupDebateMin:     3 * time.Minute,

		Thresholds:        ballot.DefaultThresholds,
		AcceptanceWarning: 32.5,

		AgendaSize: 12,
	}
}

// scaled returns max(min, n × perItem).
func scaled(n int, perItem, min time.Duration) time.Duration {
	if d := time.Duration(n) * perItem; d > min {
		return d
	}
	return min
}
