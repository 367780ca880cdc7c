// Package agenda lists, summarizes and loads review items for the command line.
package agenda

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dyluth/docket/internal/timespec"
	"github.com/dyluth/docket/pkg/docket"
)

// OutputFormat specifies how to format list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// FilterCriteria narrows the item list. All filters are ANDed together.
type FilterCriteria struct {
	Statuses         []docket.Status
	GroupGlob        string // glob over group code, empty = no filter
	SinceTimestampMs int64  // on UpdatedAtMs, 0 = no filter
	UntilTimestampMs int64
	IncludeWithdrawn bool
}

// matchesFilter applies the criteria the store filter cannot express.
func (fc *FilterCriteria) matchesFilter(item *docket.ReviewItem) bool {
	if !timespec.InRange(item.UpdatedAtMs, fc.SinceTimestampMs, fc.UntilTimestampMs) {
		return false
	}
	if fc.GroupGlob != "" {
		matched, err := filepath.Match(fc.GroupGlob, item.GroupCode)
		if err != nil || !matched {
			return false
		}
	}
	return true
}

// ListItems writes the items matching filters to w.
func ListItems(ctx context.Context, store docket.Store, namespace string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	if filters == nil {
		filters = &FilterCriteria{}
	}
	all, err := store.FilterItems(ctx, docket.ItemFilter{
		Statuses:         filters.Statuses,
		IncludeWithdrawn: filters.IncludeWithdrawn,
	})
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	var items []*docket.ReviewItem
	for _, item := range all {
		if filters.matchesFilter(item) {
			items = append(items, item)
		}
	}

	switch format {
	case OutputFormatDefault:
		FormatTable(w, items, namespace, time.Now())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, items); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}

// Stats summarizes the decisions in the store.
type Stats struct {
	Total        int
	ByStatus     map[docket.Status]int
	Alternatives map[docket.Alternative]int
}

var statusOrder = []docket.Status{
	docket.StatusAccepted,
	docket.StatusDamaged,
	docket.StatusRejected,
	docket.StatusHold,
	docket.StatusUnreviewed,
}

// Reviewed counts items with a final decision.
func (s Stats) Reviewed() int {
	return s.ByStatus[docket.StatusAccepted] + s.ByStatus[docket.StatusDamaged] + s.ByStatus[docket.StatusRejected]
}

// AcceptanceRate is the accepted share of reviewed items, in percent.
func (s Stats) AcceptanceRate() float64 {
	if s.Reviewed() == 0 {
		return 0
	}
	return 100 * float64(s.ByStatus[docket.StatusAccepted]) / float64(s.Reviewed())
}

// ComputeStats tallies items by status and alternative.
func ComputeStats(items []*docket.ReviewItem) Stats {
	stats := Stats{
		ByStatus:     make(map[docket.Status]int),
		Alternatives: make(map[docket.Alternative]int),
	}
	for _, item := range items {
		stats.Total++
		stats.ByStatus[item.Status]++
		if item.Alternative != docket.AlternativeNone {
			stats.Alternatives[item.Alternative]++
		}
	}
	return stats
}

// WriteStats computes and writes stats for every item in the store.
func WriteStats(ctx context.Context, store docket.Store, w io.Writer) (Stats, error) {
	items, err := store.FilterItems(ctx, docket.ItemFilter{IncludeWithdrawn: true})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list items: %w", err)
	}
	stats := ComputeStats(items)
	FormatStats(w, stats)
	return stats, nil
}

// WriteTranscript writes the lines of ref whose timestamps fall in [sinceMs, untilMs].
func WriteTranscript(ctx context.Context, store docket.Store, ref string, sinceMs, untilMs int64, format OutputFormat, w io.Writer) (int, error) {
	entries, err := store.Transcript(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("failed to read transcript %s: %w", ref, err)
	}

	var kept []docket.TranscriptEntry
	for _, e := range entries {
		if timespec.InRange(e.AtMs, sinceMs, untilMs) {
			kept = append(kept, e)
		}
	}

	switch format {
	case OutputFormatDefault:
		FormatTranscript(w, kept, time.Local)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, kept); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown output format: %s", format)
	}
	return len(kept), nil
}
