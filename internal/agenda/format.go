package agenda

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/pkg/docket"
)

// FormatTable writes items as a table with columns ID, STATUS, ALT, GROUP, VOTES, UPDATED, TITLE.
// Returns the number of items formatted.
func FormatTable(w io.Writer, items []*docket.ReviewItem, namespace string, now time.Time) int {
	if len(items) == 0 {
		fmt.Fprintf(w, "No items found in '%s'\n", namespace)
		return 0
	}

	fmt.Fprintf(w, "Items in '%s':\n\n", namespace)

	fmt.Fprintf(w, "%-5s %-10s %-9s %-8s %-7s %-8s %s\n",
		"ID", "STATUS", "ALT", "GROUP", "VOTES", "UPDATED", "TITLE")
	fmt.Fprintf(w, "%-5s %-10s %-9s %-8s %-7s %-8s %s\n",
		"-----", "----------", "---------", "--------", "-------", "--------", "----------------------------------------")

	for _, item := range items {
		fmt.Fprintf(w, "%-5d %s %-9s %-8s %-7s %-8s %s\n",
			item.ID,
			printer.Status(item.Status, fmt.Sprintf("%-10s", formatStatus(item))),
			formatAlternative(item.Alternative),
			dash(item.GroupCode),
			formatTally(item.Tally),
			formatAge(item.UpdatedAtMs, now),
			formatTitle(item),
		)
	}

	noun := "item"
	if len(items) != 1 {
		noun = "items"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(items), noun)

	return len(items)
}

// FormatJSONL writes records as line-delimited JSON.
func FormatJSONL[T any](w io.Writer, records []T) error {
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatStats writes a status breakdown.
func FormatStats(w io.Writer, stats Stats) {
	fmt.Fprintf(w, "%-12s %5s\n", "STATUS", "ITEMS")
	for _, status := range statusOrder {
		n := stats.ByStatus[status]
		if n == 0 {
			continue
		}
		fmt.Fprintf(w, "%s %5d\n", printer.Status(status, fmt.Sprintf("%-12s", status)), n)
	}
	fmt.Fprintf(w, "%-12s %5d\n", "total", stats.Total)

	if len(stats.Alternatives) > 0 {
		fmt.Fprintf(w, "\nRejected with an alternative:\n")
		alts := make([]string, 0, len(stats.Alternatives))
		for alt := range stats.Alternatives {
			alts = append(alts, string(alt))
		}
		sort.Strings(alts)
		for _, alt := range alts {
			fmt.Fprintf(w, "  %-12s %5d\n", alt, stats.Alternatives[docket.Alternative(alt)])
		}
	}

	if stats.Reviewed() > 0 {
		fmt.Fprintf(w, "\nAcceptance rate: %.1f%% of %d reviewed\n", stats.AcceptanceRate(), stats.Reviewed())
	}
}

// FormatTranscript writes transcript lines as "HH:MM:SS <nick> line".
func FormatTranscript(w io.Writer, entries []docket.TranscriptEntry, loc *time.Location) {
	for _, e := range entries {
		at := time.UnixMilli(e.AtMs).In(loc)
		fmt.Fprintf(w, "%s <%s> %s\n", at.Format("15:04:05"), e.Nick, e.Line)
	}
}

func formatStatus(item *docket.ReviewItem) string {
	if item.Withdrawn {
		return "withdrawn"
	}
	return string(item.Status)
}

func formatAlternative(alt docket.Alternative) string {
	if alt == docket.AlternativeNone {
		return "-"
	}
	return string(alt)
}

// formatTally shows ayes/nays for sequential votes and supporters/voters for group votes.
func formatTally(t *docket.Tally) string {
	switch {
	case t == nil:
		return "-"
	case t.Voters > 0:
		return fmt.Sprintf("%d/%d", t.Supporters, t.Voters)
	default:
		return fmt.Sprintf("%d-%d", t.Ayes, t.Nays)
	}
}

// formatTitle joins title and speaker, truncated to 50 characters.
func formatTitle(item *docket.ReviewItem) string {
	title := strings.TrimSpace(item.Title)
	if item.Speaker != "" {
		title += " (" + item.Speaker + ")"
	}
	if len(title) > 50 {
		return title[:47] + "..."
	}
	return title
}

// formatAge renders a millisecond timestamp relative to now.
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
