// Package timespec parses the time arguments users type: durations given to chat
// commands ("debate 5", "vote 30", "extend 90s") and the --since/--until bounds of the
// transcript command.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration parses a chat command duration argument.
// A bare number (integer or decimal) is counted in unit; anything else must be a Go
// duration such as "90s" or "2m30s". The result must be positive.
func Duration(arg string, unit time.Duration) (time.Duration, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if n, err := strconv.ParseFloat(arg, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %s", arg)
		}
		return time.Duration(n * float64(unit)), nil
	}

	d, err := time.ParseDuration(arg)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number or a duration like 90s", arg)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", arg)
	}
	return d, nil
}

// Human renders a duration the way the bot speaks: "3 minutes", "1 minute 30 seconds",
// "45 seconds".
func Human(d time.Duration) string {
	d = d.Round(time.Second)
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)

	var parts []string
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || minutes == 0 {
		parts = append(parts, plural(seconds, "second"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// Parse parses a time specification into a Unix timestamp (milliseconds).
// Supports two formats:
//   - Go duration format: "1h", "30m", "1h30m" (relative, meaning "that long ago")
//   - RFC3339 timestamps: "2026-04-01T13:00:00Z"
func Parse(spec string) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return time.Now().Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2026-04-01T13:00:00Z')", spec)
}

// ParseRange parses --since and --until into millisecond bounds.
// Zero means "no bound" for that end. since must be before until when both are given.
func ParseRange(since, until string) (int64, int64, error) {
	var sinceMS, untilMS int64
	var err error

	if since != "" {
		if sinceMS, err = Parse(since); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if untilMS, err = Parse(until); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMS > 0 && untilMS > 0 && sinceMS >= untilMS {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}
	return sinceMS, untilMS, nil
}

// InRange reports whether atMs falls within [sinceMS, untilMS], treating zero bounds as open.
func InRange(atMs, sinceMS, untilMS int64) bool {
	if sinceMS > 0 && atMs < sinceMS {
		return false
	}
	if untilMS > 0 && atMs > untilMS {
		return false
	}
	return true
}
