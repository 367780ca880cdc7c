// Package watch follows decisions as they are made.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/pkg/docket"
)

// OutputFormat specifies how decision events are written.
type OutputFormat string

const (
	// OutputFormatDefault prints one colored line per decision
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON prints line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// Source delivers decision events. *docket.DecisionSubscription satisfies it.
type Source interface {
	Events() <-chan *docket.DecisionEvent
	Errors() <-chan error
}

// StreamDecisions writes events from src until ctx is cancelled or the source closes.
// Undecodable payloads are reported to errw and skipped.
func StreamDecisions(ctx context.Context, src Source, format OutputFormat, w, errw io.Writer) error {
	if format != OutputFormatDefault && format != OutputFormatJSON {
		return fmt.Errorf("unknown output format: %s", format)
	}
	events, errs := src.Events(), src.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(errw, "⚠️  %v\n", err)

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, event, format); err != nil {
				return err
			}
		}
	}
}

func writeEvent(w io.Writer, event *docket.DecisionEvent, format OutputFormat) error {
	if format == OutputFormatJSON {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal decision event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	fmt.Fprintf(w, "[%s] ", time.UnixMilli(event.AtMs).Format("15:04:05"))
	printer.Decision(w, event)
	return nil
}

// PollForDecision polls until item id carries a final status.
// Polls every interval for the specified timeout duration.
func PollForDecision(ctx context.Context, store docket.Store, id int, interval, timeout time.Duration) (*docket.ReviewItem, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for a decision on #%d after %v", id, timeout)

		case <-ticker.C:
			item, err := store.GetItem(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to read item #%d: %w", id, err)
			}
			if item.Status.Final() {
				return item, nil
			}
		}
	}
}
