package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/docket/internal/agenda"
	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/internal/timespec"
	"github.com/dyluth/docket/pkg/docket"
)

var (
	agendaOutputFormat string
	agendaStatuses     []string
	agendaGroup        string
	agendaSince        string
	agendaUntil        string
	agendaWithdrawn    bool
)

var agendaCmd = &cobra.Command{
	Use:   "agenda",
	Short: "List review items with filtering",
	Long: `List review items as a table or JSONL stream.

Output Formats:
  default - Human-readable table with status, alternative, group, votes and title
  jsonl   - Line-delimited JSON, one item per line

Filters:
  --status    - Only these statuses (repeatable: unreviewed, hold, accepted, rejected, damaged)
  --group     - Group code glob ("web*")
  --since     - Items last updated after this time
  --until     - Items last updated before this time
  --withdrawn - Include withdrawn items

Examples:
  # What is still to be reviewed
  docket agenda --status=unreviewed --status=hold

  # Decisions from the last two hours as JSONL
  docket agenda --since=2h --output=jsonl | jq .id`,
	RunE: runAgenda,
}

func init() {
	agendaCmd.Flags().StringVarP(&agendaOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	agendaCmd.Flags().StringSliceVar(&agendaStatuses, "status", nil, "Filter by status (repeatable)")
	agendaCmd.Flags().StringVar(&agendaGroup, "group", "", "Filter by group code (glob pattern)")
	agendaCmd.Flags().StringVar(&agendaSince, "since", "", "Show items updated after time (duration or RFC3339)")
	agendaCmd.Flags().StringVar(&agendaUntil, "until", "", "Show items updated before time (duration or RFC3339)")
	agendaCmd.Flags().BoolVar(&agendaWithdrawn, "withdrawn", false, "Include withdrawn items")
	rootCmd.AddCommand(agendaCmd)
}

func runAgenda(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(agendaOutputFormat)
	if err != nil {
		return err
	}

	statuses, err := parseStatuses(agendaStatuses)
	if err != nil {
		return err
	}

	sinceMs, untilMs, err := timespec.ParseRange(agendaSince, agendaUntil)
	if err != nil {
		return printer.Error("invalid time filter", err.Error(),
			[]string{"Use a duration like 2h or an RFC3339 timestamp like 2026-04-01T13:00:00Z"})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return agenda.ListItems(ctx, store, cfg.Store.Namespace, format, &agenda.FilterCriteria{
		Statuses:         statuses,
		GroupGlob:        agendaGroup,
		SinceTimestampMs: sinceMs,
		UntilTimestampMs: untilMs,
		IncludeWithdrawn: agendaWithdrawn,
	}, os.Stdout)
}

func parseOutputFormat(s string) (agenda.OutputFormat, error) {
	switch s {
	case "default":
		return agenda.OutputFormatDefault, nil
	case "jsonl":
		return agenda.OutputFormatJSONL, nil
	default:
		return "", printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", s),
			[]string{"Valid formats: default, jsonl"},
		)
	}
}

func parseStatuses(raw []string) ([]docket.Status, error) {
	var out []docket.Status
	for _, s := range raw {
		status := docket.Status(strings.ToLower(strings.TrimSpace(s)))
		if err := status.Validate(); err != nil {
			return nil, printer.Error("invalid status filter", err.Error(),
				[]string{"Valid statuses: unreviewed, hold, accepted, rejected, damaged"})
		}
		out = append(out, status)
	}
	return out, nil
}
