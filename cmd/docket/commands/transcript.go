package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dyluth/docket/internal/agenda"
	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/internal/timespec"
	"github.com/dyluth/docket/pkg/docket"
)

var (
	transcriptSession      bool
	transcriptOutputFormat string
	transcriptSince        string
	transcriptUntil        string
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript NUMBER",
	Short: "Print the recorded discussion of an item or session",
	Long: `Print the channel lines recorded while an item was under review, or for
a whole session with --session.

Examples:
  docket transcript 42
  docket transcript --session 3 --since=2026-04-01T13:00:00Z --until=2026-04-01T14:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscript,
}

func init() {
	transcriptCmd.Flags().BoolVarP(&transcriptSession, "session", "s", false, "NUMBER is a session number rather than an item id")
	transcriptCmd.Flags().StringVarP(&transcriptOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	transcriptCmd.Flags().StringVar(&transcriptSince, "since", "", "Only lines after time (duration or RFC3339)")
	transcriptCmd.Flags().StringVar(&transcriptUntil, "until", "", "Only lines before time (duration or RFC3339)")
	rootCmd.AddCommand(transcriptCmd)
}

func runTranscript(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return printer.Error("invalid number", fmt.Sprintf("%q is not a positive number", args[0]), nil)
	}
	ref := docket.ItemTranscriptRef(n)
	if transcriptSession {
		ref = docket.SessionTranscriptRef(n)
	}

	format, err := parseOutputFormat(transcriptOutputFormat)
	if err != nil {
		return err
	}
	sinceMs, untilMs, err := timespec.ParseRange(transcriptSince, transcriptUntil)
	if err != nil {
		return printer.Error("invalid time filter", err.Error(), nil)
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

	count, err := agenda.WriteTranscript(ctx, store, ref, sinceMs, untilMs, format, os.Stdout)
	if err != nil {
		return printer.Error("could not read transcript", err.Error(), nil)
	}
	if count == 0 && format == agenda.OutputFormatDefault {
		printer.Warning("No transcript lines for %s\n", ref)
	}
	return nil
}
