package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/internal/watch"
	"github.com/dyluth/docket/pkg/docket"
)

var watchOutputFormat string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream decisions as the meeting makes them",
	Long: `Stream decision events as chairs accept, reject or certify items.

Requires the redis store; decisions are delivered over Redis Pub/Sub.

Output Formats:
  default - One colored line per decision
  json    - Line-delimited JSON for programmatic processing`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var format watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		format = watch.OutputFormatDefault
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client, ok := store.(*docket.Client)
	if !ok {
		return printer.Error("watch needs the redis store",
			fmt.Sprintf("store.driver is %q, which has no live decision feed", cfg.Store.Driver),
			[]string{"Use docket agenda --since=10m to see recent decisions instead"})
	}

	sub, err := client.SubscribeDecisionEvents(ctx)
	if err != nil {
		return printer.Error("could not subscribe", err.Error(), nil)
	}
	defer sub.Close()

	if format == watch.OutputFormatDefault {
		printer.Step("Watching decisions in '%s' (Ctrl-C to stop)\n", cfg.Store.Namespace)
	}
	return watch.StreamDecisions(ctx, sub, format, os.Stdout, os.Stderr)
}
