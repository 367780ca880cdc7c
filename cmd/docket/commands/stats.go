package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/docket/internal/agenda"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize decisions by status",
	Long: `Count items by status and rejected items by suggested alternative,
and report the acceptance rate over everything reviewed so far.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
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

	_, err = agenda.WriteStats(ctx, store, os.Stdout)
	return err
}
