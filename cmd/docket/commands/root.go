package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/docket/internal/boltstore"
	"github.com/dyluth/docket/internal/config"
	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/pkg/docket"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docket",
	Short: "Docket - IRC moderator for program committee review meetings",
	Long: `Docket runs program committee review meetings in an IRC channel.

A chair drives each submission (or group of submissions) through champion
calls, timed debate and voting; docket keeps the clock, counts the votes and
records every decision and transcript in Redis or an embedded bolt database.

The remaining commands inspect and prepare that data offline.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "docket.yml", "Path to docket.yml")
}

// loadConfig reads the --config file, reporting failures through the printer.
func loadConfig() (*config.DocketConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"could not load configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Pass --config with the path to docket.yml", "Set DOCKET_* environment variables to override file values"},
		)
	}
	return cfg, nil
}

// openStore opens the configured backend and checks it answers.
func openStore(ctx context.Context, cfg *config.DocketConfig) (docket.Store, error) {
	var (
		store docket.Store
		err   error
	)
	switch cfg.Store.Driver {
	case "bolt":
		store, err = boltstore.Open(cfg.Store.BoltPath)
	default:
		var opts *redis.Options
		opts, err = redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, printer.Error("invalid redis url", err.Error(), []string{"Use the form redis://host:6379/0"})
		}
		store, err = docket.NewClient(opts, cfg.Store.Namespace)
	}
	if err != nil {
		return nil, printer.Error("could not open store", err.Error(), nil)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, printer.ErrorWithContext(
			"store not reachable",
			err.Error(),
			map[string]string{"Driver": cfg.Store.Driver},
			[]string{"Check that Redis is running and REDIS_URL is correct", "Or switch to store.driver: bolt"},
		)
	}
	return store, nil
}
