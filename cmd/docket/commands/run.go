package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/docket/internal/config"
	"github.com/dyluth/docket/internal/driver"
	"github.com/dyluth/docket/internal/health"
	"github.com/dyluth/docket/internal/ircbot"
	"github.com/dyluth/docket/internal/meeting"
	"github.com/dyluth/docket/internal/transcript"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to IRC and moderate the review channel",
	Long: `Connect to the configured IRC server, join the review channel and wait
for a chair to pick a review format with ",mode sequential" or ",mode group".

The process runs until interrupted or until the IRC connection drops.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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

	bot, err := ircbot.New(ircbot.Config{
		Server:   cfg.IRC.Server,
		TLS:      cfg.IRC.TLS,
		Nick:     cfg.IRC.Nick,
		Password: cfg.IRC.Password,
		Channel:  cfg.IRC.Channel,
	})
	if err != nil {
		return fmt.Errorf("failed to configure IRC: %w", err)
	}

	buffer := transcript.NewBuffer(store, cfg.Transcript.FlushInterval)
	d, err := driver.New(bot, newAuthorizer(cfg, bot), meeting.Deps{
		Store:    store,
		Settings: cfg.Session.Settings(),
		Recorder: buffer,
	}, driver.Options{
		Channel:          cfg.IRC.Channel,
		Sigil:            cfg.IRC.Sigil,
		Instance:         cfg.Store.Namespace,
		ReverifyInterval: cfg.Auth.ReverifyInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to build driver: %w", err)
	}

	buffer.OnFailure(func(err error) {
		d.Announce(fmt.Sprintf("I could not save the transcript (%v). I will keep the lines and retry.", err))
	})

	var healthServer *health.Server
	if cfg.Health.Addr != "" {
		healthServer = health.NewServer(store, cfg.Store.Driver, buffer.Pending)
		if err := healthServer.Start(cfg.Health.Addr); err != nil {
			return err
		}
		log.Printf("[Health] Listening on %s", cfg.Health.Addr)
	}

	flushDone := make(chan struct{})
	flushCtx, stopFlush := context.WithCancel(context.Background())
	go func() {
		buffer.Run(flushCtx)
		close(flushDone)
	}()

	ircErr := make(chan error, 1)
	go func() { ircErr <- bot.Run(ctx) }()

	// The driver returns when ctx is cancelled or the bot closes its event stream.
	if err := d.Run(ctx); err != nil {
		log.Printf("[Driver] Stopped with error: %v", err)
	}
	cancel()
	runErr := <-ircErr

	stopFlush()
	<-flushDone

	if healthServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		healthServer.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "IRC connection ended: %v\n", runErr)
		return runErr
	}
	return nil
}

func newAuthorizer(cfg *config.DocketConfig, bot *ircbot.Bot) driver.Authorizer {
	if cfg.Auth.Mode == "nickserv" {
		return driver.NewNickServAuthorizer(bot.Send, cfg.Auth.Service, cfg.Auth.Chairs)
	}
	return driver.NewStaticAuthorizer(cfg.Auth.Chairs)
}
