package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/emirlan/dailydigest/internal/aggregator"
	"github.com/emirlan/dailydigest/internal/app"
	"github.com/emirlan/dailydigest/internal/config"
	"github.com/emirlan/dailydigest/internal/logging"
	"github.com/emirlan/dailydigest/internal/mailer"
	"github.com/emirlan/dailydigest/internal/notifier"
	"github.com/emirlan/dailydigest/internal/store"
)

var Version = "dev"

type options struct {
	configPath string
	debug      bool
	dryRun     bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "dailydigest",
		Short:         "Daily Digest - unread Slack, Gmail and chat messages in one email",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "Log the digest instead of sending email")

	rootCmd.AddCommand(runCmd(opts))
	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(previewCmd(opts))
	rootCmd.AddCommand(smtpTestCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the default logger.
func setup(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if opts.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(logging.New(os.Stderr, level))

	return cfg, nil
}

// newRunner wires a runner for cfg. st may be nil.
func newRunner(cfg *config.Config, opts *options, st *store.Store) *app.Runner {
	var sender mailer.Sender
	var alerter notifier.Alerter
	if opts.dryRun {
		slog.Info("Running in dry-run mode - digests will be logged only")
		sender = mailer.NewLogSender()
		alerter = notifier.NewLogAlerter()
	} else {
		sender = mailer.NewSMTPSender(cfg.SMTP, cfg.RecipientEmail)
		if cfg.Pushover.Enabled {
			alerter = notifier.NewPushoverAlerter(cfg.Pushover)
		}
	}

	runnerOpts := []app.Option{
		app.WithAggregator(aggregator.New(
			aggregator.WithParallel(cfg.Collect.Parallel),
			aggregator.WithTimeout(cfg.Collect.Timeout()),
		)),
		app.WithDryRun(opts.dryRun),
	}
	if alerter != nil {
		runnerOpts = append(runnerOpts, app.WithAlerter(alerter))
	}
	if st != nil {
		runnerOpts = append(runnerOpts, app.WithStore(st))
	}

	return app.NewRunner(app.Collectors(cfg), sender, runnerOpts...)
}
