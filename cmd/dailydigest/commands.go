package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emirlan/dailydigest/internal/aggregator"
	"github.com/emirlan/dailydigest/internal/app"
	"github.com/emirlan/dailydigest/internal/digest"
	"github.com/emirlan/dailydigest/internal/mailer"
	"github.com/emirlan/dailydigest/internal/server"
	"github.com/emirlan/dailydigest/internal/store"
)

func runCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Collect, render and send one digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(!opts.dryRun); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("Daily Digest - starting execution")
			run, err := newRunner(cfg, opts, nil).Run(ctx)
			if err != nil {
				return err
			}
			slog.Info("Daily Digest - execution completed", "messages", run.Total)
			return nil
		},
	}
}

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Send the digest every day on schedule",
		Long: `Run the digest on the configured schedule until interrupted.

Examples:
  dailydigest serve
  SCHEDULE_TIME=07:30 dailydigest serve
  dailydigest serve --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(!opts.dryRun); err != nil {
				return err
			}
			spec, err := cfg.Schedule.Spec()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st := store.NewStore(100)
			runner := newRunner(cfg, opts, st)
			trigger := func(ctx context.Context) error {
				_, err := runner.Run(ctx)
				return err
			}

			scheduler, err := app.NewScheduler(spec, time.Local)
			if err != nil {
				return err
			}
			if err := scheduler.Schedule(ctx, "digest", trigger); err != nil {
				return err
			}
			scheduler.Start()

			if cfg.Server.Enabled {
				srv := server.New(st, cfg.Server.Port, server.WithTrigger(trigger))
				if err := srv.Start(); err != nil {
					slog.Error("Failed to start preview server", "error", err)
				} else {
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
						defer cancel()
						srv.Shutdown(shutdownCtx)
					}()
				}
			}

			<-ctx.Done()
			slog.Info("Received shutdown signal")

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			scheduler.Stop(stopCtx)

			slog.Info("Shutdown complete")
			return nil
		},
	}
}

func previewCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Collect and print the digest without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "html" {
				return fmt.Errorf("unknown format %q: use text or html", format)
			}
			cfg, err := setup(opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(false); err != nil {
				return err
			}

			agg := aggregator.New(
				aggregator.WithParallel(cfg.Collect.Parallel),
				aggregator.WithTimeout(cfg.Collect.Timeout()),
			)
			msgs, report := agg.CollectAll(cmd.Context(), app.Collectors(cfg))
			d, err := digest.NewGenerator().Generate(msgs)
			if err != nil {
				return err
			}

			out := d.PlainText
			if format == "html" {
				out = d.HTML
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			slog.Info("Preview generated", "run_id", report.RunID, "messages", d.Count, "failed_collectors", report.FailedCount())
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, html)")

	return cmd
}

func smtpTestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "smtp-test",
		Short: "Check SMTP credentials by sending a test email",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Host: %s\nPort: %d\nUsername: %s\nPassword: %d characters\nRecipient: %s\n",
				cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, len(cfg.SMTP.Password), cfg.RecipientEmail)

			if issues := mailer.CredentialIssues(cfg.SMTP); len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
				return fmt.Errorf("smtp configuration has %d issue(s)", len(issues))
			}
			if err := cfg.Validate(true); err != nil {
				return err
			}

			sender := mailer.NewSMTPSender(cfg.SMTP, cfg.RecipientEmail)
			if err := sender.SendTest(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "Test email sent to %s\n", cfg.RecipientEmail)
			return nil
		},
	}
}
