// Package app wires collection, rendering and delivery into one digest run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emirlan/dailydigest/internal/aggregator"
	"github.com/emirlan/dailydigest/internal/collector"
	"github.com/emirlan/dailydigest/internal/config"
	"github.com/emirlan/dailydigest/internal/digest"
	"github.com/emirlan/dailydigest/internal/mailer"
	"github.com/emirlan/dailydigest/internal/message"
	"github.com/emirlan/dailydigest/internal/notifier"
	"github.com/emirlan/dailydigest/internal/store"
)

// ErrRunInProgress is returned by Run while another run is still going.
var ErrRunInProgress = errors.New("a digest run is already in progress")

// Runner performs digest runs. At most one run is in flight at a time.
type Runner struct {
	mu sync.Mutex

	collectors []collector.Collector
	aggregator *aggregator.Aggregator
	generator  *digest.Generator
	sender     mailer.Sender
	alerter    notifier.Alerter
	store      *store.Store
	dryRun     bool
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

func WithAggregator(a *aggregator.Aggregator) Option {
	return func(r *Runner) { r.aggregator = a }
}

func WithGenerator(g *digest.Generator) Option {
	return func(r *Runner) { r.generator = g }
}

// WithAlerter raises an operator alert whenever a run fails.
func WithAlerter(a notifier.Alerter) Option {
	return func(r *Runner) { r.alerter = a }
}

// WithStore records every run and the latest digest in st.
func WithStore(st *store.Store) Option {
	return func(r *Runner) { r.store = st }
}

// WithDryRun marks recorded runs as dry runs.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner that collects from collectors in order and
// delivers through sender.
func NewRunner(collectors []collector.Collector, sender mailer.Sender, opts ...Option) *Runner {
	r := &Runner{
		collectors: collectors,
		aggregator: aggregator.New(),
		generator:  digest.NewGenerator(),
		sender:     sender,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run collects, renders and delivers one digest. A run in which every
// collector failed still delivers a "no notifications" digest. Rendering and
// delivery errors are reported by mail and alert, then returned. A call made
// while another run is in flight returns ErrRunInProgress without collecting.
func (r *Runner) Run(ctx context.Context) (store.Run, error) {
	if !r.mu.TryLock() {
		slog.Warn("Skipping digest run, previous run still in progress")
		return store.Run{}, ErrRunInProgress
	}
	defer r.mu.Unlock()

	msgs, report := r.aggregator.CollectAll(ctx, r.collectors)
	log := slog.With("run_id", report.RunID)

	run := store.Run{
		Report:   report,
		BySource: countBySource(msgs),
		DryRun:   r.dryRun,
	}

	d, err := r.generator.Generate(msgs)
	if err != nil {
		return r.fail(ctx, log, run, fmt.Errorf("failed to generate digest: %w", err))
	}
	if r.store != nil {
		r.store.SetLatestDigest(report.RunID, d)
	}

	log.Info("Sending digest email")
	if err := r.sender.Send(ctx, d.PlainText, d.HTML, d.Count); err != nil {
		return r.fail(ctx, log, run, fmt.Errorf("failed to deliver digest: %w", err))
	}

	run.Delivered = !r.dryRun
	run.FinishedAt = r.now()
	r.record(run)

	log.Info("Digest run completed",
		"messages", d.Count,
		"failed_collectors", report.FailedCount(),
		"duration", run.FinishedAt.Sub(report.StartedAt))
	return run, nil
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, run store.Run, err error) (store.Run, error) {
	log.Error("Digest run failed", "error", err)

	if sendErr := r.sender.SendError(ctx, err); sendErr != nil {
		log.Error("Failed to send error notification", "error", sendErr)
	}
	if r.alerter != nil {
		if alertErr := r.alerter.Alert(digest.Title+" failed", err.Error()); alertErr != nil {
			log.Error("Failed to send alert", "error", alertErr)
		}
	}

	run.Err = err.Error()
	run.FinishedAt = r.now()
	r.record(run)
	return run, err
}

func (r *Runner) record(run store.Run) {
	if r.store != nil {
		r.store.AddRun(run)
	}
}

func countBySource(msgs []message.Message) map[message.Source]int {
	counts := make(map[message.Source]int)
	for _, m := range msgs {
		counts[m.Source]++
	}
	return counts
}

// Collectors builds the ordered collector list for the enabled sources.
func Collectors(cfg *config.Config) []collector.Collector {
	var collectors []collector.Collector

	if cfg.Slack.Enabled && cfg.Slack.BotToken != "" {
		collectors = append(collectors, collector.NewSlackCollector(cfg.Slack))
	} else {
		slog.Info("Slack token not configured, skipping Slack collection")
	}

	if cfg.Gmail.Enabled && cfg.Gmail.CredentialsPath != "" {
		collectors = append(collectors, collector.NewGmailCollector(cfg.Gmail))
	} else {
		slog.Info("Gmail credentials not configured, skipping Gmail collection")
	}

	if cfg.WhatsApp.Enabled {
		collectors = append(collectors, collector.NewWhatsAppCollector())
	} else {
		slog.Info("WhatsApp collection disabled (set ENABLE_WHATSAPP_PLACEHOLDER=true to enable)")
	}

	if cfg.Telegram.Enabled {
		collectors = append(collectors, collector.NewTelegramCollector(cfg.Telegram))
	}

	return collectors
}
