package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs a job on a cron schedule.
type Scheduler struct {
	c    *cron.Cron
	spec string
}

// NewScheduler validates spec and prepares a scheduler in loc.
func NewScheduler(spec string, loc *time.Location) (*Scheduler, error) {
	if _, err := specParser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}

	logger := cronLogger{}
	return &Scheduler{
		c: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		spec: spec,
	}, nil
}

// Schedule registers fn. Each invocation gets ctx.
func (s *Scheduler) Schedule(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	_, err := s.c.AddJob(s.spec, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		slog.Info("Scheduled job starting", "job", name)
		if err := fn(ctx); err != nil {
			slog.Error("Scheduled job failed", "job", name, "error", err)
		}
	}))
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// Next is the next activation time, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.c.Start()
	slog.Info("Scheduler started", "spec", s.spec, "next", s.Next())
}

// Stop stops the scheduler and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("Scheduled job still running at shutdown")
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
