// Package aggregator runs the configured collectors and merges their output
// into one ordered message list for the digest.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emirlan/dailydigest/internal/collector"
	"github.com/emirlan/dailydigest/internal/message"
)

// CollectorStatus is the outcome of one collector in one run.
type CollectorStatus struct {
	Name     string        `json:"name"`
	Count    int           `json:"count"`
	Dropped  int           `json:"dropped"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the collector degraded.
func (s CollectorStatus) Failed() bool {
	return s.Err != ""
}

// Report describes one aggregation run.
type Report struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	Total      int               `json:"total"`
	Collectors []CollectorStatus `json:"collectors"`
}

// FailedCount is the number of collectors that degraded.
func (r Report) FailedCount() int {
	n := 0
	for _, c := range r.Collectors {
		if c.Failed() {
			n++
		}
	}
	return n
}

// Aggregator invokes collectors and merges their messages.
type Aggregator struct {
	parallel bool
	timeout  time.Duration
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithParallel runs collectors concurrently. The merged order is unchanged.
func WithParallel(parallel bool) Option {
	return func(a *Aggregator) {
		a.parallel = parallel
	}
}

// WithTimeout bounds each Collect call. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.timeout = d
	}
}

// New creates an aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type slot struct {
	messages []message.Message
	status   CollectorStatus
}

// CollectAll runs every collector in order and concatenates their messages,
// keeping each collector's own order. A failing or panicking collector never
// stops the others.
func (a *Aggregator) CollectAll(ctx context.Context, collectors []collector.Collector) ([]message.Message, Report) {
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := slog.With("run_id", report.RunID)
	log.Info("Starting message collection", "collectors", len(collectors), "parallel", a.parallel)

	// Each collector owns its slot; slots are merged in configured order below.
	slots := make([]slot, len(collectors))
	if a.parallel {
		var g errgroup.Group
		for i, c := range collectors {
			g.Go(func() error {
				slots[i] = a.run(ctx, log, c)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, c := range collectors {
			slots[i] = a.run(ctx, log, c)
		}
	}

	var all []message.Message
	for _, s := range slots {
		all = append(all, s.messages...)
		report.Collectors = append(report.Collectors, s.status)
	}
	report.Total = len(all)

	log.Info("Total messages collected", "count", report.Total, "failed_collectors", report.FailedCount())
	return all, report
}

func (a *Aggregator) run(ctx context.Context, log *slog.Logger, c collector.Collector) slot {
	name := c.Name()
	log = log.With("source", name)
	start := time.Now()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	log.Info("Collecting messages")
	res, err := safeCollect(ctx, c)

	status := CollectorStatus{Name: name}
	if err == nil {
		err = res.Err
	}
	if err != nil {
		log.Error("Collection failed", "error", err)
		status.Err = err.Error()
	}

	kept := make([]message.Message, 0, len(res.Messages))
	for _, m := range res.Messages {
		if string(m.Source) != name {
			log.Warn("Dropping message from wrong source", "message_source", m.Source)
			status.Dropped++
			continue
		}
		if verr := m.Validate(); verr != nil {
			log.Warn("Dropping malformed message", "error", verr)
			status.Dropped++
			continue
		}
		kept = append(kept, m)
	}

	status.Count = len(kept)
	status.Duration = time.Since(start)
	log.Info("Collected messages", "count", status.Count, "dropped", status.Dropped, "duration", status.Duration)

	return slot{messages: kept, status: status}
}

// safeCollect turns a panic inside Collect into an error.
func safeCollect(ctx context.Context, c collector.Collector) (res collector.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Collector panic stack", "source", c.Name(), "stack", string(debug.Stack()))
			res = collector.Result{}
			err = fmt.Errorf("collector %s panicked: %v", c.Name(), r)
		}
	}()
	return c.Collect(ctx), nil
}
