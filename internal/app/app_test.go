package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emirlan/dailydigest/internal/aggregator"
	"github.com/emirlan/dailydigest/internal/collector"
	"github.com/emirlan/dailydigest/internal/config"
	"github.com/emirlan/dailydigest/internal/digest"
	"github.com/emirlan/dailydigest/internal/mailer"
	"github.com/emirlan/dailydigest/internal/message"
	"github.com/emirlan/dailydigest/internal/store"
)

type stubCollector struct {
	name   string
	result collector.Result
	panics bool
}

func (s stubCollector) Name() string { return s.name }

func (s stubCollector) Collect(context.Context) collector.Result {
	if s.panics {
		panic("adapter bug")
	}
	return s.result
}

type failingSender struct {
	errorReports []error
}

func (f *failingSender) Send(context.Context, string, string, int) error {
	return errors.New("connection refused")
}

func (f *failingSender) SendError(_ context.Context, runErr error) error {
	f.errorReports = append(f.errorReports, runErr)
	return nil
}

type recordingAlerter struct {
	titles []string
}

func (r *recordingAlerter) Alert(title, _ string) error {
	r.titles = append(r.titles, title)
	return nil
}

var fixed = time.Date(2024, time.March, 5, 20, 0, 0, 0, time.UTC)

func clock() time.Time { return fixed }

func slackMessages() []message.Message {
	return []message.Message{
		message.New(message.SourceSlack, "Alice", "#general", "standup moved", fixed.Add(-time.Hour), message.TypeChannel),
		message.New(message.SourceSlack, "Bob", "Direct Message", "lunch?", fixed.Add(-2*time.Hour), message.TypeDirect),
	}
}

func TestRunDeliversDigest(t *testing.T) {
	sender := mailer.NewLogSender()
	st := store.NewStore(5)
	r := NewRunner([]collector.Collector{
		stubCollector{name: "slack", result: collector.Result{Messages: slackMessages()}},
	}, sender, WithStore(st), WithClock(clock), WithGenerator(digest.NewGenerator(digest.WithClock(clock))))

	run, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, run.Delivered)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 2, run.BySource[message.SourceSlack])

	sent := sender.Deliveries()
	require.Len(t, sent, 1)
	assert.Equal(t, 2, sent[0].Count)
	assert.Contains(t, sent[0].PlainText, "=== SLACK (2 messages) ===")
	assert.Contains(t, sent[0].HTML, "<!DOCTYPE html>")

	d, id, ok := st.LatestDigest()
	require.True(t, ok)
	assert.Equal(t, run.RunID, id)
	assert.Equal(t, sent[0].PlainText, d.PlainText)
	assert.Equal(t, 1, st.GetStats().DigestsSent)
}

func TestRunSurvivesBrokenCollector(t *testing.T) {
	sender := mailer.NewLogSender()
	r := NewRunner([]collector.Collector{
		stubCollector{name: "slack", panics: true},
		stubCollector{name: "gmail", result: collector.Result{Messages: []message.Message{
			message.New(message.SourceGmail, "Carol", "carol@example.com", "Invoice", fixed, message.TypeEmail),
			message.New(message.SourceGmail, "Dan", "dan@example.com", "Re: plan", fixed, message.TypeEmail),
		}}},
	}, sender, WithClock(clock))

	run, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.FailedCount())
	sent := sender.Deliveries()
	require.Len(t, sent, 1)
	assert.Equal(t, 2, sent[0].Count)
}

func TestRunWithEveryCollectorFailing(t *testing.T) {
	sender := mailer.NewLogSender()
	r := NewRunner([]collector.Collector{
		stubCollector{name: "slack", result: collector.Failed(errors.New("invalid_auth"))},
	}, sender)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	sent := sender.Deliveries()
	require.Len(t, sent, 1)
	assert.Zero(t, sent[0].Count)
	assert.Contains(t, sent[0].PlainText, digest.NoNotifications)
}

func TestRunDeliveryFailure(t *testing.T) {
	sender := &failingSender{}
	alerter := &recordingAlerter{}
	st := store.NewStore(5)
	r := NewRunner(nil, sender, WithAlerter(alerter), WithStore(st), WithClock(clock))

	run, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")

	assert.False(t, run.Delivered)
	assert.Contains(t, run.Err, "failed to deliver digest")
	require.Len(t, sender.errorReports, 1)
	assert.Equal(t, []string{"Daily Digest failed"}, alerter.titles)

	stats := st.GetStats()
	assert.Equal(t, 1, stats.FailedRuns)
	assert.Zero(t, stats.DigestsSent)
}

func TestRunDryRun(t *testing.T) {
	r := NewRunner(nil, mailer.NewLogSender(), WithDryRun(true), WithAggregator(aggregator.New(aggregator.WithParallel(true))))
	run, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, run.DryRun)
	assert.False(t, run.Delivered)
}

func TestCollectorsFollowConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Slack.BotToken = "xoxb-test"
	cfg.WhatsApp.Enabled = true

	var names []string
	for _, c := range Collectors(cfg) {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"slack", "gmail", "whatsapp"}, names)

	cfg.Slack.BotToken = ""
	cfg.Gmail.Enabled = false
	cfg.WhatsApp.Enabled = false
	assert.Empty(t, Collectors(cfg))
}

// blockingCollector waits until release is closed.
type blockingCollector struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingCollector) Name() string { return "slack" }

func (b blockingCollector) Collect(ctx context.Context) collector.Result {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return collector.Result{}
}

func TestRunRejectsOverlappingRun(t *testing.T) {
	blocker := blockingCollector{started: make(chan struct{}), release: make(chan struct{})}
	sender := mailer.NewLogSender()
	r := NewRunner([]collector.Collector{blocker}, sender)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-blocker.started

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(blocker.release)
	require.NoError(t, <-done)
	assert.Len(t, sender.Deliveries(), 1)
}

func TestRunConcurrentCallers(t *testing.T) {
	sender := mailer.NewLogSender()
	st := store.NewStore(50)
	r := NewRunner([]collector.Collector{
		stubCollector{name: "slack", result: collector.Result{Messages: slackMessages()}},
	}, sender, WithStore(st), WithDryRun(true))

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(context.Background())
			if err == nil {
				mu.Lock()
				completed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrRunInProgress)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, completed, 1)
	assert.Equal(t, completed, st.GetStats().TotalRuns)
	assert.Len(t, sender.Deliveries(), min(completed, 10))
}

func TestRunLogsEachStepOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := NewRunner([]collector.Collector{
		stubCollector{name: "slack", result: collector.Result{Messages: slackMessages()}},
	}, mailer.NewLogSender())
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	logs := buf.String()
	assert.Equal(t, 1, strings.Count(logs, `msg="Generating digest"`))
	assert.Equal(t, 1, strings.Count(logs, `msg="Sending digest email"`))
}
