package aggregator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emirlan/dailydigest/internal/collector"
	"github.com/emirlan/dailydigest/internal/message"
)

// fakeCollector returns a canned result, or panics when panicWith is set.
type fakeCollector struct {
	name      string
	result    collector.Result
	panicWith any
	delay     time.Duration
	calls     int
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(ctx context.Context) collector.Result {
	f.calls++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return collector.Failed(ctx.Err())
		}
	}
	return f.result
}

func msgs(src message.Source, senders ...string) []message.Message {
	out := make([]message.Message, len(senders))
	for i, s := range senders {
		out[i] = message.New(src, s, "detail", "content "+s, time.Date(2024, 3, 5, 10, i, 0, 0, time.UTC), message.TypeChat)
	}
	return out
}

func TestCollectAllIsolatesPanics(t *testing.T) {
	broken := &fakeCollector{name: "slack", panicWith: "boom"}
	healthy := &fakeCollector{name: "gmail", result: collector.Result{Messages: msgs(message.SourceGmail, "a", "b")}}

	var got []message.Message
	var report Report
	require.NotPanics(t, func() {
		got, report = New().CollectAll(context.Background(), []collector.Collector{broken, healthy})
	})

	assert.Equal(t, msgs(message.SourceGmail, "a", "b"), got)
	require.Len(t, report.Collectors, 2)
	assert.True(t, report.Collectors[0].Failed())
	assert.Contains(t, report.Collectors[0].Err, "panicked: boom")
	assert.False(t, report.Collectors[1].Failed())
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.FailedCount())
	assert.NotEmpty(t, report.RunID)
}

func TestCollectAllPreservesOrder(t *testing.T) {
	collectors := []collector.Collector{
		&fakeCollector{name: "slack", result: collector.Result{Messages: msgs(message.SourceSlack, "s1", "s2", "s3")}},
		&fakeCollector{name: "gmail", result: collector.Result{Messages: msgs(message.SourceGmail, "g1")}},
		&fakeCollector{name: "whatsapp", result: collector.Result{Messages: msgs(message.SourceWhatsApp, "w1", "w2")}},
	}

	got, _ := New().CollectAll(context.Background(), collectors)

	var senders []string
	for _, m := range got {
		senders = append(senders, m.Sender)
	}
	assert.Equal(t, []string{"s1", "s2", "s3", "g1", "w1", "w2"}, senders)
}

func TestCollectAllParallelMatchesSequential(t *testing.T) {
	build := func() []collector.Collector {
		var cs []collector.Collector
		for i := 0; i < 6; i++ {
			src := message.Source(fmt.Sprintf("src%d", i))
			cs = append(cs, &fakeCollector{
				name:   string(src),
				delay:  time.Duration(6-i) * 5 * time.Millisecond,
				result: collector.Result{Messages: msgs(src, "x", "y")},
			})
		}
		return cs
	}

	sequential, _ := New().CollectAll(context.Background(), build())
	parallel, report := New(WithParallel(true)).CollectAll(context.Background(), build())

	assert.Equal(t, sequential, parallel)
	require.Len(t, report.Collectors, 6)
	for i, st := range report.Collectors {
		assert.Equal(t, fmt.Sprintf("src%d", i), st.Name)
	}
}

func TestCollectAllKeepsMessagesOfDegradedCollector(t *testing.T) {
	partial := &fakeCollector{name: "slack", result: collector.Result{
		Messages: msgs(message.SourceSlack, "only"),
		Err:      errors.New("one channel failed"),
	}}

	got, report := New().CollectAll(context.Background(), []collector.Collector{partial})
	assert.Len(t, got, 1)
	assert.Equal(t, "one channel failed", report.Collectors[0].Err)
}

func TestCollectAllDropsMalformedMessages(t *testing.T) {
	bad := msgs(message.SourceSlack, "ok", "empty-content", "wrong-source")
	bad[1].Content = ""
	bad[2].Source = message.SourceGmail

	got, report := New().CollectAll(context.Background(), []collector.Collector{
		&fakeCollector{name: "slack", result: collector.Result{Messages: bad}},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Sender)
	assert.Equal(t, 2, report.Collectors[0].Dropped)
	assert.Equal(t, 1, report.Collectors[0].Count)
}

func TestCollectAllTimeout(t *testing.T) {
	slow := &fakeCollector{name: "slack", delay: time.Minute}
	fast := &fakeCollector{name: "gmail", result: collector.Result{Messages: msgs(message.SourceGmail, "g")}}

	start := time.Now()
	got, report := New(WithTimeout(20*time.Millisecond)).CollectAll(context.Background(), []collector.Collector{slow, fast})

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, got, 1)
	assert.Contains(t, report.Collectors[0].Err, context.DeadlineExceeded.Error())
}

func TestCollectAllAllFailing(t *testing.T) {
	got, report := New().CollectAll(context.Background(), []collector.Collector{
		&fakeCollector{name: "slack", result: collector.Failed(errors.New("auth"))},
		&fakeCollector{name: "gmail", panicWith: errors.New("nil map")},
	})
	assert.Empty(t, got)
	assert.Equal(t, 2, report.FailedCount())
	assert.Zero(t, report.Total)
}

func TestCollectAllNoCollectors(t *testing.T) {
	got, report := New().CollectAll(context.Background(), nil)
	assert.Empty(t, got)
	assert.Empty(t, report.Collectors)
}
