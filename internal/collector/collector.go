package collector

import (
	"context"

	"github.com/emirlan/dailydigest/internal/message"
)

// Collector defines the interface for all message sources.
type Collector interface {
	// Name returns the source identifier. It is the grouping key of the digest.
	Name() string

	// Collect fetches unread messages. It must not panic: failures are logged
	// and reported through Result.Err with an empty message list.
	Collect(ctx context.Context) Result
}

// Result is the outcome of one Collect call. Messages may be empty on
// success; Err is set when the source degraded.
type Result struct {
	Messages []message.Message
	Err      error
}

// Failed builds the result of a collection that could not complete.
func Failed(err error) Result {
	return Result{Err: err}
}

// BaseCollector provides common functionality for collectors.
type BaseCollector struct {
	name message.Source
}

func NewBaseCollector(name message.Source) BaseCollector {
	return BaseCollector{name: name}
}

func (b *BaseCollector) Name() string {
	return string(b.name)
}

// Source returns the name as a message source.
func (b *BaseCollector) Source() message.Source {
	return b.name
}
