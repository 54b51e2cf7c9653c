// Package digest turns a flat set of collected messages into the plain text
// and HTML bodies of the daily digest email.
//
// Messages are grouped by source, each group is ordered newest first, and
// groups are rendered in a fixed priority order. Output depends only on the
// input messages and the generator's clock, so identical input renders
// identical bytes.
package digest

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/emirlan/dailydigest/internal/message"
)

// Title heads both renderings.
const Title = "Daily Digest"

// NoNotifications is shown instead of any section when there is nothing to report.
const NoNotifications = "No new notifications found."

const (
	timestampLayout = "January 02, 2006 at 03:04 PM"
	dateLayout      = "January 02, 2006"
)

// sourcePriority lists the sources rendered ahead of all others, in order.
var sourcePriority = []message.Source{
	message.SourceSlack,
	message.SourceGmail,
	message.SourceWhatsApp,
}

// Digest is one rendered report.
type Digest struct {
	PlainText   string
	HTML        string
	Count       int
	GeneratedAt time.Time
}

// Section is one source's block of the report.
type Section struct {
	Source   message.Source
	Messages []message.Message
}

// Generator renders digests. It keeps no state between calls.
type Generator struct {
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the clock used for the header date.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a digest generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate renders the plain text and HTML digest for msgs.
func (g *Generator) Generate(msgs []message.Message) (Digest, error) {
	slog.Info("Generating digest", "messages", len(msgs))

	now := g.now()
	sections := Sections(msgs)

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, newHTMLView(now, len(msgs), sections)); err != nil {
		return Digest{}, fmt.Errorf("failed to render html digest: %w", err)
	}

	d := Digest{
		PlainText:   renderPlainText(now, len(msgs), sections),
		HTML:        buf.String(),
		Count:       len(msgs),
		GeneratedAt: now,
	}

	slog.Info("Digest generation complete", "sections", len(sections))
	return d, nil
}

// Sections partitions, sorts and orders msgs into the sections of a digest.
func Sections(msgs []message.Message) []Section {
	grouped := Partition(msgs)
	order := SectionOrder(grouped)

	sections := make([]Section, 0, len(order))
	for _, src := range order {
		sections = append(sections, Section{
			Source:   src,
			Messages: SortNewestFirst(grouped[src]),
		})
	}
	return sections
}

// Partition groups messages by source. Each group keeps the input order.
func Partition(msgs []message.Message) map[message.Source][]message.Message {
	grouped := make(map[message.Source][]message.Message)
	for _, m := range msgs {
		grouped[m.Source] = append(grouped[m.Source], m)
	}
	return grouped
}

// SortNewestFirst returns a copy of msgs ordered by timestamp, most recent
// first. Messages with equal timestamps keep their relative order.
func SortNewestFirst(msgs []message.Message) []message.Message {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b message.Message) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return sorted
}

// SectionOrder returns the sources of grouped in render order: the priority
// sources first, then the rest lexicographically. Empty groups are skipped.
func SectionOrder(grouped map[message.Source][]message.Message) []message.Source {
	order := make([]message.Source, 0, len(grouped))
	for _, src := range sourcePriority {
		if len(grouped[src]) > 0 {
			order = append(order, src)
		}
	}

	var rest []message.Source
	for src, msgs := range grouped {
		if len(msgs) == 0 || slices.Contains(sourcePriority, src) {
			continue
		}
		rest = append(rest, src)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })

	return append(order, rest...)
}

// FormatTimestamp renders t in its own location, e.g. "March 03, 2024 at 02:15 PM".
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// FormatDate renders the date part used in headers and subjects.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// DisplayName is the upper-cased label for a source.
func DisplayName(src message.Source) string {
	return strings.ToUpper(string(src))
}

func countLabel(n int) string {
	if n == 1 {
		return "1 message"
	}
	return fmt.Sprintf("%d messages", n)
}
