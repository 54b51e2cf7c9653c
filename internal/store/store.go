package store

import (
	"sync"
	"time"

	"github.com/emirlan/dailydigest/internal/aggregator"
	"github.com/emirlan/dailydigest/internal/digest"
	"github.com/emirlan/dailydigest/internal/message"
)

// Run records the outcome of one digest run.
type Run struct {
	aggregator.Report
	FinishedAt time.Time              `json:"finished_at"`
	BySource   map[message.Source]int `json:"by_source"`
	Delivered  bool                   `json:"delivered"`
	DryRun     bool                   `json:"dry_run"`
	Err        string                 `json:"error,omitempty"`
}

// Failed reports whether the run ended in error.
func (r Run) Failed() bool {
	return r.Err != ""
}

// Stats holds aggregate statistics over every recorded run.
type Stats struct {
	TotalRuns      int                    `json:"total_runs"`
	FailedRuns     int                    `json:"failed_runs"`
	DigestsSent    int                    `json:"digests_sent"`
	TotalMessages  int                    `json:"total_messages"`
	BySource       map[message.Source]int `json:"by_source"`
	LastRunAt      *time.Time             `json:"last_run_at,omitempty"`
	LastDeliveryAt *time.Time             `json:"last_delivery_at,omitempty"`
}

// Store is a thread-safe in-memory store with a ring buffer for runs.
type Store struct {
	mu       sync.RWMutex
	runs     []Run // ring buffer
	capacity int
	writeIdx int
	count    int

	latest    *digest.Digest
	latestRun string

	stats Stats

	// SSE subscribers
	ssemu       sync.Mutex
	subscribers map[chan string]struct{}
}

// NewStore creates a new store with the given ring buffer capacity.
// If capacity is <= 0, it defaults to 100.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 100
	}
	return &Store{
		runs:        make([]Run, capacity),
		capacity:    capacity,
		subscribers: make(map[chan string]struct{}),
		stats: Stats{
			BySource: make(map[message.Source]int),
		},
	}
}

// AddRun adds a run to the ring buffer, updates stats, and notifies SSE
// subscribers.
func (s *Store) AddRun(r Run) {
	s.mu.Lock()

	s.runs[s.writeIdx] = r
	s.writeIdx = (s.writeIdx + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}

	s.stats.TotalRuns++
	if r.Failed() {
		s.stats.FailedRuns++
	}
	if r.Delivered {
		s.stats.DigestsSent++
		at := r.FinishedAt
		s.stats.LastDeliveryAt = &at
	}
	s.stats.TotalMessages += r.Total
	for src, n := range r.BySource {
		s.stats.BySource[src] += n
	}
	at := r.FinishedAt
	s.stats.LastRunAt = &at

	s.mu.Unlock()

	s.notifySubscribers("refresh")
}

// SetLatestDigest remembers the most recently generated digest.
func (s *Store) SetLatestDigest(runID string, d digest.Digest) {
	s.mu.Lock()
	s.latest = &d
	s.latestRun = runID
	s.mu.Unlock()

	s.notifySubscribers("digest")
}

// LatestDigest returns the most recently generated digest and the run that
// produced it. ok is false until a digest has been generated.
func (s *Store) LatestDigest() (d digest.Digest, runID string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return digest.Digest{}, "", false
	}
	return *s.latest, s.latestRun, true
}

// GetRecentRuns returns the most recent N runs in reverse chronological order.
func (s *Store) GetRecentRuns(limit int) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.count {
		limit = s.count
	}

	result := make([]Run, 0, limit)
	for i := 0; i < limit; i++ {
		// Walk backwards from the most recently written position.
		idx := (s.writeIdx - 1 - i + s.capacity) % s.capacity
		result = append(result, s.runs[idx])
	}
	return result
}

// GetRun looks up a run by id.
func (s *Store) GetRun(runID string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < s.count; i++ {
		idx := (s.writeIdx - 1 - i + s.capacity) % s.capacity
		if s.runs[idx].RunID == runID {
			return s.runs[idx], true
		}
	}
	return Run{}, false
}

// GetStats returns a copy of the current aggregate statistics.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := s.stats
	cp.BySource = make(map[message.Source]int, len(s.stats.BySource))
	for k, v := range s.stats.BySource {
		cp.BySource[k] = v
	}
	return cp
}

// Subscribe registers a new SSE subscriber and returns a channel that will receive
// event strings. The caller must eventually call Unsubscribe to avoid leaking resources.
func (s *Store) Subscribe() chan string {
	ch := make(chan string, 16)
	s.ssemu.Lock()
	s.subscribers[ch] = struct{}{}
	s.ssemu.Unlock()
	return ch
}

// Unsubscribe removes an SSE subscriber and closes its channel.
func (s *Store) Unsubscribe(ch chan string) {
	s.ssemu.Lock()
	delete(s.subscribers, ch)
	s.ssemu.Unlock()
	close(ch)
}

// notifySubscribers sends an event string to all SSE subscribers. Slow subscribers
// that have a full channel buffer are skipped.
func (s *Store) notifySubscribers(event string) {
	s.ssemu.Lock()
	defer s.ssemu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
