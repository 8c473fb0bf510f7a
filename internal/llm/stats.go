package llm

import (
	"slices"
	"sync"
)

// StatsSnapshot aggregates the retained model-call latencies.
type StatsSnapshot struct {
	Count int   `json:"count"`
	MinMs int64 `json:"min_ms"`
	MaxMs int64 `json:"max_ms"`
	AvgMs int64 `json:"avg_ms"`
	P50Ms int64 `json:"p50_ms"`
	P95Ms int64 `json:"p95_ms"`
	P99Ms int64 `json:"p99_ms"`
}

// Stats keeps the most recent model-call latencies in a fixed-size ring.
type Stats struct {
	mu   sync.Mutex
	ring []int64
	next int
}

// NewStats retains the last window samples; window <= 0 falls back to 512.
func NewStats(window int) *Stats {
	if window <= 0 {
		window = 512
	}
	return &Stats{ring: make([]int64, 0, window)}
}

func (s *Stats) Record(ms int64) {
	if ms < 0 {
		ms = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ring) < cap(s.ring) {
		s.ring = append(s.ring, ms)
		return
	}
	s.ring[s.next] = ms
	s.next = (s.next + 1) % cap(s.ring)
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	values := slices.Clone(s.ring)
	s.mu.Unlock()

	if len(values) == 0 {
		return StatsSnapshot{}
	}
	slices.Sort(values)
	var sum int64
	for _, v := range values {
		sum += v
	}
	return StatsSnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: sum / int64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

// percentile is nearest-rank over an ascending slice.
func percentile(sorted []int64, pct int) int64 {
	rank := (len(sorted)*pct + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
