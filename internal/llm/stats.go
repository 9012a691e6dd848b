package llm

import (
	"slices"
	"sync"
	"time"
)

// Call kinds recorded by the services.
const (
	OpChat      = "chat"
	OpEmbedding = "embedding"
)

// StatsSnapshot is a point-in-time aggregate of latency samples.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

type sample struct {
	at time.Time
	ms int64
}

// Stats tracks recent call latencies per operation within a rolling window.
type Stats struct {
	mu     sync.Mutex
	maxAge time.Duration
	series map[string][]sample
	now    func() time.Time
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		maxAge: maxAge,
		series: make(map[string][]sample),
		now:    time.Now,
	}
}

// Observe records one call of op. A nil *Stats ignores the call.
func (s *Stats) Observe(op string, d time.Duration) {
	if s == nil {
		return
	}
	ms := max(d.Milliseconds(), 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.series[op] = append(s.prune(s.series[op], now), sample{at: now, ms: ms})
}

// Since records the time elapsed since start for op.
func (s *Stats) Since(op string, start time.Time) {
	if s == nil {
		return
	}
	s.Observe(op, s.now().Sub(start))
}

// Snapshot aggregates every operation with samples in the window.
func (s *Stats) Snapshot() map[string]StatsSnapshot {
	out := map[string]StatsSnapshot{}
	if s == nil {
		return out
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for op, samples := range s.series {
		samples = s.prune(samples, now)
		s.series[op] = samples
		if len(samples) == 0 {
			continue
		}
		out[op] = aggregate(samples)
	}
	return out
}

func (s *Stats) prune(samples []sample, now time.Time) []sample {
	cutoff := now.Add(-s.maxAge)
	i := 0
	for i < len(samples) && samples[i].at.Before(cutoff) {
		i++
	}
	return samples[i:]
}

func aggregate(samples []sample) StatsSnapshot {
	values := make([]int64, len(samples))
	var sum int64
	for i, sm := range samples {
		values[i] = sm.ms
		sum += sm.ms
	}
	slices.Sort(values)
	return StatsSnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(len(sorted)-1) * min(max(pct, 0), 100) / 100
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return float64(sorted[len(sorted)-1])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}
