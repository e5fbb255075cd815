package query

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// RunMetrics collects counters for a single pipeline run. Counters are
// incremented concurrently by scoring tasks; the snapshot is written once at
// completion and read only for observability.
type RunMetrics struct {
	// start and end bound the run's wall-clock duration.
	start time.Time
	end   time.Time

	// ItemsProcessed counts items that produced a usable scored result.
	ItemsProcessed atomic.Int64
	// ModelCalls counts judgment calls that actually reached the model
	// (cache hits do not count).
	ModelCalls atomic.Int64
	// CacheHits counts relevance-cache hits.
	CacheHits atomic.Int64
	// CacheMisses counts relevance-cache misses.
	CacheMisses atomic.Int64
}

// NewRunMetrics returns a RunMetrics with the timer started.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{start: time.Now()}
}

// Stop freezes the run duration. Safe to call more than once; the first
// call wins.
func (m *RunMetrics) Stop() {
	if m.end.IsZero() {
		m.end = time.Now()
	}
}

// Duration returns the elapsed run time, zero if the timer never stopped.
func (m *RunMetrics) Duration() time.Duration {
	if m.end.IsZero() || m.end.Before(m.start) {
		return 0
	}
	return m.end.Sub(m.start)
}

// Log emits the metrics snapshot as a structured log record.
func (m *RunMetrics) Log(log *slog.Logger, component string) {
	log.Info(component+": run metrics",
		slog.Duration("duration", m.Duration()),
		slog.Int64("items_processed", m.ItemsProcessed.Load()),
		slog.Int64("model_calls", m.ModelCalls.Load()),
		slog.Int64("cache_hits", m.CacheHits.Load()),
		slog.Int64("cache_misses", m.CacheMisses.Load()),
	)
}
