package pipeline

import (
	"sync/atomic"
	"time"
)

// RunMetrics accumulates counters for one enrichment run. Counters are
// atomic so concurrent workers never lose updates; Snapshot finalizes a
// read-only view.
type RunMetrics struct {
	rowsProcessed atomic.Int64
	cacheHits     atomic.Int64
	apiCalls      atomic.Int64
	failures      atomic.Int64
	latencyNanos  atomic.Int64
}

func (m *RunMetrics) addLatency(d time.Duration) {
	m.latencyNanos.Add(int64(d))
}

// Snapshot is the finalized, read-only view of a run's metrics.
type Snapshot struct {
	RowsProcessed int
	CacheHits     int
	APICalls      int
	Failures      int
	TotalLatency  time.Duration
}

func (m *RunMetrics) Snapshot() Snapshot {
	return Snapshot{
		RowsProcessed: int(m.rowsProcessed.Load()),
		CacheHits:     int(m.cacheHits.Load()),
		APICalls:      int(m.apiCalls.Load()),
		Failures:      int(m.failures.Load()),
		TotalLatency:  time.Duration(m.latencyNanos.Load()),
	}
}

// AvgCallLatency is the mean gateway latency across API calls.
func (s Snapshot) AvgCallLatency() time.Duration {
	if s.APICalls == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.APICalls)
}
