package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects engine runtime metrics.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	BlocksWritten     int64
	LinksWritten      int64
	BlocksDeleted     int64
	BulkOps           int64
	ConnectionRetries int64
	CacheHits         int64
	CacheMisses       int64
	BranchSwitches    int64

	// Histograms (simplified)
	writeDurations []time.Duration
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		writeDurations: make([]time.Duration, 0, 1000),
	}
}

// IncBlocksWritten increments the blocks written counter.
func (m *Metrics) IncBlocksWritten() {
	atomic.AddInt64(&m.BlocksWritten, 1)
}

// IncLinksWritten increments the links written counter.
func (m *Metrics) IncLinksWritten() {
	atomic.AddInt64(&m.LinksWritten, 1)
}

// IncBlocksDeleted increments the blocks deleted counter.
func (m *Metrics) IncBlocksDeleted() {
	atomic.AddInt64(&m.BlocksDeleted, 1)
}

// IncBulkOps increments the bulk operations counter.
func (m *Metrics) IncBulkOps() {
	atomic.AddInt64(&m.BulkOps, 1)
}

// IncConnectionRetries increments the transparent reconnect counter.
func (m *Metrics) IncConnectionRetries() {
	atomic.AddInt64(&m.ConnectionRetries, 1)
}

// IncCacheHits increments the namespace cache hit counter.
func (m *Metrics) IncCacheHits() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncCacheMisses increments the namespace cache miss counter.
func (m *Metrics) IncCacheMisses() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// IncBranchSwitches increments the branch switch counter.
func (m *Metrics) IncBranchSwitches() {
	atomic.AddInt64(&m.BranchSwitches, 1)
}

// RecordWriteDuration records the duration of a store write.
func (m *Metrics) RecordWriteDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDurations = append(m.writeDurations, d)
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"blocks_written":     atomic.LoadInt64(&m.BlocksWritten),
		"links_written":      atomic.LoadInt64(&m.LinksWritten),
		"blocks_deleted":     atomic.LoadInt64(&m.BlocksDeleted),
		"bulk_ops":           atomic.LoadInt64(&m.BulkOps),
		"connection_retries": atomic.LoadInt64(&m.ConnectionRetries),
		"cache_hits":         atomic.LoadInt64(&m.CacheHits),
		"cache_misses":       atomic.LoadInt64(&m.CacheMisses),
		"branch_switches":    atomic.LoadInt64(&m.BranchSwitches),
	}
}

// AvgWriteDuration returns the mean write duration, or zero if none recorded.
func (m *Metrics) AvgWriteDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.writeDurations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.writeDurations {
		total += d
	}
	return total / time.Duration(len(m.writeDurations))
}
