package authtokens

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricIssue counts successful Issue calls.
	MetricIssue MetricID = iota
	// MetricIssueFailure counts failed Issue calls.
	MetricIssueFailure
	// MetricRefreshSuccess counts successful rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts every failed refresh, whatever the cause.
	MetricRefreshFailure
	// MetricRefreshMismatch counts refreshes rejected for a stale value or CSRF token.
	MetricRefreshMismatch
	// MetricRefreshNotFound counts refreshes with no live session.
	MetricRefreshNotFound
	// MetricRefreshRateLimited counts refreshes rejected by the throttle.
	MetricRefreshRateLimited
	// MetricAccessInvalid counts rejected access tokens.
	MetricAccessInvalid
	// MetricRevoke counts revocations, including no-op ones.
	MetricRevoke
	// MetricStorageError counts storage backend failures.
	MetricStorageError
	// MetricRefreshLatency is the refresh latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const histBucketCount = 8

// latencyBounds are the inclusive upper bounds, in milliseconds, of every
// latency bucket but the last.
var latencyBounds = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the refresh latency histogram.
// All methods are safe on a nil receiver.
type Metrics struct {
	enabled bool
	latency bool
	slots   [metricIDCount]counterSlot
	refresh [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histogram buckets
// are non-cumulative with upper bounds 5, 10, 25, 50, 100, 250, 500 ms and +Inf.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metrics set configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.enabled }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to counter id. MetricRefreshLatency is not a counter.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || id == MetricRefreshLatency {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d for id. Only [MetricRefreshLatency] has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricRefreshLatency {
		return
	}
	m.refresh[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

// Snapshot copies every counter, and the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := range metricIDCount {
		if id != MetricRefreshLatency {
			s.Counters[id] = m.slots[id].n.Load()
		}
	}
	if m.latency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.refresh[i].Load()
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBounds {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
