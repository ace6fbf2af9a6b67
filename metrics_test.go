package authtokens

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricIssue)
	m.Inc(MetricIssue)
	m.Inc(MetricRevoke)
	m.Inc(metricIDCount)

	s := m.Snapshot()
	if s.Counters[MetricIssue] != 2 || s.Counters[MetricRevoke] != 1 {
		t.Fatalf("unexpected counters %v", s.Counters)
	}
	if _, ok := s.Counters[MetricRefreshLatency]; ok {
		t.Fatal("latency must not appear as a counter")
	}
	if len(s.Histograms) != 0 {
		t.Fatal("histograms disabled")
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricIssue)
	m.Observe(MetricRefreshLatency, time.Millisecond)
	if m.Value(MetricIssue) != 0 || m.LatencyEnabled() {
		t.Fatal("disabled metrics must not record")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot must be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricIssue)
	if nilMetrics.Enabled() || nilMetrics.Value(MetricIssue) != 0 {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsLatencyBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricRefreshLatency, 2*time.Millisecond)
	m.Observe(MetricRefreshLatency, 30*time.Millisecond)
	m.Observe(MetricRefreshLatency, time.Second)
	m.Observe(MetricIssue, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricRefreshLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	want := []uint64{1, 0, 0, 1, 0, 0, 0, 1}
	for i := range want {
		if buckets[i] != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d", i, want[i], buckets[i])
		}
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()
	if got := m.Value(MetricRefreshSuccess); got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
}

func TestEngineRecordsRefreshLatency(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	engine, _ := newMemoryEngine(t, cfg)

	set, err := engine.Issue(context.Background(), "m1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, _ = engine.Refresh(context.Background(), set.RefreshToken, set.CSRFToken)

	var total uint64
	for _, n := range engine.MetricsSnapshot().Histograms[MetricRefreshLatency] {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected one latency sample, got %d", total)
	}
}
