package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/authtokens"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authtokens.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authtokens.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authtokens.MetricsSnapshot{
		Counters:   make(map[authtokens.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[authtokens.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// int64Value finds the single data point of an Int64 sum or gauge by name.
func int64Value(t *testing.T, rm metricdata.ResourceMetrics, name string) (int64, bool) {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) == 1 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) == 1 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

// bucketValue finds the Int64 gauge point of name whose "le" attribute is le.
func bucketValue(t *testing.T, rm metricdata.ResourceMetrics, name, le string) (int64, bool) {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if m.Name != name || !ok {
				continue
			}
			for _, dp := range gauge.DataPoints {
				if v, found := dp.Attributes.Value(attribute.Key("le")); found && v.AsString() == le {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterCollectsValues(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: authtokens.MetricsSnapshot{
			Counters: map[authtokens.MetricID]uint64{
				authtokens.MetricIssue: 3,
			},
			Histograms: map[authtokens.MetricID][]uint64{
				authtokens.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("authtokens-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	checks := map[string]int64{
		"authtokens_issue_total":                   3,
		"authtokens_audit_dropped_total":           1,
		"authtokens_refresh_latency_seconds_count": 8,
	}
	for name, want := range checks {
		got, ok := int64Value(t, rm, name)
		if !ok {
			t.Fatalf("metric %s not collected", name)
		}
		if got != want {
			t.Fatalf("metric %s: expected %d, got %d", name, want, got)
		}
	}

	for le, want := range map[string]int64{"0.01": 2, "0.5": 7, "+Inf": 8} {
		got, ok := bucketValue(t, rm, "authtokens_refresh_latency_seconds_bucket", le)
		if !ok || got != want {
			t.Fatalf("bucket le=%s: expected %d, got %d (found=%v)", le, want, got, ok)
		}
	}
}

func TestExporterObservesEngine(t *testing.T) {
	cfg := authtokens.DefaultConfig()
	cfg.Tokens.SignSecret = "otel-sign-secret-0123456"
	cfg.Tokens.EncryptSecret = "otel-encrypt-secret-0123456"
	engine, err := authtokens.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	reader, provider := newReader()
	exp, err := NewExporter(provider.Meter("authtokens-test"), engine)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	if _, err := engine.Issue(context.Background(), "alice"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got, ok := int64Value(t, rm, "authtokens_issue_total"); !ok || got != 1 {
		t.Fatalf("expected issue counter 1, got %d (found=%v)", got, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("authtokens-test")

	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	var engine *authtokens.Engine
	if _, err := NewExporter(meter, engine); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: authtokens.MetricsSnapshot{
			Counters: map[authtokens.MetricID]uint64{
				authtokens.MetricRefreshSuccess: 1,
			},
			Histograms: map[authtokens.MetricID][]uint64{},
		},
	}

	exp, err := NewExporter(provider.Meter("authtokens-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authtokens.MetricRefreshSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
