package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/authtokens"
	"github.com/MrEthical07/authtokens/metrics/export/internaldefs"
)

// MetricsSource is satisfied by *authtokens.Engine.
type MetricsSource interface {
	MetricsSnapshot() authtokens.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   authtokens.MetricID
	desc *prom.Desc
}

// Exporter converts engine snapshots into const metrics at collect time.
type Exporter struct {
	source       MetricsSource
	counters     []counterDesc
	histograms   []counterDesc
	auditDropped *prom.Desc
}

var _ prom.Collector = (*Exporter)(nil)

// NewExporter creates an exporter reading from source, typically an
// *authtokens.Engine.
func NewExporter(source MetricsSource) *Exporter {
	e := &Exporter{
		source:       source,
		counters:     make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]counterDesc, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prom.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		e.counters = append(e.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		e.histograms = append(e.histograms, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return e
}

func (e *Exporter) Describe(ch chan<- *prom.Desc) {
	for _, c := range e.counters {
		ch <- c.desc
	}
	for _, h := range e.histograms {
		ch <- h.desc
	}
	ch <- e.auditDropped
}

// Collect emits nothing when the engine has metrics disabled.
func (e *Exporter) Collect(ch chan<- prom.Metric) {
	if e == nil || e.source == nil {
		return
	}

	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return
	}

	for _, c := range e.counters {
		ch <- prom.MustNewConstMetric(c.desc, prom.CounterValue, float64(snapshot.Counters[c.id]))
	}

	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for i, le := range internaldefs.HistogramBounds {
			buckets[le] = cumulative[i]
		}
		// Snapshots carry no sum.
		ch <- prom.MustNewConstHistogram(h.desc, cumulative[internaldefs.BucketCount-1], 0, buckets)
	}

	ch <- prom.MustNewConstMetric(e.auditDropped, prom.CounterValue, float64(e.source.AuditDropped()))
}

// Handler serves the exporter from its own registry, leaving the global
// registry untouched.
func (e *Exporter) Handler() http.Handler {
	reg := prom.NewRegistry()
	reg.MustRegister(e)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
