package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authtokens"
	"github.com/MrEthical07/authtokens/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is satisfied by *authtokens.Engine.
type MetricsSource interface {
	MetricsSnapshot() authtokens.MetricsSnapshot
	AuditDropped() uint64
}

// histogramGauges reports one engine histogram as a cumulative bucket gauge
// keyed by the "le" attribute, plus a sample count.
type histogramGauges struct {
	id      authtokens.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter observes a [MetricsSource] on every collection until Close.
type Exporter struct {
	source       MetricsSource
	counters     map[authtokens.MetricID]metric.Int64ObservableCounter
	histograms   []histogramGauges
	auditDropped metric.Int64ObservableCounter
	leSets       [internaldefs.BucketCount]metric.MeasurementOption
	registration metric.Registration
}

// NewExporter registers instruments on meter that observe source.
func NewExporter(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}
	if e, ok := source.(*authtokens.Engine); ok && e == nil {
		return nil, ErrNilSource
	}

	exp := &Exporter{
		source:   source,
		counters: make(map[authtokens.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	for i := range exp.leSets {
		exp.leSets[i] = metric.WithAttributes(attribute.String("le", internaldefs.BucketLabel(i)))
	}

	observables, err := exp.instruments(meter)
	if err != nil {
		return nil, err
	}
	exp.registration, err = meter.RegisterCallback(exp.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return exp, nil
}

func (e *Exporter) instruments(meter metric.Meter) ([]metric.Observable, error) {
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("histogram %s buckets: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("histogram %s count: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramGauges{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	return append(observables, dropped), nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 {
		return nil
	}

	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, h := range e.histograms {
		raw, ok := snap.Histograms[h.id]
		if !ok {
			continue
		}
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, v := range cum {
			o.ObserveInt64(h.buckets, int64(v), e.leSets[i])
		}
		o.ObserveInt64(h.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay on the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
