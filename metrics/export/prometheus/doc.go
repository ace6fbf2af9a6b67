// Package prometheus exposes engine metrics through prometheus/client_golang.
//
// [Exporter] is a prometheus.Collector that reads Engine.MetricsSnapshot on
// every scrape. Register it with any registry, or mount [Exporter.Handler]
// which serves a private registry. Counter names are authtokens_*_total; the
// single histogram is authtokens_refresh_latency_seconds.
package prometheus
