/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector collects statistics of cache usage.
type MetricsCollector interface {
	SetAmount(int)
	IncHits()
	IncMisses()
	AddEvictions(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

// PrometheusMetrics implements MetricsCollector with Prometheus gauges and counters.
type PrometheusMetrics struct {
	Entries   prometheus.Gauge
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates PrometheusMetrics with the given options.
func NewPrometheusMetrics(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "cache_entries",
			Help:        "Current number of entries in the cache.",
			ConstLabels: opts.ConstLabels,
		}),
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "cache_hits_total",
			Help:        "Number of lookups that found a live entry.",
			ConstLabels: opts.ConstLabels,
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "cache_misses_total",
			Help:        "Number of lookups that found nothing or an expired entry.",
			ConstLabels: opts.ConstLabels,
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "cache_evictions_total",
			Help:        "Number of entries evicted to make room for new ones.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister registers the metrics in the default Prometheus registry and panics on error.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Entries, pm.Hits, pm.Misses, pm.Evictions)
}

// Unregister removes the metrics from the default Prometheus registry.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Entries)
	prometheus.Unregister(pm.Hits)
	prometheus.Unregister(pm.Misses)
	prometheus.Unregister(pm.Evictions)
}

func (pm *PrometheusMetrics) SetAmount(n int)    { pm.Entries.Set(float64(n)) }
func (pm *PrometheusMetrics) IncHits()           { pm.Hits.Inc() }
func (pm *PrometheusMetrics) IncMisses()         { pm.Misses.Inc() }
func (pm *PrometheusMetrics) AddEvictions(n int) { pm.Evictions.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}
