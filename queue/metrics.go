/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/railreport/reportqueue/service"
)

// MetricsCollector receives controller events.
type MetricsCollector interface {
	IncEnqueued()
	ObservePromotion(waited time.Duration)
	ObserveOutcome(status Status, executed time.Duration)
	IncAbandoned(wasProcessing bool)
	IncOrphanedOutcomes()
	AddEvicted(n int)
	SetEntries(counts map[Status]int)
}

// PrometheusMetricsOpts are options of PrometheusMetrics.
type PrometheusMetricsOpts struct {
	Namespace   string
	ConstLabels prometheus.Labels

	// DurationBuckets are histogram buckets (in seconds) for wait and execution durations.
	DurationBuckets []float64
}

// PrometheusMetrics is a MetricsCollector backed by Prometheus.
type PrometheusMetrics struct {
	EnqueuedTotal     prometheus.Counter
	PromotionsTotal   prometheus.Counter
	OutcomesTotal     *prometheus.CounterVec
	AbandonedTotal    *prometheus.CounterVec
	OrphanedOutcomes  prometheus.Counter
	EvictedTotal      prometheus.Counter
	WaitDuration      prometheus.Histogram
	ExecutionDuration *prometheus.HistogramVec
	Entries           *prometheus.GaugeVec
}

var defaultDurationBuckets = []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600}

// NewPrometheusMetrics creates PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates PrometheusMetrics.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = defaultDurationBuckets
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace, Name: name, Help: help, ConstLabels: opts.ConstLabels,
		})
	}
	return &PrometheusMetrics{
		EnqueuedTotal:    counter("queue_enqueued_total", "Number of accepted requests."),
		PromotionsTotal:  counter("queue_promotions_total", "Number of requests promoted to processing."),
		OrphanedOutcomes: counter("queue_orphaned_outcomes_total", "Number of executor outcomes discarded because the request was no longer processing."),
		EvictedTotal:     counter("queue_evicted_total", "Number of finished requests removed from memory."),
		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace, Name: "queue_outcomes_total",
			Help: "Number of requests that reached a terminal status.", ConstLabels: opts.ConstLabels,
		}, []string{"status"}),
		AbandonedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace, Name: "queue_abandoned_total",
			Help: "Number of requests cancelled because of missing heartbeats.", ConstLabels: opts.ConstLabels,
		}, []string{"stage"}),
		WaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: opts.Namespace, Name: "queue_wait_duration_seconds",
			Help: "Time spent by requests in the queue before promotion.", ConstLabels: opts.ConstLabels,
			Buckets: buckets,
		}),
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace, Name: "queue_execution_duration_seconds",
			Help: "Executor call duration.", ConstLabels: opts.ConstLabels,
			Buckets: buckets,
		}, []string{"status"}),
		Entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: opts.Namespace, Name: "queue_entries",
			Help: "Number of stored requests by status.", ConstLabels: opts.ConstLabels,
		}, []string{"status"}),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		pm.EnqueuedTotal, pm.PromotionsTotal, pm.OutcomesTotal, pm.AbandonedTotal, pm.OrphanedOutcomes,
		pm.EvictedTotal, pm.WaitDuration, pm.ExecutionDuration, pm.Entries,
	}
}

// MustRegisterMetrics registers the metrics in the default Prometheus registry.
func (pm *PrometheusMetrics) MustRegisterMetrics() {
	prometheus.MustRegister(pm.collectors()...)
}

// UnregisterMetrics removes the metrics from the default Prometheus registry.
func (pm *PrometheusMetrics) UnregisterMetrics() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

func (pm *PrometheusMetrics) IncEnqueued() { pm.EnqueuedTotal.Inc() }

func (pm *PrometheusMetrics) ObservePromotion(waited time.Duration) {
	pm.PromotionsTotal.Inc()
	pm.WaitDuration.Observe(waited.Seconds())
}

func (pm *PrometheusMetrics) ObserveOutcome(status Status, executed time.Duration) {
	pm.OutcomesTotal.WithLabelValues(string(status)).Inc()
	if executed > 0 {
		pm.ExecutionDuration.WithLabelValues(string(status)).Observe(executed.Seconds())
	}
}

func (pm *PrometheusMetrics) IncAbandoned(wasProcessing bool) {
	stage := string(StatusQueued)
	if wasProcessing {
		stage = string(StatusProcessing)
	}
	pm.AbandonedTotal.WithLabelValues(stage).Inc()
}

func (pm *PrometheusMetrics) IncOrphanedOutcomes() { pm.OrphanedOutcomes.Inc() }

func (pm *PrometheusMetrics) AddEvicted(n int) { pm.EvictedTotal.Add(float64(n)) }

func (pm *PrometheusMetrics) SetEntries(counts map[Status]int) {
	for _, s := range AllStatuses {
		pm.Entries.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

var (
	_ service.MetricsRegisterer = (*PrometheusMetrics)(nil)
	_ service.MetricsRegisterer = (*Controller)(nil)
)

type disabledMetrics struct{}

func (disabledMetrics) IncEnqueued()                         {}
func (disabledMetrics) ObservePromotion(time.Duration)       {}
func (disabledMetrics) ObserveOutcome(Status, time.Duration) {}
func (disabledMetrics) IncAbandoned(bool)                    {}
func (disabledMetrics) IncOrphanedOutcomes()                 {}
func (disabledMetrics) AddEvicted(int)                       {}
func (disabledMetrics) SetEntries(map[Status]int)            {}

// MustRegisterMetrics registers the metrics collector if it supports registration.
func (c *Controller) MustRegisterMetrics() {
	if r, ok := c.metrics.(service.MetricsRegisterer); ok {
		r.MustRegisterMetrics()
	}
}

// UnregisterMetrics unregisters the metrics collector if it supports registration.
func (c *Controller) UnregisterMetrics() {
	if r, ok := c.metrics.(service.MetricsRegisterer); ok {
		r.UnregisterMetrics()
	}
}
