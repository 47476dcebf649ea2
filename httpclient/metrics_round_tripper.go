/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector collects metrics of outgoing requests.
type MetricsCollector interface {
	// RequestDuration observes a finished request. Status is "0" for transport errors.
	RequestDuration(requestType, host, method, status string, duration time.Duration)
}

// PrometheusMetricsCollector is a MetricsCollector backed by a Prometheus histogram.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

var defaultDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// NewPrometheusMetricsCollector creates a new PrometheusMetricsCollector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "A histogram of the http client requests durations.",
			Buckets:   defaultDurationBuckets,
		}, []string{"type", "remote_address", "method", "status"}),
	}
}

// MustRegister registers the metrics in the default Prometheus registry.
func (c *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations)
}

// Unregister unregisters the metrics from the default Prometheus registry.
func (c *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(c.Durations)
}

// RequestDuration implements MetricsCollector.
func (c *PrometheusMetricsCollector) RequestDuration(requestType, host, method, status string, duration time.Duration) {
	c.Durations.WithLabelValues(requestType, host, method, status).Observe(duration.Seconds())
}

// MetricsRoundTripper measures outgoing requests.
type MetricsRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Collector   MetricsCollector
}

// NewMetricsRoundTripper creates a new MetricsRoundTripper.
func NewMetricsRoundTripper(delegate http.RoundTripper, reqType string, collector MetricsCollector) *MetricsRoundTripper {
	return &MetricsRoundTripper{Delegate: delegate, RequestType: reqType, Collector: collector}
}

// RoundTrip executes the request and reports its duration to the collector.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := "0"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	reqType := requestTypeOrDefault(r.Context(), rt.RequestType)
	rt.Collector.RequestDuration(reqType, r.URL.Host, r.Method, status, time.Since(start))
	return resp, err
}
