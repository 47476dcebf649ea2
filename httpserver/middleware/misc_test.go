/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/testutil"
)

func TestNoCache(t *testing.T) {
	rec := httptest.NewRecorder()
	NoCache(newStatusHandler(http.StatusOK)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	require.Equal(t, "0", rec.Header().Get("Expires"))
}

func TestBlockedPaths(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) { called = true })
	handler := BlockedPaths([]string{"/cdn-cgi/*"})(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cdn-cgi/rum", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, rec.Body.String())
	require.False(t, called)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/reportqueue/v1/stats", nil))
	require.True(t, called)
}

func TestMaintenance(t *testing.T) {
	sw := NewMaintenanceSwitch(false, "")
	handler := Maintenance(sw, "ReportQueue")(newStatusHandler(http.StatusOK))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	sw.Enable("Backend upgrade until 14:00.")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t,
		`{"error":{"domain":"ReportQueue","code":"maintenance","message":"Backend upgrade until 14:00."}}`, rec.Body.String())

	sw.Disable()
	require.False(t, sw.Enabled())
}

func TestHTTPRequestMetrics(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector(HTTPRequestMetricsCollectorOpts{})
	getPattern := func(r *http.Request) string { return "/requests/{id}" }
	handler := HTTPRequestMetrics(collector, getPattern, []string{"/metrics"})(newStatusHandler(http.StatusNotFound))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/requests/42", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, 1, promtestutil.CollectAndCount(collector.Durations))
	labels := []string{http.MethodGet, "/requests/{id}", userAgentTypeHTTPClient}
	require.Equal(t, 0.0, promtestutil.ToFloat64(collector.InFlight.WithLabelValues(labels...)))
	testutil.RequireSamplesCountInHistogram(t, collector.Durations.WithLabelValues(append(labels, "404")...), 1)
}
