/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/httpserver/middleware"
	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/log/logtest"
)

type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respondWith(status int, header http.Header) roundTripperFunc {
	if header == nil {
		header = http.Header{}
	}
	return func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: status, Header: header, Body: http.NoBody, Request: r}, nil
	}
}

func TestUserAgentRoundTripper(t *testing.T) {
	tests := []struct {
		name      string
		strategy  UserAgentUpdateStrategy
		reqHeader string
		want      string
	}{
		{"set if empty, empty", UserAgentUpdateStrategySetIfEmpty, "", "reportqueue"},
		{"set if empty, present", UserAgentUpdateStrategySetIfEmpty, "curl", "curl"},
		{"append", UserAgentUpdateStrategyAppend, "curl", "curl reportqueue"},
		{"prepend", UserAgentUpdateStrategyPrepend, "curl", "reportqueue curl"},
		{"append to empty", UserAgentUpdateStrategyAppend, "", "reportqueue"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var got string
			rt := NewUserAgentRoundTripperWithStrategy(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				got = r.Header.Get("User-Agent")
				return respondWith(http.StatusOK, nil)(r)
			}), "reportqueue", tt.strategy)
			req := httptest.NewRequest(http.MethodGet, "http://upstream/report", nil)
			if tt.reqHeader != "" {
				req.Header.Set("User-Agent", tt.reqHeader)
			}
			_, err := rt.RoundTrip(req)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.reqHeader, req.Header.Get("User-Agent"), "original request must not be modified")
		})
	}
}

func TestRequestIDRoundTripper(t *testing.T) {
	var got string
	rt := NewRequestIDRoundTripper(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		got = r.Header.Get(RequestIDHeader)
		return respondWith(http.StatusOK, nil)(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://upstream/report", nil)
	req = req.WithContext(middleware.NewContextWithRequestID(req.Context(), "abc"))
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "abc", got)

	req.Header.Set(RequestIDHeader, "explicit")
	_, err = rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "explicit", got)

	_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://upstream/report", nil))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLoggingRoundTripper(t *testing.T) {
	tests := []struct {
		name      string
		mode      LoggingMode
		threshold time.Duration
		delegate  roundTripperFunc
		wantLevel log.Level
		wantNoLog bool
	}{
		{name: "all, ok", mode: LoggingModeAll, delegate: respondWith(http.StatusOK, nil), wantLevel: log.LevelInfo},
		{name: "all, fast", mode: LoggingModeAll, threshold: time.Hour, delegate: respondWith(http.StatusOK, nil), wantNoLog: true},
		{name: "failed, ok", mode: LoggingModeFailed, delegate: respondWith(http.StatusOK, nil), wantNoLog: true},
		{name: "failed, 502", mode: LoggingModeFailed, delegate: respondWith(http.StatusBadGateway, nil), wantLevel: log.LevelWarn},
		{
			name: "all, transport error", mode: LoggingModeAll, threshold: time.Hour, wantLevel: log.LevelError,
			delegate: func(r *http.Request) (*http.Response, error) { return nil, errors.New("connection refused") },
		},
		{name: "none", mode: LoggingModeNone, delegate: respondWith(http.StatusBadGateway, nil), wantNoLog: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			logger := logtest.NewRecorder()
			rt := NewLoggingRoundTripperWithOpts(tt.delegate, "generate-report", LoggingRoundTripperOpts{
				LoggerProvider:       func(ctx context.Context) log.FieldLogger { return logger },
				Mode:                 tt.mode,
				SlowRequestThreshold: tt.threshold,
			})
			lp := &middleware.LoggingParams{}
			req := httptest.NewRequest(http.MethodPost, "http://upstream/report", nil)
			req = req.WithContext(middleware.NewContextWithLoggingParams(req.Context(), lp))
			_, _ = rt.RoundTrip(req)

			if tt.wantNoLog {
				require.Empty(t, logger.Entries())
				return
			}
			require.Len(t, logger.Entries(), 1)
			entry := logger.Entries()[0]
			require.Equal(t, tt.wantLevel, entry.Level)
			field, ok := entry.FindField("client_type")
			require.True(t, ok)
			require.Equal(t, "generate-report", string(field.Bytes))
		})
	}
}

func TestMetricsRoundTripper(t *testing.T) {
	collector := NewPrometheusMetricsCollector("")
	rt := NewMetricsRoundTripper(respondWith(http.StatusAccepted, nil), "generate-report", collector)

	req := httptest.NewRequest(http.MethodPost, "http://upstream/report", nil)
	_, err := rt.RoundTrip(req.WithContext(NewContextWithRequestType(req.Context(), "status")))
	require.NoError(t, err)
	_, err = rt.RoundTrip(httptest.NewRequest(http.MethodPost, "http://upstream/report", nil))
	require.NoError(t, err)

	require.Equal(t, 2, testutil.CollectAndCount(collector.Durations))
}

func TestNewRateLimitingRoundTripper(t *testing.T) {
	tests := []struct {
		name      string
		rateLimit int
		opts      RateLimitingRoundTripperOpts
		wantErr   string
	}{
		{name: "zero rate", rateLimit: 0, wantErr: "rate limit must be positive"},
		{name: "negative burst", rateLimit: 1, opts: RateLimitingRoundTripperOpts{Burst: -1}, wantErr: "burst must not be negative"},
		{
			name: "slack percent", rateLimit: 1, wantErr: "slack percent must be in range",
			opts: RateLimitingRoundTripperOpts{Adaptation: RateLimitingRoundTripperAdaptation{SlackPercent: 101}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRateLimitingRoundTripperWithOpts(respondWith(http.StatusOK, nil), tt.rateLimit, tt.opts)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}

	rt, err := NewRateLimitingRoundTripper(respondWith(http.StatusOK, nil), 5)
	require.NoError(t, err)
	require.Equal(t, DefaultRateLimitingBurst, rt.Burst)
	require.Equal(t, DefaultRateLimitingWaitTimeout, rt.WaitTimeout)
}

func TestRateLimitingRoundTripper(t *testing.T) {
	t.Run("requests are spaced", func(t *testing.T) {
		rt, err := NewRateLimitingRoundTripper(respondWith(http.StatusOK, nil), 10)
		require.NoError(t, err)

		var wg sync.WaitGroup
		start := time.Now()
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, rtErr := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://upstream/", nil))
				require.NoError(t, rtErr)
			}()
		}
		wg.Wait()
		require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	})

	t.Run("wait timeout", func(t *testing.T) {
		rt, err := NewRateLimitingRoundTripperWithOpts(respondWith(http.StatusOK, nil), 1,
			RateLimitingRoundTripperOpts{WaitTimeout: 10 * time.Millisecond})
		require.NoError(t, err)

		_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://upstream/", nil))
		require.NoError(t, err)
		_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://upstream/", nil))
		var waitErr *RateLimitingWaitError
		require.ErrorAs(t, err, &waitErr)
	})

	t.Run("adaptation", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-Rate-Limit", "10")
		rt, err := NewRateLimitingRoundTripperWithOpts(respondWith(http.StatusOK, header), 100,
			RateLimitingRoundTripperOpts{Adaptation: RateLimitingRoundTripperAdaptation{
				ResponseHeaderName: "X-Rate-Limit", SlackPercent: 50,
			}})
		require.NoError(t, err)

		_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://upstream/", nil))
		require.NoError(t, err)
		require.EqualValues(t, 5, rt.limiter.Limit())

		header.Del("X-Rate-Limit")
		_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://upstream/", nil))
		require.NoError(t, err)
		require.EqualValues(t, 100, rt.limiter.Limit())
	})
}
