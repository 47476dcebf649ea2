/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/railreport/reportqueue/httpserver/middleware"
	"github.com/railreport/reportqueue/log"
)

// LoggingMode defines which requests are logged.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid reports whether the mode is known.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider defaults to middleware.GetLoggerFromContext.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode defaults to LoggingModeAll.
	Mode LoggingMode

	// Requests faster than SlowRequestThreshold are not logged (failed ones are logged always).
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper logs outgoing requests and reports their duration to the logging params
// of the incoming request, so the access log shows the time spent upstream.
type LoggingRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Opts        LoggingRoundTripperOpts
}

// NewLoggingRoundTripper creates a LoggingRoundTripper that logs every request.
func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) *LoggingRoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates a LoggingRoundTripper with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts,
) *LoggingRoundTripper {
	if opts.LoggerProvider == nil {
		opts.LoggerProvider = middleware.GetLoggerFromContext
	}
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	return &LoggingRoundTripper{Delegate: delegate, RequestType: reqType, Opts: opts}
}

// RoundTrip executes the request and logs its outcome.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	reqType := requestTypeOrDefault(ctx, rt.RequestType)
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.AddTimeSlotDurationInMs(fmt.Sprintf("external_request_%s_ms", reqType), elapsed)
	}

	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	if !failed && (rt.Opts.Mode == LoggingModeFailed || elapsed < rt.Opts.SlowRequestThreshold) {
		return resp, err
	}
	logger := rt.Opts.LoggerProvider(ctx)
	if logger == nil {
		return resp, err
	}

	fields := []log.Field{
		log.String("client_type", reqType),
		log.String("method", r.Method),
		log.String("url", r.URL.Redacted()),
		log.DurationIn("duration_ms", elapsed, time.Millisecond),
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}
	msg := fmt.Sprintf("client http request %s %s completed in %.3fs", r.Method, r.URL.Redacted(), elapsed.Seconds())
	switch {
	case err != nil:
		logger.Error(msg, append(fields, log.Error(err))...)
	case failed:
		logger.Warn(msg, fields...)
	default:
		logger.Info(msg, fields...)
	}
	return resp, err
}
