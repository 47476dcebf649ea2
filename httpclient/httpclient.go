/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient builds http.Client instances whose transport is a chain of round trippers
// (request id, user agent, rate limiting, logging, metrics) configured from config.DataProvider.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/railreport/reportqueue/log"
)

// DefaultRequestType is used in logs and metrics when no request type is specified.
const DefaultRequestType = "unknown"

// Opts provides options for New and Must.
type Opts struct {
	// UserAgent is set to requests without the User-Agent header.
	UserAgent string

	// RequestType names the upstream call in logs and metrics (e.g. "generate-report").
	RequestType string

	// Delegate is the innermost transport. A clone of http.DefaultTransport is used when nil.
	Delegate http.RoundTripper

	// LoggerProvider returns the logger for the request context.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider returns the request id propagated in X-Request-ID.
	RequestIDProvider func(ctx context.Context) string

	// MetricsCollector receives request durations when metrics are enabled.
	MetricsCollector MetricsCollector
}

// New creates an http.Client with the round tripper chain described by cfg.
// The outermost round tripper sets X-Request-ID, the innermost one measures the request.
func New(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}
	reqType := opts.RequestType
	if reqType == "" {
		reqType = DefaultRequestType
	}

	if cfg.Metrics.Enabled && opts.MetricsCollector != nil {
		delegate = NewMetricsRoundTripper(delegate, reqType, opts.MetricsCollector)
	}

	if cfg.Log.Enabled {
		delegate = NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{
			LoggerProvider:       opts.LoggerProvider,
			Mode:                 cfg.Log.Mode,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
		})
	}

	if cfg.RateLimits.Enabled {
		var err error
		if delegate, err = NewRateLimitingRoundTripperWithOpts(delegate, cfg.RateLimits.Limit, RateLimitingRoundTripperOpts{
			Burst:       cfg.RateLimits.Burst,
			WaitTimeout: time.Duration(cfg.RateLimits.WaitTimeout),
		}); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{RequestIDProvider: opts.RequestIDProvider})

	return &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)}, nil
}

// Must is like New but panics on error.
func Must(cfg *Config, opts Opts) *http.Client {
	client, err := New(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}

// cloneRequest returns a shallow copy of the request with its own headers.
// Round trippers must not modify the request they were given.
func cloneRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = req.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	return r
}
