/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package reportclient implements queue.Executor on top of the upstream report backend.
package reportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/railreport/reportqueue/httpclient"
	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/lrucache"
	"github.com/railreport/reportqueue/queue"
)

const requestType = "generate-report"

// maxErrorBodySize bounds how much of a failed response is read for the error message.
const maxErrorBodySize = 4096

// Opts represents optional parameters of Client.
type Opts struct {
	// Transport is the innermost round tripper (tests, custom TLS).
	Transport        http.RoundTripper
	MetricsCollector httpclient.MetricsCollector
	CacheMetrics     lrucache.MetricsCollector
}

// Client generates reports by calling the upstream backend. It implements queue.Executor.
type Client struct {
	url        string
	httpClient *http.Client
	cache      *lrucache.LRUCache[string, queue.Result]
	logger     log.FieldLogger
}

var _ queue.Executor = (*Client)(nil)

// New creates a new Client.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*Client, error) {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	httpClient, err := httpclient.New(&cfg.HTTPClient, httpclient.Opts{
		UserAgent:        cfg.UserAgent,
		RequestType:      requestType,
		Delegate:         opts.Transport,
		LoggerProvider:   func(ctx context.Context) log.FieldLogger { return logger },
		MetricsCollector: opts.MetricsCollector,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	c := &Client{url: cfg.URL, httpClient: httpClient, logger: logger}
	if cfg.Cache.Enabled {
		if c.cache, err = lrucache.NewWithOpts[string, queue.Result](cfg.Cache.MaxEntries, opts.CacheMetrics,
			lrucache.Options{DefaultTTL: time.Duration(cfg.Cache.TTL)}); err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
	}
	return c, nil
}

// Cache returns the result cache, nil when caching is disabled.
func (c *Client) Cache() *lrucache.LRUCache[string, queue.Result] {
	return c.cache
}

// Execute generates the report described by the payload.
func (c *Client) Execute(ctx context.Context, payload queue.Payload) (queue.Result, error) {
	req, err := DecodeReportRequest(payload)
	if err != nil {
		return nil, err
	}
	if c.cache == nil {
		return c.generate(ctx, req)
	}
	key := req.cacheKey()
	if result, ok := c.cache.Get(key); ok {
		c.logger.Debug("report result taken from cache", log.String("train", req.TrainNumber()))
		return result, nil
	}
	result, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, result)
	return result, nil
}

type upstreamRequest struct {
	TrainModel  string `json:"trainModel"`
	JourneyDate string `json:"journeyDate"`
	AuthToken   string `json:"authToken"`
	DeviceKey   string `json:"deviceKey"`
}

func (c *Client) generate(ctx context.Context, req ReportRequest) (queue.Result, error) {
	body, err := json.Marshal(upstreamRequest{
		TrainModel: req.TrainNumber(), JourneyDate: req.JourneyDate, AuthToken: req.AuthToken, DeviceKey: req.DeviceKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportFailure(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body, resp.Status)
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, queue.NewInvalidPayload(msg)
		}
		return nil, queue.NewUpstreamError(resp.StatusCode, msg)
	}

	var result queue.Result
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, transportFailure(fmt.Errorf("decode upstream response: %w", err))
	}
	if success, ok := result["success"].(bool); ok && !success {
		return nil, queue.NewUpstreamError(resp.StatusCode, errorMessageOf(result, "report generation failed"))
	}
	return result, nil
}

func transportFailure(err error) error {
	var waitErr *httpclient.RateLimitingWaitError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &waitErr):
		return queue.NewUpstreamTimeout(err.Error())
	case errors.As(err, &netErr) && netErr.Timeout():
		return queue.NewUpstreamTimeout(err.Error())
	case errors.Is(err, context.Canceled):
		return err
	}
	return queue.NewUpstreamError(0, err.Error())
}

func readErrorMessage(body io.Reader, fallback string) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return fallback
	}
	var parsed map[string]interface{}
	if json.Unmarshal(data, &parsed) == nil {
		return errorMessageOf(parsed, fallback)
	}
	return string(data)
}

func errorMessageOf(m map[string]interface{}, fallback string) string {
	for _, key := range []string{"error", "message"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
