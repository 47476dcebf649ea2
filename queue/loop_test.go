/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/config"
	"github.com/railreport/reportqueue/log"
)

func TestController_Run(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.CooldownPeriod = config.TimeDuration(50 * time.Millisecond)
	cfg.TickInterval = config.TimeDuration(time.Hour)
	exec := newStubExecutor()
	metrics := NewPrometheusMetrics()
	c, err := NewControllerWithOpts(cfg, exec, log.NewDisabledLogger(), ControllerOpts{Metrics: metrics})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	// Enqueue wakes the loop, no need to wait for the (hour-long) tick.
	a, err := c.Enqueue(Payload{"name": "a"})
	require.NoError(t, err)
	b, err := c.Enqueue(Payload{"name": "b"})
	require.NoError(t, err)
	exec.nextCall(t).succeed()

	// The loop re-arms itself when the cooldown expires.
	started := time.Now()
	callB := exec.nextCall(t)
	require.Equal(t, "b", callB.name)
	require.GreaterOrEqual(t, time.Since(started), 10*time.Millisecond)

	infoA, err := c.Status(a)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, infoA.Status)

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.PromotionsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.OutcomesTotal.WithLabelValues(string(StatusCompleted))))

	// Shutdown cancels running executions and rejects new requests.
	cancel()
	require.NoError(t, <-runDone)
	require.True(t, c.Stopped())
	infoB, err := c.Status(b)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, infoB.Status)
	_, err = c.Enqueue(Payload{"name": "c"})
	require.ErrorIs(t, err, ErrStopped)
}

func TestController_RunSweepsAfterQueuedCancellations(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.CooldownPeriod = 0
	cfg.BatchCleanupThreshold = 1
	cfg.RetentionWindow = 0
	cfg.TickInterval = config.TimeDuration(time.Hour)
	clock := newFakeClock()
	exec := newStubExecutor()
	c, err := NewControllerWithOpts(cfg, exec, log.NewDisabledLogger(), ControllerOpts{Clock: clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-runDone)
	}()

	_, err = c.Enqueue(Payload{"name": "a"})
	require.NoError(t, err)
	exec.nextCall(t)
	b, err := c.Enqueue(Payload{"name": "b"})
	require.NoError(t, err)
	d, err := c.Enqueue(Payload{"name": "d"})
	require.NoError(t, err)

	// Neither cancellation frees a slot, yet the loop must notice the finished requests.
	_, err = c.Cancel(b)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = c.Cancel(d)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.Stats().EvictedTotal == 1 }, 5*time.Second, 10*time.Millisecond)
	_, err = c.Status(b)
	require.ErrorIs(t, err, ErrNotFound)
	infoD, err := c.Status(d)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, infoD.Status)
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{}`), config.DataTypeJSON, cfg))
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("values", func(t *testing.T) {
		cfg := NewConfig()
		data := `
queue:
  maxConcurrent: 2
  cooldownPeriod: 0s
  heartbeatTimeout: 30s
  retentionWindow: 1m
`
		require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(data), config.DataTypeYAML, cfg))
		require.Equal(t, 2, cfg.MaxConcurrent)
		require.Equal(t, config.TimeDuration(0), cfg.CooldownPeriod)
		require.Equal(t, config.TimeDuration(30*time.Second), cfg.HeartbeatTimeout)
		require.Equal(t, config.TimeDuration(time.Minute), cfg.RetentionWindow)
	})

	tests := []struct {
		data    string
		wantErr string
	}{
		{`{"queue":{"maxConcurrent":0}}`, "queue.maxConcurrent: should be >= 1"},
		{`{"queue":{"cooldownPeriod":"-1s"}}`, "queue.cooldownPeriod: should be >= 0"},
		{`{"queue":{"cooldownPeriod":"2m"}}`, "queue.heartbeatTimeout: should be greater than cooldownPeriod (2m0s)"},
		{`{"queue":{"cleanupInterval":"0s"}}`, "queue.cleanupInterval: should be > 0"},
		{`{"queue":{"batchCleanupThreshold":0}}`, "queue.batchCleanupThreshold: should be >= 1"},
		{`{"queue":{"tickInterval":"soon"}}`, `queue.tickInterval: time: invalid duration "soon"`},
	}
	for _, tt := range tests {
		t.Run(tt.wantErr, func(t *testing.T) {
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.data), config.DataTypeJSON, NewConfig())
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestAsFailure(t *testing.T) {
	require.Nil(t, AsFailure(nil))
	require.Equal(t, FailureUpstreamTimeout, AsFailure(context.DeadlineExceeded).Kind)
	f := NewUpstreamError(500, "boom")
	require.Same(t, f, AsFailure(f))
	require.Equal(t, "upstream_error (status 500): boom", f.Error())
	require.Equal(t, "invalid_payload: AUTH_CREDENTIALS_REQUIRED", NewInvalidPayload("AUTH_CREDENTIALS_REQUIRED").Error())
}
