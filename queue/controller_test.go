/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/config"
	"github.com/railreport/reportqueue/log/logtest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type execOutcome struct {
	result Result
	err    error
}

type execCall struct {
	name    string
	outcome chan execOutcome
}

func (c execCall) succeed() { c.outcome <- execOutcome{result: Result{"report": c.name}} }

func (c execCall) fail(err error) { c.outcome <- execOutcome{err: err} }

// stubExecutor blocks every call until the test resolves it.
type stubExecutor struct {
	calls chan execCall
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{calls: make(chan execCall, 100)}
}

func (s *stubExecutor) Execute(ctx context.Context, payload Payload) (Result, error) {
	call := execCall{name: payload["name"].(string), outcome: make(chan execOutcome, 1)}
	s.calls <- call
	select {
	case o := <-call.outcome:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stubExecutor) nextCall(t *testing.T) execCall {
	t.Helper()
	select {
	case call := <-s.calls:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("executor was not called")
		return execCall{}
	}
}

// nextCalls collects n calls started concurrently, keyed by payload name.
func (s *stubExecutor) nextCalls(t *testing.T, n int) map[string]execCall {
	t.Helper()
	calls := make(map[string]execCall, n)
	for i := 0; i < n; i++ {
		call := s.nextCall(t)
		calls[call.name] = call
	}
	return calls
}

func (s *stubExecutor) requireNoCall(t *testing.T) {
	t.Helper()
	select {
	case call := <-s.calls:
		t.Fatalf("unexpected executor call for %q", call.name)
	case <-time.After(20 * time.Millisecond):
	}
}

type testEnv struct {
	ctrl   *Controller
	clock  *fakeClock
	exec   *stubExecutor
	logger *logtest.Recorder
}

func newTestEnv(t *testing.T, modify func(cfg *Config)) *testEnv {
	t.Helper()
	cfg := NewDefaultConfig()
	if modify != nil {
		modify(cfg)
	}
	env := &testEnv{clock: newFakeClock(), exec: newStubExecutor(), logger: logtest.NewRecorder()}
	var seq int
	var err error
	env.ctrl, err = NewControllerWithOpts(cfg, env.exec, env.logger, ControllerOpts{
		Clock: env.clock,
		IDGenerator: IDGeneratorFunc(func() (string, error) {
			seq++
			return fmt.Sprintf("req-%d", seq), nil
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		env.ctrl.stopExec()
		env.ctrl.inflight.Wait()
	})
	return env
}

func (env *testEnv) enqueue(t *testing.T, name string) string {
	t.Helper()
	id, err := env.ctrl.Enqueue(Payload{"name": name})
	require.NoError(t, err)
	return id
}

func (env *testEnv) status(t *testing.T, id string) StatusInfo {
	t.Helper()
	info, err := env.ctrl.Status(id)
	require.NoError(t, err)
	return info
}

func (env *testEnv) waitStatus(t *testing.T, id string, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, err := env.ctrl.Status(id)
		return err == nil && info.Status == want
	}, 5*time.Second, time.Millisecond, "request %s did not reach %s", id, want)
}

func withCooldown(d time.Duration) func(cfg *Config) {
	return func(cfg *Config) { cfg.CooldownPeriod = config.TimeDuration(d) }
}

func TestNewController_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.HeartbeatTimeout = cfg.CooldownPeriod
	_, err := NewController(cfg, newStubExecutor(), nil)
	require.EqualError(t, err, "invalid queue configuration: queue.heartbeatTimeout: should be greater than cooldownPeriod (3s)")

	_, err = NewController(NewDefaultConfig(), nil, nil)
	require.Error(t, err)
}

func TestController_Enqueue(t *testing.T) {
	t.Run("new request is queued", func(t *testing.T) {
		env := newTestEnv(t, nil)
		id := env.enqueue(t, "a")
		info := env.status(t, id)
		require.Equal(t, StatusQueued, info.Status)
		require.Equal(t, 1, info.Position)
		require.Equal(t, env.clock.Now(), info.SubmittedAt)
		require.True(t, info.StartedAt.IsZero())
		_, found := env.logger.FindEntry("request enqueued")
		require.True(t, found)
	})

	t.Run("colliding ids are regenerated", func(t *testing.T) {
		ids := []string{"same", "same", "other"}
		c, err := NewControllerWithOpts(NewDefaultConfig(), newStubExecutor(), nil, ControllerOpts{
			IDGenerator: IDGeneratorFunc(func() (string, error) {
				id := ids[0]
				ids = ids[1:]
				return id, nil
			}),
		})
		require.NoError(t, err)
		id1, err := c.Enqueue(Payload{})
		require.NoError(t, err)
		id2, err := c.Enqueue(Payload{})
		require.NoError(t, err)
		require.Equal(t, "same", id1)
		require.Equal(t, "other", id2)
	})

	t.Run("id generation exhausted", func(t *testing.T) {
		c, err := NewControllerWithOpts(NewDefaultConfig(), newStubExecutor(), nil, ControllerOpts{
			IDGenerator: IDGeneratorFunc(func() (string, error) { return "", nil }),
		})
		require.NoError(t, err)
		_, err = c.Enqueue(Payload{})
		require.ErrorIs(t, err, ErrInternal)
	})

	t.Run("uuid ids are unique", func(t *testing.T) {
		c, err := NewController(NewDefaultConfig(), newStubExecutor(), nil)
		require.NoError(t, err)
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			id, enqErr := c.Enqueue(Payload{})
			require.NoError(t, enqErr)
			require.Len(t, id, 36)
			require.False(t, seen[id])
			seen[id] = true
		}
	})
}

func TestController_UnknownID(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.ctrl.Status("nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.ctrl.Heartbeat("nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.ctrl.Cancel("nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, _, _, err = env.ctrl.Result("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestController_FIFOOrder(t *testing.T) {
	env := newTestEnv(t, withCooldown(0))
	names := []string{"a", "b", "c", "d"}
	ids := make([]string, len(names))
	for i, name := range names {
		ids[i] = env.enqueue(t, name)
		if i%2 == 0 {
			env.clock.Advance(time.Millisecond)
		}
	}

	for i, name := range names {
		env.ctrl.Tick()
		call := env.exec.nextCall(t)
		require.Equal(t, name, call.name)
		env.exec.requireNoCall(t)
		call.succeed()
		env.waitStatus(t, ids[i], StatusCompleted)
	}

	status, result, failure, err := env.ctrl.Result(ids[0])
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status)
	require.Equal(t, Result{"report": "a"}, result)
	require.Nil(t, failure)
}

func TestController_ConcurrencyBound(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MaxConcurrent = 2
		cfg.CooldownPeriod = 0
	})
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = env.enqueue(t, fmt.Sprintf("r%d", i))
	}

	env.ctrl.Tick()
	calls := env.exec.nextCalls(t, 2)
	require.Contains(t, calls, "r0")
	require.Contains(t, calls, "r1")
	for i := 0; i < 3; i++ {
		env.ctrl.Tick()
	}
	env.exec.requireNoCall(t)
	require.Equal(t, 2, env.ctrl.Stats().Processing)

	calls["r0"].fail(NewUpstreamError(502, "bad gateway"))
	env.waitStatus(t, ids[0], StatusFailed)
	env.ctrl.Tick()
	third := env.exec.nextCall(t)
	require.Equal(t, "r2", third.name)
	require.Equal(t, 2, env.ctrl.Stats().Processing)

	// Cancelled processing requests free their slot.
	_, err := env.ctrl.Cancel(ids[1])
	require.NoError(t, err)
	env.ctrl.Tick()
	require.Equal(t, "r3", env.exec.nextCall(t).name)
	stats := env.ctrl.Stats()
	require.Equal(t, 2, stats.Processing)
	require.Equal(t, 1, stats.Queued)
}

func TestController_Cooldown(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MaxConcurrent = 2
		cfg.CooldownPeriod = config.TimeDuration(3 * time.Second)
	})
	a := env.enqueue(t, "a")
	b := env.enqueue(t, "b")

	env.ctrl.Tick()
	require.Equal(t, "a", env.exec.nextCall(t).name)
	env.exec.requireNoCall(t)

	env.clock.Advance(2 * time.Second)
	require.Equal(t, time.Second, env.ctrl.tick())
	env.exec.requireNoCall(t)

	env.clock.Advance(time.Second)
	env.ctrl.Tick()
	require.Equal(t, "b", env.exec.nextCall(t).name)

	startedA, startedB := env.status(t, a).StartedAt, env.status(t, b).StartedAt
	require.GreaterOrEqual(t, startedB.Sub(startedA), 3*time.Second)
}

func TestController_Estimates(t *testing.T) {
	env := newTestEnv(t, withCooldown(3*time.Second))
	a := env.enqueue(t, "a")
	b := env.enqueue(t, "b")
	c := env.enqueue(t, "c")

	// Nothing promoted yet: the head is about to start.
	require.Equal(t, time.Second, env.status(t, a).EstimatedWait)
	require.Equal(t, 4*time.Second, env.status(t, b).EstimatedWait)
	require.Equal(t, 7*time.Second, env.status(t, c).EstimatedWait)

	env.ctrl.Tick()
	env.exec.nextCall(t)
	infoA := env.status(t, a)
	require.Equal(t, StatusProcessing, infoA.Status)
	require.Zero(t, infoA.Position)
	require.Zero(t, infoA.EstimatedWait)

	var prev time.Duration
	for pos, id := range []string{b, c} {
		info := env.status(t, id)
		require.Equal(t, pos+1, info.Position)
		require.Greater(t, info.EstimatedWait, prev)
		prev = info.EstimatedWait
	}
}

func TestController_EstimatesGrowWhenMinEstimateExceedsCooldown(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.CooldownPeriod = config.TimeDuration(3 * time.Second)
		cfg.MinEstimate = config.TimeDuration(10 * time.Second)
	})
	ids := []string{env.enqueue(t, "a"), env.enqueue(t, "b"), env.enqueue(t, "c")}

	var waits []time.Duration
	for _, id := range ids {
		waits = append(waits, env.status(t, id).EstimatedWait)
	}
	require.Equal(t, []time.Duration{10 * time.Second, 13 * time.Second, 16 * time.Second}, waits)
}

func TestController_Scenario(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MaxConcurrent = 1
		cfg.CooldownPeriod = config.TimeDuration(3 * time.Second)
	})
	a := env.enqueue(t, "A")
	b := env.enqueue(t, "B")
	c := env.enqueue(t, "C")

	env.ctrl.Tick()
	require.Equal(t, "A", env.exec.nextCall(t).name)
	require.Equal(t, StatusProcessing, env.status(t, a).Status)
	require.Equal(t, env.clock.Now(), env.status(t, a).StartedAt)

	infoB := env.status(t, b)
	require.Equal(t, 1, infoB.Position)
	require.Equal(t, 3*time.Second, infoB.EstimatedWait)
	require.Equal(t, 2, env.status(t, c).Position)

	outcome, err := env.ctrl.Cancel(b)
	require.NoError(t, err)
	require.Equal(t, CancelOutcomeCancelled, outcome)
	require.Equal(t, 1, env.status(t, c).Position)
	require.Equal(t, CancelReasonClient, env.status(t, b).CancelReason)
}

func TestController_Cancel(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		env := newTestEnv(t, nil)
		id := env.enqueue(t, "a")

		outcome, err := env.ctrl.Cancel(id)
		require.NoError(t, err)
		require.Equal(t, CancelOutcomeCancelled, outcome)

		outcome, err = env.ctrl.Cancel(id)
		require.NoError(t, err)
		require.Equal(t, CancelOutcomeAlreadyTerminal, outcome)

		info := env.status(t, id)
		require.Equal(t, StatusCancelled, info.Status)
		require.Equal(t, env.clock.Now(), info.FinishedAt)
		require.Zero(t, info.Position)

		env.ctrl.Tick()
		env.exec.requireNoCall(t)
	})

	t.Run("processing request outcome is discarded", func(t *testing.T) {
		env := newTestEnv(t, withCooldown(0))
		a := env.enqueue(t, "a")
		b := env.enqueue(t, "b")
		env.ctrl.Tick()
		callA := env.exec.nextCall(t)

		_, err := env.ctrl.Cancel(a)
		require.NoError(t, err)
		env.ctrl.Tick()
		require.Equal(t, "b", env.exec.nextCall(t).name)

		callA.succeed()
		require.Eventually(t, func() bool { return env.ctrl.Stats().OrphanedTotal == 1 }, 5*time.Second, time.Millisecond)
		status, result, _, err := env.ctrl.Result(a)
		require.NoError(t, err)
		require.Equal(t, StatusCancelled, status)
		require.Nil(t, result)
		require.Equal(t, StatusProcessing, env.status(t, b).Status)
	})

	t.Run("completed request is already terminal", func(t *testing.T) {
		env := newTestEnv(t, nil)
		id := env.enqueue(t, "a")
		env.ctrl.Tick()
		env.exec.nextCall(t).succeed()
		env.waitStatus(t, id, StatusCompleted)
		outcome, err := env.ctrl.Cancel(id)
		require.NoError(t, err)
		require.Equal(t, CancelOutcomeAlreadyTerminal, outcome)
	})
}

func TestController_HeartbeatLiveness(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.HeartbeatTimeout = config.TimeDuration(10 * time.Second)
	})
	a := env.enqueue(t, "a")
	b := env.enqueue(t, "b")
	c := env.enqueue(t, "c")
	env.ctrl.Tick()
	callA := env.exec.nextCall(t)

	env.clock.Advance(5 * time.Second)
	active, err := env.ctrl.Heartbeat(b)
	require.NoError(t, err)
	require.True(t, active)

	env.clock.Advance(6 * time.Second)
	env.ctrl.Tick()

	infoA := env.status(t, a)
	require.Equal(t, StatusCancelled, infoA.Status)
	require.Equal(t, CancelReasonAbandoned, infoA.CancelReason)
	require.Equal(t, StatusCancelled, env.status(t, c).Status)
	require.Equal(t, StatusProcessing, env.status(t, b).Status)
	require.Equal(t, "b", env.exec.nextCall(t).name)

	active, err = env.ctrl.Heartbeat(a)
	require.NoError(t, err)
	require.False(t, active)

	callA.succeed()
	require.Eventually(t, func() bool { return env.ctrl.Stats().OrphanedTotal == 1 }, 5*time.Second, time.Millisecond)
	stats := env.ctrl.Stats()
	require.Equal(t, uint64(2), stats.AbandonedTotal)
	require.Equal(t, 1, stats.Processing)
	_, found := env.logger.FindEntry("request abandoned")
	require.True(t, found)
}

func TestController_CompletionRacesWithTimeout(t *testing.T) {
	for i := 0; i < 50; i++ {
		env := newTestEnv(t, func(cfg *Config) {
			cfg.HeartbeatTimeout = config.TimeDuration(10 * time.Second)
		})
		id := env.enqueue(t, "a")
		env.ctrl.Tick()
		call := env.exec.nextCall(t)
		env.clock.Advance(11 * time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); call.succeed() }()
		go func() { defer wg.Done(); env.ctrl.Tick() }()
		wg.Wait()
		env.ctrl.inflight.Wait()

		status, result, _, err := env.ctrl.Result(id)
		require.NoError(t, err)
		stats := env.ctrl.Stats()
		require.Equal(t, 0, stats.Processing)
		require.Equal(t, 0, env.ctrl.activeSlots)
		switch status {
		case StatusCompleted:
			require.NotNil(t, result)
			require.Zero(t, stats.OrphanedTotal)
			require.Zero(t, stats.CancelledTotal)
		case StatusCancelled:
			require.Nil(t, result)
			require.Equal(t, uint64(1), stats.OrphanedTotal)
			require.Zero(t, stats.CompletedTotal)
		default:
			t.Fatalf("unexpected status %s", status)
		}
	}
}

func TestController_Failures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind FailureKind
		wantCode int
	}{
		{name: "upstream error", err: NewUpstreamError(503, "unavailable"), wantKind: FailureUpstreamError, wantCode: 503},
		{name: "wrapped invalid payload", err: fmt.Errorf("decode: %w", NewInvalidPayload("no date")), wantKind: FailureInvalidPayload},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: FailureUpstreamTimeout},
		{name: "unknown error", err: errors.New("oops"), wantKind: FailureInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			id := env.enqueue(t, "a")
			env.ctrl.Tick()
			env.exec.nextCall(t).fail(tt.err)
			env.waitStatus(t, id, StatusFailed)
			info := env.status(t, id)
			require.NotNil(t, info.Failure)
			require.Equal(t, tt.wantKind, info.Failure.Kind)
			require.Equal(t, tt.wantCode, info.Failure.StatusCode)
			require.False(t, info.FinishedAt.IsZero())
		})
	}
}

func TestController_ExecutorPanicAndTimeout(t *testing.T) {
	t.Run("panic", func(t *testing.T) {
		logger := logtest.NewRecorder()
		c, err := NewController(NewDefaultConfig(), ExecutorFunc(func(ctx context.Context, p Payload) (Result, error) {
			panic("renderer crashed")
		}), logger)
		require.NoError(t, err)
		id, err := c.Enqueue(Payload{})
		require.NoError(t, err)
		c.Tick()
		c.inflight.Wait()
		info, err := c.Status(id)
		require.NoError(t, err)
		require.Equal(t, StatusFailed, info.Status)
		require.Equal(t, FailureInternalError, info.Failure.Kind)
		require.Equal(t, 0, c.Stats().Processing)
	})

	t.Run("execution timeout", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ExecutionTimeout = config.TimeDuration(10 * time.Millisecond)
		c, err := NewController(cfg, ExecutorFunc(func(ctx context.Context, p Payload) (Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), nil)
		require.NoError(t, err)
		id, err := c.Enqueue(Payload{})
		require.NoError(t, err)
		c.Tick()
		c.inflight.Wait()
		info, err := c.Status(id)
		require.NoError(t, err)
		require.Equal(t, FailureUpstreamTimeout, info.Failure.Kind)
	})
}

func TestController_Stats(t *testing.T) {
	env := newTestEnv(t, withCooldown(0))
	a := env.enqueue(t, "a")
	b := env.enqueue(t, "b")
	env.enqueue(t, "c")
	env.ctrl.Tick()
	env.exec.nextCall(t).succeed()
	env.waitStatus(t, a, StatusCompleted)
	_, err := env.ctrl.Cancel(b)
	require.NoError(t, err)
	env.ctrl.Tick()
	env.exec.nextCall(t)

	stats := env.ctrl.Stats()
	require.Equal(t, 0, stats.Queued)
	require.Equal(t, 1, stats.Processing)
	require.Equal(t, 1, stats.Completed)
	require.Equal(t, 1, stats.Cancelled)
	require.Equal(t, 3, stats.Total())
	require.Equal(t, 1, stats.CancelledPending())
	require.Equal(t, uint64(3), stats.EnqueuedTotal)
	require.Equal(t, uint64(2), stats.PromotedTotal)
	require.Equal(t, 1, stats.MaxConcurrent)
	require.Equal(t, env.clock.Now(), stats.LastPromotionAt)
}
