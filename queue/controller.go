/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package queue implements the admission controller that serializes report requests
// into a bounded number of concurrent executions against the upstream.
//
// Requests are promoted in FIFO order while fewer than MaxConcurrent are processing and
// at least CooldownPeriod has passed since the previous promotion. Clients keep their
// requests alive with heartbeats; silent requests are cancelled, and finished requests
// are evicted after RetentionWindow.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/service"
)

const maxIDAttempts = 3

type entry struct {
	id              string
	seq             uint64
	status          Status
	payload         Payload
	result          Result
	failure         *Failure
	cancelReason    CancelReason
	submittedAt     time.Time
	startedAt       time.Time
	finishedAt      time.Time
	lastHeartbeatAt time.Time
}

// before reports whether e was submitted before other (FIFO order).
func (e *entry) before(other *entry) bool {
	if !e.submittedAt.Equal(other.submittedAt) {
		return e.submittedAt.Before(other.submittedAt)
	}
	return e.seq < other.seq
}

// ControllerOpts are optional parameters of Controller.
type ControllerOpts struct {
	Clock       Clock
	IDGenerator IDGenerator
	Metrics     MetricsCollector
}

// Controller owns all queued and recently finished requests.
// All methods are safe for concurrent use.
type Controller struct {
	cfg      Config
	executor Executor
	clock    Clock
	ids      IDGenerator
	logger   log.FieldLogger
	metrics  MetricsCollector

	mu            sync.Mutex
	entries       map[string]*entry
	seq           uint64
	activeSlots   int
	lastPromotion time.Time
	lastSweep     time.Time
	terminal      int
	totals        Stats

	wake     chan struct{}
	execCtx  context.Context
	stopExec context.CancelFunc
	inflight sync.WaitGroup
	stopped  atomic.Bool
}

var _ service.Worker = (*Controller)(nil)

// NewController creates a new Controller with the system clock and random UUIDs.
func NewController(cfg *Config, executor Executor, logger log.FieldLogger) (*Controller, error) {
	return NewControllerWithOpts(cfg, executor, logger, ControllerOpts{})
}

// NewControllerWithOpts creates a new Controller with optional parameters.
func NewControllerWithOpts(cfg *Config, executor Executor, logger log.FieldLogger, opts ControllerOpts) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue configuration: %w", err)
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = UUIDGenerator
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	execCtx, stopExec := context.WithCancel(context.Background())
	return &Controller{
		cfg:      *cfg,
		executor: executor,
		clock:    opts.Clock,
		ids:      opts.IDGenerator,
		logger:   logger,
		metrics:  opts.Metrics,
		entries:  make(map[string]*entry),
		wake:     make(chan struct{}, 1),
		execCtx:  execCtx,
		stopExec: stopExec,
	}, nil
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Enqueue accepts a new request and returns its id. The request is promoted asynchronously.
func (c *Controller) Enqueue(payload Payload) (string, error) {
	if c.stopped.Load() {
		return "", ErrStopped
	}

	c.mu.Lock()
	id, err := c.newIDLocked()
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("failed to generate request id", log.Error(err))
		return "", err
	}
	now := c.clock.Now()
	c.seq++
	c.entries[id] = &entry{
		id:              id,
		seq:             c.seq,
		status:          StatusQueued,
		payload:         payload,
		submittedAt:     now,
		lastHeartbeatAt: now,
	}
	c.totals.EnqueuedTotal++
	c.mu.Unlock()

	c.metrics.IncEnqueued()
	c.logger.Info("request enqueued", log.String("request_id", id))
	c.signal()
	return id, nil
}

func (c *Controller) newIDLocked() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := c.ids.NewID()
		if err != nil {
			return "", fmt.Errorf("%w: generate id: %v", ErrInternal, err)
		}
		if _, exists := c.entries[id]; !exists && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: could not generate unique id in %d attempts", ErrInternal, maxIDAttempts)
}

// Status returns the current state of the request.
func (c *Controller) Status(id string) (StatusInfo, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return StatusInfo{}, ErrNotFound
	}
	info := StatusInfo{
		ID:           e.id,
		Status:       e.status,
		Failure:      e.failure,
		CancelReason: e.cancelReason,
		SubmittedAt:  e.submittedAt,
		StartedAt:    e.startedAt,
		FinishedAt:   e.finishedAt,
	}
	if e.status == StatusQueued {
		info.Position = c.positionLocked(e)
		info.EstimatedWait = c.estimateLocked(info.Position, now)
	}
	return info, nil
}

// Result returns the status of the request together with its result (set only when completed).
func (c *Controller) Result(id string) (Status, Result, *Failure, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return "", nil, nil, ErrNotFound
	}
	return e.status, e.result, e.failure, nil
}

// Heartbeat refreshes liveness of the request. It returns false for finished requests,
// which tells the client to stop polling.
func (c *Controller) Heartbeat(id string) (bool, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return false, ErrNotFound
	}
	if e.status.IsTerminal() {
		return false, nil
	}
	e.lastHeartbeatAt = now
	return true, nil
}

// Cancel cancels a queued or processing request. Cancelling a processing request frees
// its execution slot at once, the running executor call is not interrupted and
// its outcome is discarded. Cancel is idempotent.
func (c *Controller) Cancel(id string) (CancelOutcome, error) {
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return 0, ErrNotFound
	}
	if e.status.IsTerminal() {
		c.mu.Unlock()
		return CancelOutcomeAlreadyTerminal, nil
	}
	wasProcessing := c.cancelLocked(e, CancelReasonClient, now)
	c.mu.Unlock()

	c.logger.Info("request cancelled",
		log.String("request_id", id), log.Bool("was_processing", wasProcessing))
	// Wakes the loop for the freed slot or for the batch sweep.
	c.signal()
	return CancelOutcomeCancelled, nil
}

// cancelLocked moves a non-terminal entry to cancelled and reports whether it held a slot.
func (c *Controller) cancelLocked(e *entry, reason CancelReason, now time.Time) bool {
	wasProcessing := e.status == StatusProcessing
	if wasProcessing {
		c.activeSlots--
	}
	e.status = StatusCancelled
	e.cancelReason = reason
	e.finishedAt = now
	c.terminal++
	c.totals.CancelledTotal++
	c.metrics.ObserveOutcome(StatusCancelled, 0)
	return wasProcessing
}

// Stats returns controller counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.totals
	for _, e := range c.entries {
		switch e.status {
		case StatusQueued:
			s.Queued++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	s.MaxConcurrent = c.cfg.MaxConcurrent
	s.LastPromotionAt = c.lastPromotion
	s.LastSweepAt = c.lastSweep
	return s
}

// Stopped reports whether the controller loop has been stopped.
func (c *Controller) Stopped() bool {
	return c.stopped.Load()
}

func (c *Controller) updateGaugesLocked() {
	counts := make(map[Status]int, len(AllStatuses))
	for _, e := range c.entries {
		counts[e.status]++
	}
	c.metrics.SetEntries(counts)
}

// signal wakes the loop without blocking.
func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
