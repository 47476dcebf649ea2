/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/railreport/reportqueue/log"
)

// Executor performs the actual (slow) work for a promoted request.
// It's called exactly once per promoted request, concurrently with other calls,
// and must respect ctx. The controller never retries.
type Executor interface {
	Execute(ctx context.Context, payload Payload) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, payload Payload) (Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, payload Payload) (Result, error) {
	return f(ctx, payload)
}

type dispatchItem struct {
	id      string
	payload Payload
}

// dispatch starts executor calls for promoted requests. Must be called without the lock.
func (c *Controller) dispatch(items []dispatchItem) {
	for _, item := range items {
		c.inflight.Add(1)
		go c.execute(item)
	}
}

func (c *Controller) execute(item dispatchItem) {
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(c.execCtx, time.Duration(c.cfg.ExecutionTimeout))
	defer cancel()

	started := c.clock.Now()
	result, err := c.callExecutor(ctx, item)
	c.complete(item.id, result, err, c.clock.Now().Sub(started))
}

func (c *Controller) callExecutor(ctx context.Context, item dispatchItem) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			const stackSize = 8192
			stack := make([]byte, stackSize)
			stack = stack[:runtime.Stack(stack, false)]
			c.logger.Error(fmt.Sprintf("executor panic: %+v", p),
				log.String("request_id", item.id), log.Bytes("stack", stack))
			result, err = nil, NewInternalError(fmt.Sprintf("executor panic: %v", p))
		}
	}()
	result, err = c.executor.Execute(ctx, item.payload)
	if err == nil && ctx.Err() != nil {
		// A result that arrived after the deadline is still a timeout.
		err = ctx.Err()
	}
	return result, err
}

// complete records the executor outcome only if the request is still processing.
// Otherwise the request was cancelled (or evicted) meanwhile and the outcome is dropped.
func (c *Controller) complete(id string, result Result, execErr error, took time.Duration) {
	now := c.clock.Now()
	logger := c.logger.With(log.String("request_id", id), log.Duration("took", took))

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.status != StatusProcessing {
		c.totals.OrphanedTotal++
		c.mu.Unlock()
		c.metrics.IncOrphanedOutcomes()
		logger.Info("executor outcome discarded, request is no longer processing")
		return
	}
	e.finishedAt = now
	if execErr != nil {
		e.status = StatusFailed
		e.failure = AsFailure(execErr)
		c.totals.FailedTotal++
	} else {
		e.status = StatusCompleted
		e.result = result
		c.totals.CompletedTotal++
	}
	c.activeSlots--
	c.terminal++
	status, failure := e.status, e.failure
	c.mu.Unlock()

	c.metrics.ObserveOutcome(status, took)
	if failure != nil {
		logger.Warn("request failed", log.String("failure_kind", string(failure.Kind)), log.Error(failure))
	} else {
		logger.Info("request completed")
	}
	c.signal()
}
