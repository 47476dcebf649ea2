/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"context"
	"time"

	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/service"
)

// Sweep removes finished requests older than RetentionWindow and returns how many were removed.
// Queued and processing requests are never removed.
func (c *Controller) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	evicted := c.sweepLocked(now)
	c.updateGaugesLocked()
	c.mu.Unlock()

	return evicted
}

func (c *Controller) sweepLocked(now time.Time) int {
	retention := time.Duration(c.cfg.RetentionWindow)
	evicted := 0
	for id, e := range c.entries {
		if e.status.IsTerminal() && now.Sub(e.finishedAt) > retention {
			delete(c.entries, id)
			evicted++
		}
	}
	c.terminal -= evicted
	c.totals.EvictedTotal += uint64(evicted)
	c.lastSweep = now
	if evicted > 0 {
		c.metrics.AddEvicted(evicted)
		c.logger.Info("stale requests evicted", log.Int("evicted", evicted), log.Int("remaining", len(c.entries)))
	}
	return evicted
}

// Sweeper evicts stale requests every CleanupInterval.
type Sweeper struct {
	*service.PeriodicWorker
}

var _ service.Worker = (*Sweeper)(nil)

// NewSweeper creates a Sweeper for the controller.
func NewSweeper(c *Controller, logger log.FieldLogger) *Sweeper {
	interval := time.Duration(c.cfg.CleanupInterval)
	sweep := service.WorkerFunc(func(ctx context.Context) error {
		c.Sweep()
		return nil
	})
	return &Sweeper{service.NewPeriodicWorkerWithOpts(
		sweep, interval, logger.With(log.String("worker", "queue_sweeper")),
		service.PeriodicWorkerOpts{InitialDelay: interval},
	)}
}
