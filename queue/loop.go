/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"context"
	"time"
)

// Tick runs one scheduling pass: expires abandoned requests, promotes what the slots and
// the cooldown allow, and sweeps if too many finished requests have piled up.
// Run calls it periodically; tests may call it directly with a fake clock.
func (c *Controller) Tick() {
	c.tick()
}

// tick returns the delay after which the cooldown stops blocking a waiting request (0 if none).
func (c *Controller) tick() time.Duration {
	now := c.clock.Now()

	c.mu.Lock()
	c.expireAbandonedLocked(now)
	var promoted []dispatchItem
	if !c.stopped.Load() {
		promoted = c.scheduleLocked(now)
	}
	if c.terminal > c.cfg.BatchCleanupThreshold {
		c.sweepLocked(now)
	}
	next := c.nextPromotionDelayLocked(now)
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.dispatch(promoted)
	return next
}

// Run drives the controller until ctx is done: a pass runs every TickInterval, on every
// enqueue or freed slot, and right when the cooldown expires. On exit new requests are
// rejected, running executor calls are cancelled and waited for.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("queue controller started")

	ticker := time.NewTicker(time.Duration(c.cfg.TickInterval))
	defer ticker.Stop()
	cooldown := time.NewTimer(0)
	defer cooldown.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-ticker.C:
		case <-c.wake:
		case <-cooldown.C:
		}

		if next := c.tick(); next > 0 {
			if !cooldown.Stop() {
				select {
				case <-cooldown.C:
				default:
				}
			}
			cooldown.Reset(next)
		}
	}
}

func (c *Controller) shutdown() {
	c.stopped.Store(true)
	c.stopExec()
	c.inflight.Wait()
	c.logger.Info("queue controller stopped")
}
