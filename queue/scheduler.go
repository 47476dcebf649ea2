/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"time"

	"github.com/railreport/reportqueue/log"
)

// positionLocked returns the 1-based place of a queued entry in promotion order.
func (c *Controller) positionLocked(e *entry) int {
	pos := 1
	for _, other := range c.entries {
		if other.status == StatusQueued && other.before(e) {
			pos++
		}
	}
	return pos
}

// estimateLocked predicts the wait of the request at the given position.
// The estimate grows with the position and never depends on executor durations:
// each request ahead costs one cooldown period.
func (c *Controller) estimateLocked(position int, now time.Time) time.Duration {
	minWait := time.Duration(c.cfg.MinEstimate)
	step := time.Duration(c.cfg.CooldownPeriod)
	if step == 0 {
		step = minWait
	}
	if c.activeSlots >= c.cfg.MaxConcurrent {
		return time.Duration(position) * step
	}
	// Everyone behind the head waits for the head's start first.
	headWait := c.cooldownLeftLocked(now)
	if headWait < minWait {
		headWait = minWait
	}
	return headWait + time.Duration(position-1)*step
}

// cooldownLeftLocked returns how long promotions are still blocked by the cooldown.
func (c *Controller) cooldownLeftLocked(now time.Time) time.Duration {
	if c.lastPromotion.IsZero() {
		return 0
	}
	left := time.Duration(c.cfg.CooldownPeriod) - now.Sub(c.lastPromotion)
	if left < 0 {
		return 0
	}
	return left
}

// headLocked returns the oldest queued entry.
func (c *Controller) headLocked() *entry {
	var head *entry
	for _, e := range c.entries {
		if e.status == StatusQueued && (head == nil || e.before(head)) {
			head = e
		}
	}
	return head
}

// scheduleLocked promotes queued entries while slots are free and the cooldown allows.
// With a non-zero cooldown at most one entry is promoted per call.
// The returned entries must be dispatched to the executor after the lock is released.
func (c *Controller) scheduleLocked(now time.Time) []dispatchItem {
	var promoted []dispatchItem
	for c.activeSlots < c.cfg.MaxConcurrent && c.cooldownLeftLocked(now) == 0 {
		head := c.headLocked()
		if head == nil {
			break
		}
		head.status = StatusProcessing
		head.startedAt = now
		c.activeSlots++
		c.lastPromotion = now
		c.totals.PromotedTotal++
		promoted = append(promoted, dispatchItem{id: head.id, payload: head.payload})

		waited := now.Sub(head.submittedAt)
		c.metrics.ObservePromotion(waited)
		c.logger.Info("request promoted",
			log.String("request_id", head.id), log.Duration("waited", waited), log.Int("active", c.activeSlots))
	}
	return promoted
}

// nextPromotionDelayLocked returns how long to wait before a promotion may become possible,
// or 0 if nothing is blocked by the cooldown.
func (c *Controller) nextPromotionDelayLocked(now time.Time) time.Duration {
	if c.activeSlots >= c.cfg.MaxConcurrent || c.headLocked() == nil {
		return 0
	}
	return c.cooldownLeftLocked(now)
}
