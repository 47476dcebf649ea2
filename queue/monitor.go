/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"time"

	"github.com/railreport/reportqueue/log"
)

// expireAbandonedLocked cancels non-terminal entries that have not sent a heartbeat within
// HeartbeatTimeout. It reports whether any execution slot was freed.
func (c *Controller) expireAbandonedLocked(now time.Time) (slotFreed bool) {
	timeout := time.Duration(c.cfg.HeartbeatTimeout)
	for _, e := range c.entries {
		if e.status.IsTerminal() {
			continue
		}
		silence := now.Sub(e.lastHeartbeatAt)
		if silence <= timeout {
			continue
		}
		wasProcessing := c.cancelLocked(e, CancelReasonAbandoned, now)
		c.totals.AbandonedTotal++
		c.metrics.IncAbandoned(wasProcessing)
		c.logger.Warn("request abandoned",
			log.String("request_id", e.id), log.Bool("was_processing", wasProcessing), log.Duration("silence", silence))
		slotFreed = slotFreed || wasProcessing
	}
	return slotFreed
}
