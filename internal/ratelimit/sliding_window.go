/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/railreport/reportqueue/lrucache"
)

// SlidingWindowLimiter implements the sliding window algorithm with a window per key.
type SlidingWindowLimiter struct {
	getLimiter func(key string) *slidingwindow.Limiter
	maxRate    Rate
}

func newLocalWindowLimiter(maxRate Rate) *slidingwindow.Limiter {
	lim, _ := slidingwindow.NewLimiter(maxRate.Duration, int64(maxRate.Count),
		func() (slidingwindow.Window, slidingwindow.StopFunc) { return slidingwindow.NewLocalWindow() })
	return lim
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// Least recently seen keys are forgotten once more than maxKeys are tracked.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	if maxKeys == 0 {
		lim := newLocalWindowLimiter(maxRate)
		return &SlidingWindowLimiter{maxRate: maxRate, getLimiter: func(string) *slidingwindow.Limiter { return lim }}, nil
	}
	windows, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU store for keys: %w", err)
	}
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		getLimiter: func(key string) *slidingwindow.Limiter {
			lim, _ := windows.GetOrAdd(key, func() *slidingwindow.Limiter { return newLocalWindowLimiter(maxRate) })
			return lim
		},
	}, nil
}

// Allow implements Limiter.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.getLimiter(key).Allow() {
		return true, 0, nil
	}
	now := time.Now()
	return false, now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now), nil
}
