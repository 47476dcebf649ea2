/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter decides whether a request identified by key may proceed now.
// When it may not, retryAfter estimates when the next attempt may succeed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Alg is a rate-limiting algorithm.
type Alg string

// Supported algorithms.
const (
	AlgLeakyBucket   Alg = "leakyBucket"
	AlgSlidingWindow Alg = "slidingWindow"
)

// Opts represents options for New.
type Opts struct {
	Alg Alg
	// MaxBurst is used by the leaky bucket only.
	MaxBurst int
	// MaxKeys bounds the number of tracked keys. Zero means a single shared limit.
	MaxKeys int
}

// New creates a Limiter of the given algorithm.
func New(maxRate Rate, opts Opts) (Limiter, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %d per %s", maxRate.Count, maxRate.Duration)
	}
	switch opts.Alg {
	case AlgLeakyBucket, "":
		return NewLeakyBucketLimiter(maxRate, opts.MaxBurst, opts.MaxKeys)
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(maxRate, opts.MaxKeys)
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm %q", opts.Alg)
	}
}
