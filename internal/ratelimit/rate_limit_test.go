/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LimiterTestSuite struct {
	suite.Suite
	alg Alg
}

func TestLeakyBucketLimiter(t *testing.T) {
	suite.Run(t, &LimiterTestSuite{alg: AlgLeakyBucket})
}

func TestSlidingWindowLimiter(t *testing.T) {
	suite.Run(t, &LimiterTestSuite{alg: AlgSlidingWindow})
}

func (ts *LimiterTestSuite) newLimiter(maxKeys int) Limiter {
	// One request per minute keeps the window from rolling over during the test.
	maxRate := Rate{Count: 1, Duration: time.Minute}
	lim, err := New(maxRate, Opts{Alg: ts.alg, MaxKeys: maxKeys})
	ts.Require().NoError(err)
	return lim
}

func (ts *LimiterTestSuite) TestExceeded() {
	lim := ts.newLimiter(10)
	ctx := context.Background()

	allow, retryAfter, err := lim.Allow(ctx, "10.0.0.1")
	ts.NoError(err)
	ts.True(allow)
	ts.Zero(retryAfter)

	allow, retryAfter, err = lim.Allow(ctx, "10.0.0.1")
	ts.NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))
	ts.LessOrEqual(retryAfter, time.Minute)
}

func (ts *LimiterTestSuite) TestKeysAreIndependent() {
	lim := ts.newLimiter(10)
	ctx := context.Background()

	allow, _, err := lim.Allow(ctx, "10.0.0.1")
	ts.NoError(err)
	ts.True(allow)
	allow, _, err = lim.Allow(ctx, "10.0.0.2")
	ts.NoError(err)
	ts.True(allow)
}

func (ts *LimiterTestSuite) TestSharedLimitWithoutKeys() {
	if ts.alg == AlgLeakyBucket {
		ts.T().Skip("the GCRA store always tracks keys separately")
	}
	lim := ts.newLimiter(0)
	ctx := context.Background()

	allow, _, err := lim.Allow(ctx, "a")
	ts.NoError(err)
	ts.True(allow)
	allow, _, err = lim.Allow(ctx, "b")
	ts.NoError(err)
	ts.False(allow)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Rate{Count: 0, Duration: time.Second}, Opts{})
	require.EqualError(t, err, "rate must be positive, got 0 per 1s")
	_, err = New(Rate{Count: 1, Duration: time.Second}, Opts{Alg: "tokenBucket"})
	require.EqualError(t, err, `unknown rate limit algorithm "tokenBucket"`)
}
