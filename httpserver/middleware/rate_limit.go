/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/railreport/reportqueue/internal/ratelimit"
	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/restapi"
)

// DefaultRateLimitMaxKeys is a default value of maximum keys number for the RateLimit middleware.
const DefaultRateLimitMaxKeys = 10000

// RateLimitErrCode is the error code of responses rejected by the RateLimit middleware.
const RateLimitErrCode = "tooManyRequests"

// RateLimitLogFieldKey is the log field with the key of the rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

// Rate describes the frequency of requests.
type Rate = ratelimit.Rate

// RateLimitAlg is a rate-limiting algorithm.
type RateLimitAlg = ratelimit.Alg

// Supported rate-limiting algorithms.
const (
	RateLimitAlgLeakyBucket   = ratelimit.AlgLeakyBucket
	RateLimitAlgSlidingWindow = ratelimit.AlgSlidingWindow
)

// RateLimitGetKeyFunc returns the key requests are limited by. Bypassed requests are not limited.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitOpts represents options for the RateLimit middleware.
type RateLimitOpts struct {
	Alg      RateLimitAlg
	MaxBurst int
	// GetKey defaults to a single shared limit.
	GetKey  RateLimitGetKeyFunc
	MaxKeys int
	// ResponseStatusCode defaults to 429.
	ResponseStatusCode int
	// DryRun logs rejections but lets requests through.
	DryRun bool
}

type rateLimitHandler struct {
	next           http.Handler
	limiter        ratelimit.Limiter
	getKey         RateLimitGetKeyFunc
	errDomain      string
	respStatusCode int
	dryRun         bool
}

// GetRateLimitKeyByClientIP limits requests per client address.
func GetRateLimitKeyByClientIP(r *http.Request) (key string, bypass bool, err error) {
	return GetClientIP(r), false, nil
}

// RateLimit limits the rate of HTTP requests. Rejected requests get the error response with a Retry-After header.
func RateLimit(maxRate Rate, errDomain string, opts RateLimitOpts) (func(next http.Handler) http.Handler, error) {
	maxKeys := 0
	if opts.GetKey != nil {
		maxKeys = opts.MaxKeys
		if maxKeys == 0 {
			maxKeys = DefaultRateLimitMaxKeys
		}
	}
	limiter, err := ratelimit.New(maxRate, ratelimit.Opts{Alg: opts.Alg, MaxBurst: opts.MaxBurst, MaxKeys: maxKeys})
	if err != nil {
		return nil, fmt.Errorf("new rate limiter: %w", err)
	}
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:           next,
			limiter:        limiter,
			getKey:         opts.GetKey,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			dryRun:         opts.DryRun,
		}
	}, nil
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromContext(r.Context())

	var key string
	if h.getKey != nil {
		var bypass bool
		var err error
		if key, bypass, err = h.getKey(r); err != nil {
			if logger != nil {
				logger.Error("get key for rate limit", log.Error(err))
			}
			restapi.RespondInternalError(rw, h.errDomain, logger)
			return
		}
		if bypass {
			h.next.ServeHTTP(rw, r)
			return
		}
	}

	allow, retryAfter, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		if logger != nil {
			logger.Error("rate limit", log.Error(err), log.String(RateLimitLogFieldKey, key))
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
		return
	}
	if allow {
		h.next.ServeHTTP(rw, r)
		return
	}

	if h.dryRun {
		if logger != nil {
			logger.Warn("too many requests, serving will be continued because of dry run mode",
				log.String(RateLimitLogFieldKey, key))
		}
		h.next.ServeHTTP(rw, r)
		return
	}

	if logger != nil {
		logger = logger.With(log.String(RateLimitLogFieldKey, key), log.String(userAgentLogFieldKey, r.UserAgent()))
	}
	rw.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	restapi.RespondError(rw, h.respStatusCode, restapi.NewError(h.errDomain, RateLimitErrCode, "Too many requests."), logger)
}

func retryAfterSeconds(d time.Duration) int {
	return int(math.Max(1, math.Ceil(d.Seconds())))
}
