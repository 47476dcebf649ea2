/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/atomic"

	"github.com/railreport/reportqueue/restapi"
)

// InFlightLimitErrCode is the error code of responses rejected by the InFlightLimit middleware.
const InFlightLimitErrCode = "tooManyInFlightRequests"

// InFlightLimitOpts represents options for the InFlightLimit middleware.
type InFlightLimitOpts struct {
	// ResponseStatusCode defaults to 503.
	ResponseStatusCode int
	// RetryAfter is sent in the Retry-After header when positive.
	RetryAfter time.Duration
	// ExcludedEndpoints are never limited (e.g. "/healthz").
	ExcludedEndpoints []string
}

type inFlightLimitHandler struct {
	next           http.Handler
	slots          chan struct{}
	inFlight       *atomic.Int64
	errDomain      string
	respStatusCode int
	retryAfter     time.Duration
	excluded       *PathMatcher
}

// InFlightLimit limits the number of requests served at the same time.
// Requests over the limit are rejected immediately.
func InFlightLimit(limit int, errDomain string, opts InFlightLimitOpts) (func(next http.Handler) http.Handler, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit should be positive, got %d", limit)
	}
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusServiceUnavailable
	}
	slots := make(chan struct{}, limit)
	inFlight := atomic.NewInt64(0)
	excluded := NewPathMatcher(opts.ExcludedEndpoints)
	return func(next http.Handler) http.Handler {
		return &inFlightLimitHandler{
			next:           next,
			slots:          slots,
			inFlight:       inFlight,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			retryAfter:     opts.RetryAfter,
			excluded:       excluded,
		}
	}, nil
}

func (h *inFlightLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if h.excluded.Match(r.URL.Path) {
		h.next.ServeHTTP(rw, r)
		return
	}
	select {
	case h.slots <- struct{}{}:
	default:
		logger := GetLoggerFromContext(r.Context())
		if h.retryAfter > 0 {
			rw.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(h.retryAfter)))
		}
		apiErr := restapi.NewError(h.errDomain, InFlightLimitErrCode, "Too many in-flight requests.").
			AddContext("inFlight", h.inFlight.Load())
		restapi.RespondError(rw, h.respStatusCode, apiErr, logger)
		return
	}
	h.inFlight.Inc()
	defer func() {
		h.inFlight.Dec()
		<-h.slots
	}()
	h.next.ServeHTTP(rw, r)
}
