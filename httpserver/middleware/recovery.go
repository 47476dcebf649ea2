/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/restapi"
)

// RecoveryDefaultStackSize defines the default size of stack part which will be logged.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents options for the Recovery middleware.
type RecoveryOpts struct {
	StackSize int
}

type recoveryHandler struct {
	next        http.Handler
	errorDomain string
	opts        RecoveryOpts
}

// Recovery recovers from panics in handlers, logs the panic with a part of the stack and responds with 500.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is a more configurable version of Recovery.
func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &recoveryHandler{next: next, errorDomain: errDomain, opts: opts}
	}
}

func (h *recoveryHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		logger := GetLoggerFromContext(r.Context())

		// http.ErrAbortHandler is the sentinel for aborted handlers; http.Server handles it silently.
		if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			if logger != nil {
				logger.Warn("request has been aborted", log.Error(err))
			}
			panic(p)
		}

		if logger != nil {
			var fields []log.Field
			if h.opts.StackSize > 0 {
				stack := make([]byte, h.opts.StackSize)
				fields = append(fields, log.Bytes("stack", stack[:runtime.Stack(stack, false)]))
			}
			logger.Error(fmt.Sprintf("Panic: %+v", p), fields...)
		}
		restapi.RespondInternalError(rw, h.errorDomain, logger)
	}()

	h.next.ServeHTTP(rw, r)
}
