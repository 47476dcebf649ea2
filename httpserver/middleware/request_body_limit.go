/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"

	"github.com/railreport/reportqueue/restapi"
)

type requestBodyLimitHandler struct {
	next         http.Handler
	maxSizeBytes int64
	errorDomain  string
}

// RequestBodyLimit rejects requests whose Content-Length exceeds maxSizeBytes with 413
// and caps the body reader for requests without a declared length.
func RequestBodyLimit(maxSizeBytes uint64, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &requestBodyLimitHandler{next, int64(maxSizeBytes), errDomain} //nolint:gosec // configured value
	}
}

func (h *requestBodyLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxSizeBytes {
		reqErr := &restapi.MalformedRequestError{
			HTTPStatusCode: http.StatusRequestEntityTooLarge,
			Message:        fmt.Sprintf("Request body must not be larger than %d bytes.", h.maxSizeBytes),
		}
		restapi.RespondMalformedRequestOrInternalError(rw, h.errorDomain, reqErr, GetLoggerFromContext(r.Context()))
		return
	}
	r.Body = http.MaxBytesReader(rw, r.Body, h.maxSizeBytes)
	h.next.ServeHTTP(rw, r)
}
