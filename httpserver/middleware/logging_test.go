/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/log/logtest"
)

func TestLogging(t *testing.T) {
	const body = "body-content"

	newRequest := func(target string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
		req.Header.Set("User-Agent", "http-client")
		req.Header.Set("X-Device", "kiosk-7")
		ctx := NewContextWithInternalRequestID(NewContextWithRequestID(req.Context(), "ext-id"), "int-id")
		return req.WithContext(ctx)
	}

	t.Run("response is logged", func(t *testing.T) {
		logger := logtest.NewRecorder()
		var ctxLogger log.FieldLogger
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctxLogger = GetLoggerFromContext(r.Context())
			GetLoggingParamsFromContext(r.Context()).ExtendFields(log.String("queue_status", "queued"))
			rw.WriteHeader(http.StatusAccepted)
			_, _ = rw.Write([]byte("ok"))
		})
		handler := LoggingWithOpts(logger, LoggingOpts{
			RequestStart:      true,
			RequestHeaders:    map[string]string{"X-Device": "req_header_x_device"},
			SecretQueryParams: []string{"token"},
		})(next)
		handler.ServeHTTP(httptest.NewRecorder(), newRequest("/requests?token=secret&page=2"))

		require.NotNil(t, ctxLogger)
		entries := logger.Entries()
		require.Len(t, entries, 2)
		require.Equal(t, "request started", entries[0].Text)

		completed := entries[1]
		require.Contains(t, completed.Text, "response completed in")
		requireLogFieldString(t, completed, "request_id", "ext-id")
		requireLogFieldString(t, completed, "int_request_id", "int-id")
		requireLogFieldString(t, completed, "method", http.MethodPost)
		requireLogFieldString(t, completed, "uri", "/requests?page=2&token=_HIDDEN_")
		requireLogFieldString(t, completed, "client_ip", "192.0.2.1")
		requireLogFieldString(t, completed, "user_agent", "http-client")
		requireLogFieldString(t, completed, "req_header_x_device", "kiosk-7")
		requireLogFieldString(t, completed, "queue_status", "queued")
		requireLogFieldInt(t, completed, "content_length", len(body))
		requireLogFieldInt(t, completed, "status", http.StatusAccepted)
		requireLogFieldInt(t, completed, "bytes_sent", 2)
	})

	t.Run("implicit 200", func(t *testing.T) {
		logger := logtest.NewRecorder()
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {})
		Logging(logger)(next).ServeHTTP(httptest.NewRecorder(), newRequest("/stats"))
		require.Len(t, logger.Entries(), 1)
		requireLogFieldInt(t, logger.Entries()[0], "status", http.StatusOK)
	})

	t.Run("excluded endpoints are logged only on errors", func(t *testing.T) {
		logger := logtest.NewRecorder()
		opts := LoggingOpts{RequestStart: true, ExcludedEndpoints: []string{"/healthz", "/metrics"}}

		LoggingWithOpts(logger, opts)(newStatusHandler(http.StatusOK)).ServeHTTP(httptest.NewRecorder(), newRequest("/healthz"))
		require.Empty(t, logger.Entries())

		LoggingWithOpts(logger, opts)(newStatusHandler(http.StatusServiceUnavailable)).
			ServeHTTP(httptest.NewRecorder(), newRequest("/healthz"))
		require.Len(t, logger.Entries(), 1)
		requireLogFieldInt(t, logger.Entries()[0], "status", http.StatusServiceUnavailable)
	})
}
