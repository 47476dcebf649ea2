/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/log/logtest"
)

func TestDecodeRequestJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name        string
		contentType string
		body        string
		maxBytes    int64
		wantCode    int
		wantMsg     string
	}{
		{name: "ok", contentType: "application/json; charset=utf-8", body: `{"name":"x"}`},
		{name: "empty", body: ``, wantCode: 400, wantMsg: "Request body must not be empty."},
		{name: "bad json", body: `{"name":`, wantCode: 400, wantMsg: "Request body contains badly-formed JSON."},
		{name: "syntax", body: `{"name" 1}`, wantCode: 400, wantMsg: "Request body contains badly-formed JSON (at position 9)."},
		{name: "wrong type", body: `{"name":1}`, wantCode: 400,
			wantMsg: `Request body contains an invalid value for the "name" field (at position 9).`},
		{name: "two objects", body: `{} {}`, wantCode: 400, wantMsg: "Request body must only contain a single JSON object."},
		{name: "content type", contentType: "text/plain", body: `{}`, wantCode: 415, wantMsg: `Content-Type "text/plain" is not supported.`},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", 100) + `"}`, maxBytes: 16, wantCode: 413,
			wantMsg: "Request body must not be larger than 16 bytes."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.maxBytes > 0 {
				req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, tt.maxBytes)
			}
			var dst payload
			err := DecodeRequestJSON(req, &dst)
			if tt.wantCode == 0 {
				require.NoError(t, err)
				require.Equal(t, "x", dst.Name)
				return
			}
			var reqErr *MalformedRequestError
			require.ErrorAs(t, err, &reqErr)
			require.Equal(t, tt.wantCode, reqErr.HTTPStatusCode)
			require.Equal(t, tt.wantMsg, reqErr.Message)
		})
	}
}

func TestRespondCodeAndJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondCodeAndJSON(rec, http.StatusAccepted, map[string]string{"url": "/a?b=<c>"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, ContentTypeAppJSON, rec.Header().Get("Content-Type"))
	require.Equal(t, `{"url":"/a?b=<c>"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	RespondCodeAndJSON(rec, http.StatusNoContent, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestRespondError(t *testing.T) {
	MustInitAndRegisterMetrics("test")
	defer UnregisterMetrics()

	logger := logtest.NewRecorder()
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound,
		NewError("ReportQueue", "requestNotFound", "Request not found.").AddContext("id", "42"), logger)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t,
		`{"error":{"domain":"ReportQueue","code":"requestNotFound","message":"Request not found.","context":{"id":"42"}}}`,
		rec.Body.String())
	entry, found := logger.FindEntry("error in response")
	require.True(t, found)
	_, found = entry.FindField("error_context")
	require.True(t, found)
	require.Equal(t, 1.0, testutil.ToFloat64(responseErrors.vec.WithLabelValues("ReportQueue", "requestNotFound")))
}

func TestRespondMalformedRequestOrInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondMalformedRequestOrInternalError(rec, "ReportQueue",
		&MalformedRequestError{http.StatusRequestEntityTooLarge, "too big"}, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.JSONEq(t, `{"error":{"domain":"ReportQueue","code":"requestEntityTooLarge","message":"too big"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	RespondMalformedRequestOrInternalError(rec, "ReportQueue", errors.New("disk full"), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":{"domain":"ReportQueue","code":"internalError","message":"Internal error."}}`, rec.Body.String())
}
