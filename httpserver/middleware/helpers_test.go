/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/railreport/reportqueue/log/logtest"
)

func requireLogFieldString(t *testing.T, logEntry logtest.RecordedEntry, key, want string) {
	t.Helper()
	logField, found := logEntry.FindField(key)
	require.True(t, found, "field %q not found", key)
	require.Equal(t, want, string(logField.Bytes))
}

func requireLogFieldInt(t *testing.T, logEntry logtest.RecordedEntry, key string, want int) {
	t.Helper()
	logField, found := logEntry.FindField(key)
	require.True(t, found, "field %q not found", key)
	require.Equal(t, want, int(logField.Int))
}

func newStatusHandler(status int) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(status)
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "peer address", want: "192.0.2.1"},
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": " 203.0.113.7, 10.0.0.1"}, want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, want: "198.51.100.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil) // RemoteAddr is 192.0.2.1:1234
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestPathMatcher(t *testing.T) {
	m := NewPathMatcher([]string{"/healthz", "/cdn-cgi/*"})
	require.True(t, m.Match("/healthz"))
	require.True(t, m.Match("/cdn-cgi/challenge-platform/h/b"))
	require.False(t, m.Match("/healthz/deep"))
	require.False(t, m.Match("/api/reportqueue/v1/stats"))
	require.False(t, m.Empty())
	require.True(t, NewPathMatcher(nil).Empty())

	var nilMatcher *PathMatcher
	require.False(t, nilMatcher.Match("/"))
}
