/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type mockT struct {
	failed bool
	msg    string
}

func (t *mockT) FailNow() { t.failed = true }

func (t *mockT) Errorf(format string, args ...interface{}) { t.msg = fmt.Sprintf(format, args...) }

func TestRequireErrorInRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(http.StatusNotFound)
	_, _ = rec.WriteString(`{"error":{"domain":"ReportQueue","code":"requestNotFound","message":"Request not found."}}`)
	RequireErrorInRecorder(t, rec, http.StatusNotFound, "ReportQueue", "requestNotFound")

	mt := &mockT{}
	rec.Body.Reset()
	_, _ = rec.WriteString(`{"error":{"domain":"ReportQueue","code":"other"}}`)
	RequireErrorInRecorder(mt, rec, http.StatusNotFound, "ReportQueue", "requestNotFound")
	require.True(t, mt.failed)
}

func TestRequireErrorIsAny(t *testing.T) {
	errBase := errors.New("base")
	RequireErrorIsAny(t, fmt.Errorf("wrapped: %w", errBase), []error{errors.New("other"), errBase})

	mt := &mockT{}
	RequireErrorIsAny(mt, fmt.Errorf("wrapped: %w", errBase), []error{errors.New("other")})
	require.True(t, mt.failed)
	require.Contains(t, mt.msg, `"wrapped: base"`)
}

func TestRequireNoErrorInChannel(t *testing.T) {
	c := make(chan error, 1)
	RequireNoErrorInChannel(t, c)

	c <- errors.New("fatal")
	mt := &mockT{}
	RequireNoErrorInChannel(mt, c)
	require.True(t, mt.failed)
}

func TestRequireSamplesCountInHistogram(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "wait_seconds"})
	hist.Observe(1)
	hist.Observe(2)
	RequireSamplesCountInHistogram(t, hist, 2)
}

func TestWaitListeningServer(t *testing.T) {
	addr := GetLocalAddrWithFreeTCPPort()
	require.Error(t, WaitListeningServer(addr, 50*time.Millisecond))

	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	require.NoError(t, WaitListeningServer(addr, time.Second))
}
