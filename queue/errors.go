/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Controller errors.
var (
	ErrNotFound = errors.New("request not found")
	ErrInternal = errors.New("internal queue error")
	ErrStopped  = errors.New("queue controller is stopped")
)

// FailureKind classifies why a request failed.
type FailureKind string

// Failure kinds.
const (
	FailureUpstreamTimeout FailureKind = "upstream_timeout"
	FailureUpstreamError   FailureKind = "upstream_error"
	FailureInvalidPayload  FailureKind = "invalid_payload"
	FailureInternalError   FailureKind = "internal_error"
)

// Failure describes a failed execution. Executors return it (possibly wrapped) to control
// how the failure is recorded; any other error is classified by AsFailure.
type Failure struct {
	Kind FailureKind
	// StatusCode is the upstream HTTP status for FailureUpstreamError (0 when there was no response).
	StatusCode int
	Message    string
}

func (f *Failure) Error() string {
	if f.Kind == FailureUpstreamError && f.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Kind, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewUpstreamTimeout creates a FailureUpstreamTimeout failure.
func NewUpstreamTimeout(msg string) *Failure {
	return &Failure{Kind: FailureUpstreamTimeout, Message: msg}
}

// NewUpstreamError creates a FailureUpstreamError failure.
func NewUpstreamError(statusCode int, msg string) *Failure {
	return &Failure{Kind: FailureUpstreamError, StatusCode: statusCode, Message: msg}
}

// NewInvalidPayload creates a FailureInvalidPayload failure.
func NewInvalidPayload(msg string) *Failure {
	return &Failure{Kind: FailureInvalidPayload, Message: msg}
}

// NewInternalError creates a FailureInternalError failure.
func NewInternalError(msg string) *Failure {
	return &Failure{Kind: FailureInternalError, Message: msg}
}

// AsFailure converts an executor error into a Failure.
// Deadline and network timeouts become FailureUpstreamTimeout, unknown errors FailureInternalError.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewUpstreamTimeout(err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewUpstreamTimeout(err.Error())
	}
	return NewInternalError(err.Error())
}
