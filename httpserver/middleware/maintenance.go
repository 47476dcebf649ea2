/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"go.uber.org/atomic"

	"github.com/railreport/reportqueue/restapi"
)

// MaintenanceErrCode is the error code of responses rejected while maintenance mode is on.
const MaintenanceErrCode = "maintenance"

// DefaultMaintenanceMessage is used when no message is configured.
const DefaultMaintenanceMessage = "Service is under maintenance. Please try again later."

// MaintenanceSwitch turns maintenance mode on and off at runtime.
type MaintenanceSwitch struct {
	enabled *atomic.Bool
	message *atomic.String
}

// NewMaintenanceSwitch creates a switch in the given state.
func NewMaintenanceSwitch(enabled bool, message string) *MaintenanceSwitch {
	if message == "" {
		message = DefaultMaintenanceMessage
	}
	return &MaintenanceSwitch{enabled: atomic.NewBool(enabled), message: atomic.NewString(message)}
}

// Enable turns maintenance mode on. An empty message keeps the current one.
func (s *MaintenanceSwitch) Enable(message string) {
	if message != "" {
		s.message.Store(message)
	}
	s.enabled.Store(true)
}

// Disable turns maintenance mode off.
func (s *MaintenanceSwitch) Disable() {
	s.enabled.Store(false)
}

// Enabled reports whether maintenance mode is on.
func (s *MaintenanceSwitch) Enabled() bool {
	return s.enabled.Load()
}

// Maintenance responds with 503 while the switch is on.
func Maintenance(sw *MaintenanceSwitch, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if !sw.Enabled() {
				next.ServeHTTP(rw, r)
				return
			}
			rw.Header().Set("Retry-After", "60")
			restapi.RespondError(rw, http.StatusServiceUnavailable,
				restapi.NewError(errDomain, MaintenanceErrCode, sw.message.Load()), GetLoggerFromContext(r.Context()))
		})
	}
}
