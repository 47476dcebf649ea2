/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the process as a set of units (HTTP server, queue loop, sweeper, ...)
// that start together and stop together on a signal or on the first fatal error.
package service

// Unit is an independently started and stopped part of the service.
type Unit interface {
	// Start may either return right after initialization or block for the unit's lifetime.
	// On failure it writes exactly one error to fatalErr; on success it never touches the channel,
	// and it must not use the channel after returning.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units owning Prometheus collectors.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
