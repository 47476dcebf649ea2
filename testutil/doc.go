/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertion helpers for HTTP responses, errors, metrics and listening servers.
package testutil

type tHelper interface {
	Helper()
}
