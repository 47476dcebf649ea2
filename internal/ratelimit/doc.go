/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides per-key request rate limiters used to protect the queue from bursts of
// report submissions. Two algorithms are available: leaky bucket (GCRA) and sliding window.
package ratelimit
