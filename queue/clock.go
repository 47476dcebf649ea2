/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"time"

	"github.com/google/uuid"
)

// Clock is a source of the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// IDGenerator produces request identifiers. Identifiers must be hard to guess
// since knowing one is enough to cancel the request.
type IDGenerator interface {
	NewID() (string, error)
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() (string, error)

// NewID implements IDGenerator.
func (f IDGeneratorFunc) NewID() (string, error) { return f() }

// UUIDGenerator generates random (v4) UUIDs.
var UUIDGenerator IDGenerator = IDGeneratorFunc(func() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
})
