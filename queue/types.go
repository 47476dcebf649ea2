/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queue

import "time"

// Status is a lifecycle state of a request.
type Status string

// Request statuses.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether no further transition is possible from the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Payload is opaque request data handed to the Executor as is.
type Payload map[string]interface{}

// Result is opaque data produced by the Executor for a completed request.
type Result map[string]interface{}

// CancelReason tells why a request was cancelled.
type CancelReason string

// Cancel reasons.
const (
	CancelReasonClient    CancelReason = "client"
	CancelReasonAbandoned CancelReason = "abandoned"
)

// CancelOutcome is the result of Controller.Cancel.
type CancelOutcome int

// Cancel outcomes.
const (
	CancelOutcomeCancelled CancelOutcome = iota
	CancelOutcomeAlreadyTerminal
)

func (o CancelOutcome) String() string {
	if o == CancelOutcomeCancelled {
		return "cancelled"
	}
	return "already_terminal"
}

// StatusInfo is a point-in-time view of a request returned by Controller.Status.
// Position and EstimatedWait are set only while the request is queued.
type StatusInfo struct {
	ID            string
	Status        Status
	Position      int
	EstimatedWait time.Duration
	Failure       *Failure
	CancelReason  CancelReason
	SubmittedAt   time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Stats is a snapshot of controller counters.
type Stats struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int

	MaxConcurrent int

	EnqueuedTotal  uint64
	PromotedTotal  uint64
	CompletedTotal uint64
	FailedTotal    uint64
	CancelledTotal uint64
	AbandonedTotal uint64
	EvictedTotal   uint64
	OrphanedTotal  uint64

	LastPromotionAt time.Time
	LastSweepAt     time.Time
}

// Total is the number of stored requests.
func (s Stats) Total() int {
	return s.Queued + s.Processing + s.Completed + s.Failed + s.Cancelled
}

// CancelledPending is the number of cancelled requests still waiting for eviction.
func (s Stats) CancelledPending() int {
	return s.Cancelled
}
