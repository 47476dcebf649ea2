/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package queueapi

import (
	"time"

	"github.com/railreport/reportqueue/queue"
)

type enqueueRequest struct {
	Payload queue.Payload `json:"payload"`
}

type failureResponse struct {
	Kind       queue.FailureKind `json:"kind"`
	StatusCode int               `json:"statusCode,omitempty"`
	Message    string            `json:"message,omitempty"`
}

func newFailureResponse(f *queue.Failure) *failureResponse {
	if f == nil {
		return nil
	}
	return &failureResponse{Kind: f.Kind, StatusCode: f.StatusCode, Message: f.Message}
}

type statusResponse struct {
	ID                   string             `json:"id"`
	Status               queue.Status       `json:"status"`
	Position             *int               `json:"position,omitempty"`
	EstimatedWaitSeconds *int64             `json:"estimatedWaitSeconds,omitempty"`
	ErrorMessage         string             `json:"errorMessage,omitempty"`
	Error                *failureResponse   `json:"error,omitempty"`
	CancelReason         queue.CancelReason `json:"cancelReason,omitempty"`
	SubmittedAt          time.Time          `json:"submittedAt"`
	StartedAt            *time.Time         `json:"startedAt,omitempty"`
	FinishedAt           *time.Time         `json:"finishedAt,omitempty"`
}

func newStatusResponse(info queue.StatusInfo) statusResponse { //nolint:gocritic // read-only copy
	resp := statusResponse{
		ID:           info.ID,
		Status:       info.Status,
		Error:        newFailureResponse(info.Failure),
		CancelReason: info.CancelReason,
		SubmittedAt:  info.SubmittedAt,
		StartedAt:    timeOrNil(info.StartedAt),
		FinishedAt:   timeOrNil(info.FinishedAt),
	}
	if info.Status == queue.StatusQueued {
		pos, wait := info.Position, secondsCeil(info.EstimatedWait)
		resp.Position, resp.EstimatedWaitSeconds = &pos, &wait
	}
	if info.Failure != nil {
		resp.ErrorMessage = failureMessage(info.Failure)
	}
	return resp
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type inlineResponse struct {
	Status queue.Status     `json:"status"`
	Result queue.Result     `json:"result,omitempty"`
	Error  *failureResponse `json:"error,omitempty"`
}

type resultResponse struct {
	ID     string       `json:"id"`
	Status queue.Status `json:"status"`
	Result queue.Result `json:"result"`
}

type heartbeatResponse struct {
	Active bool `json:"active"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type statsResponse struct {
	Queued           int        `json:"queued"`
	Processing       int        `json:"processing"`
	Completed        int        `json:"completed"`
	Failed           int        `json:"failed"`
	Cancelled        int        `json:"cancelled"`
	Total            int        `json:"total"`
	CancelledPending int        `json:"cancelledPending"`
	MaxConcurrent    int        `json:"maxConcurrent"`
	EnqueuedTotal    uint64     `json:"enqueuedTotal"`
	PromotedTotal    uint64     `json:"promotedTotal"`
	CompletedTotal   uint64     `json:"completedTotal"`
	FailedTotal      uint64     `json:"failedTotal"`
	CancelledTotal   uint64     `json:"cancelledTotal"`
	AbandonedTotal   uint64     `json:"abandonedTotal"`
	EvictedTotal     uint64     `json:"evictedTotal"`
	OrphanedTotal    uint64     `json:"orphanedTotal"`
	LastPromotionAt  *time.Time `json:"lastPromotionAt,omitempty"`
	LastSweepAt      *time.Time `json:"lastSweepAt,omitempty"`
}

func newStatsResponse(s queue.Stats) statsResponse { //nolint:gocritic // read-only copy
	return statsResponse{
		Queued:           s.Queued,
		Processing:       s.Processing,
		Completed:        s.Completed,
		Failed:           s.Failed,
		Cancelled:        s.Cancelled,
		Total:            s.Total(),
		CancelledPending: s.CancelledPending(),
		MaxConcurrent:    s.MaxConcurrent,
		EnqueuedTotal:    s.EnqueuedTotal,
		PromotedTotal:    s.PromotedTotal,
		CompletedTotal:   s.CompletedTotal,
		FailedTotal:      s.FailedTotal,
		CancelledTotal:   s.CancelledTotal,
		AbandonedTotal:   s.AbandonedTotal,
		EvictedTotal:     s.EvictedTotal,
		OrphanedTotal:    s.OrphanedTotal,
		LastPromotionAt:  timeOrNil(s.LastPromotionAt),
		LastSweepAt:      timeOrNil(s.LastSweepAt),
	}
}

type cleanupResponse struct {
	Evicted int           `json:"evicted"`
	Stats   statsResponse `json:"stats"`
}
