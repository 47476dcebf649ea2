/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package queueapi exposes the report queue controller over a JSON HTTP API.
package queueapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/railreport/reportqueue/httpserver"
	"github.com/railreport/reportqueue/httpserver/middleware"
	"github.com/railreport/reportqueue/log"
	"github.com/railreport/reportqueue/queue"
	"github.com/railreport/reportqueue/restapi"
)

// ErrorDomain is the domain of all errors returned by the API.
const ErrorDomain = "ReportQueue"

// Error codes.
const (
	ErrCodeRequestNotFound     = "requestNotFound"
	ErrCodeRequestNotCompleted = "requestNotCompleted"
	ErrCodeRequestFailed       = "requestFailed"
	ErrCodeRequestCancelled    = "requestCancelled"
	ErrCodeInvalidPayload      = "invalidPayload"
	ErrCodeQueueStopped        = "queueStopped"
)

const urlParamRequestID = "id"

// cancelSweepThreshold is how many cancelled requests may await eviction before a cancel sweeps them.
const cancelSweepThreshold = 5

// Queue is the part of queue.Controller used by the API.
type Queue interface {
	Enqueue(payload queue.Payload) (string, error)
	Status(id string) (queue.StatusInfo, error)
	Result(id string) (queue.Status, queue.Result, *queue.Failure, error)
	Heartbeat(id string) (bool, error)
	Cancel(id string) (queue.CancelOutcome, error)
	Stats() queue.Stats
	Sweep() int
	Stopped() bool
}

var _ Queue = (*queue.Controller)(nil)

// Handler serves the report queue API.
type Handler struct {
	queue       Queue
	executor    queue.Executor
	cfg         Config
	maintenance *middleware.MaintenanceSwitch
	logger      log.FieldLogger
}

// NewHandler creates a new Handler. The executor is used directly when the queue is disabled.
func NewHandler(cfg *Config, q Queue, executor queue.Executor, logger log.FieldLogger) *Handler {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Handler{
		queue:       q,
		executor:    executor,
		cfg:         *cfg,
		maintenance: middleware.NewMaintenanceSwitch(cfg.Maintenance.Enabled, cfg.Maintenance.Message),
		logger:      logger,
	}
}

// Maintenance returns the switch of the maintenance mode.
func (h *Handler) Maintenance() *middleware.MaintenanceSwitch {
	return h.maintenance
}

// Routes returns the API routes to be mounted by httpserver.
func (h *Handler) Routes() (httpserver.APIRoute, error) {
	enqueueMiddlewares := chi.Middlewares{}
	if h.cfg.EnqueueRateLimit.Enabled {
		rl := h.cfg.EnqueueRateLimit
		rateLimit, err := middleware.RateLimit(rl.Rate(), ErrorDomain, middleware.RateLimitOpts{
			Alg:      rl.Alg,
			MaxBurst: rl.Burst,
			GetKey:   middleware.GetRateLimitKeyByClientIP,
			MaxKeys:  rl.MaxKeys,
			DryRun:   rl.DryRun,
		})
		if err != nil {
			return nil, fmt.Errorf("create enqueue rate limit middleware: %w", err)
		}
		enqueueMiddlewares = append(enqueueMiddlewares, rateLimit)
	}

	return func(router chi.Router) {
		router.Use(middleware.Maintenance(h.maintenance, ErrorDomain))
		router.With(enqueueMiddlewares...).Post("/requests", h.enqueue)
		router.Route("/requests/{"+urlParamRequestID+"}", func(r chi.Router) {
			r.Get("/", h.status)
			r.Get("/result", h.result)
			r.Post("/heartbeat", h.heartbeat)
			r.Post("/cancel", h.cancel)
			r.Post("/cancel-beacon", h.cancelBeacon)
		})
		router.Get("/stats", h.stats)
		router.Post("/cleanup", h.cleanup)
	}, nil
}

// HealthCheck reports the queue as unhealthy once the controller is stopped.
func HealthCheck(q Queue) httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		status := httpserver.HealthCheckStatusOK
		if q.Stopped() {
			status = httpserver.HealthCheckStatusFail
		}
		return httpserver.HealthCheckResult{"queue": status}, ctx.Err()
	}
}

func (h *Handler) loggerFor(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return h.logger
}

// extendAccessLog adds fields to the "response completed" entry of the Logging middleware.
func extendAccessLog(r *http.Request, fields ...log.Field) {
	if lp := middleware.GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.ExtendFields(fields...)
	}
}

func (h *Handler) enqueue(rw http.ResponseWriter, r *http.Request) {
	logger := h.loggerFor(r)

	var req enqueueRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrorDomain, err, logger)
		return
	}
	if req.Payload == nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrorDomain, ErrCodeInvalidPayload, "Field \"payload\" is required."), logger)
		return
	}

	if !h.cfg.QueueEnabled {
		h.executeInline(rw, r, req.Payload)
		return
	}

	id, err := h.queue.Enqueue(req.Payload)
	if err != nil {
		h.respondQueueError(rw, err, logger)
		return
	}
	info, err := h.queue.Status(id)
	if err != nil {
		h.respondQueueError(rw, err, logger)
		return
	}
	logger.Info("report request accepted", log.String("queue_request_id", id), log.Int("position", info.Position))
	extendAccessLog(r, log.String("queue_request_id", id))
	rw.Header().Set("Location", path.Join(r.URL.Path, id))
	restapi.RespondCodeAndJSON(rw, http.StatusAccepted, newStatusResponse(info), logger)
}

// executeInline generates the report within the request, bypassing the queue.
func (h *Handler) executeInline(rw http.ResponseWriter, r *http.Request, payload queue.Payload) {
	result, err := h.executor.Execute(r.Context(), payload)
	if err != nil {
		failure := queue.AsFailure(err)
		h.loggerFor(r).Warn("inline report generation failed", log.Error(failure))
		restapi.RespondJSON(rw, inlineResponse{Status: queue.StatusFailed, Error: newFailureResponse(failure)}, h.loggerFor(r))
		return
	}
	restapi.RespondJSON(rw, inlineResponse{Status: queue.StatusCompleted, Result: result}, h.loggerFor(r))
}

func (h *Handler) status(rw http.ResponseWriter, r *http.Request) {
	info, err := h.queue.Status(chi.URLParam(r, urlParamRequestID))
	if err != nil {
		h.respondQueueError(rw, err, h.loggerFor(r))
		return
	}
	extendAccessLog(r, log.String("queue_request_id", info.ID), log.String("queue_status", string(info.Status)))
	restapi.RespondJSON(rw, newStatusResponse(info), h.loggerFor(r))
}

func (h *Handler) result(rw http.ResponseWriter, r *http.Request) {
	logger := h.loggerFor(r)
	id := chi.URLParam(r, urlParamRequestID)
	status, result, failure, err := h.queue.Result(id)
	if err != nil {
		h.respondQueueError(rw, err, logger)
		return
	}

	switch status {
	case queue.StatusCompleted:
		restapi.RespondJSON(rw, resultResponse{ID: id, Status: status, Result: result}, logger)
	case queue.StatusFailed:
		apiErr := restapi.NewError(ErrorDomain, ErrCodeRequestFailed, failureMessage(failure)).
			AddContext("kind", string(failure.Kind))
		if failure.StatusCode != 0 {
			apiErr.AddContext("upstreamStatusCode", failure.StatusCode)
		}
		restapi.RespondError(rw, http.StatusUnprocessableEntity, apiErr, logger)
	case queue.StatusCancelled:
		info, sErr := h.queue.Status(id)
		if sErr != nil {
			h.respondQueueError(rw, sErr, logger)
			return
		}
		restapi.RespondError(rw, http.StatusUnprocessableEntity,
			restapi.NewError(ErrorDomain, ErrCodeRequestCancelled, "Request has been cancelled.").
				AddContext("reason", string(info.CancelReason)), logger)
	default:
		restapi.RespondError(rw, http.StatusConflict,
			restapi.NewError(ErrorDomain, ErrCodeRequestNotCompleted, "Request is not completed yet.").
				AddContext("status", string(status)), logger)
	}
}

func (h *Handler) heartbeat(rw http.ResponseWriter, r *http.Request) {
	active, err := h.queue.Heartbeat(chi.URLParam(r, urlParamRequestID))
	if err != nil {
		h.respondQueueError(rw, err, h.loggerFor(r))
		return
	}
	restapi.RespondJSON(rw, heartbeatResponse{Active: active}, h.loggerFor(r))
}

func (h *Handler) cancel(rw http.ResponseWriter, r *http.Request) {
	outcome, err := h.queue.Cancel(chi.URLParam(r, urlParamRequestID))
	if err != nil {
		h.respondQueueError(rw, err, h.loggerFor(r))
		return
	}
	if outcome == queue.CancelOutcomeCancelled {
		h.sweepCancelled(h.loggerFor(r))
	}
	restapi.RespondJSON(rw, cancelResponse{Cancelled: outcome == queue.CancelOutcomeCancelled}, h.loggerFor(r))
}

func (h *Handler) sweepCancelled(logger log.FieldLogger) {
	pending := h.queue.Stats().CancelledPending()
	if pending <= cancelSweepThreshold {
		return
	}
	evicted := h.queue.Sweep()
	logger.Info("cancelled requests swept", log.Int("cancelled_pending", pending), log.Int("evicted", evicted))
}

// cancelBeacon is called by browsers on page unload, nobody reads the response.
func (h *Handler) cancelBeacon(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, urlParamRequestID)
	outcome, err := h.queue.Cancel(id)
	switch {
	case err != nil && !errors.Is(err, queue.ErrNotFound):
		h.loggerFor(r).Error("cancel by beacon", log.String("queue_request_id", id), log.Error(err))
	case err == nil && outcome == queue.CancelOutcomeCancelled:
		h.sweepCancelled(h.loggerFor(r))
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stats(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, newStatsResponse(h.queue.Stats()), h.loggerFor(r))
}

func (h *Handler) cleanup(rw http.ResponseWriter, r *http.Request) {
	evicted := h.queue.Sweep()
	restapi.RespondJSON(rw, cleanupResponse{Evicted: evicted, Stats: newStatsResponse(h.queue.Stats())}, h.loggerFor(r))
}

func (h *Handler) respondQueueError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(ErrorDomain, ErrCodeRequestNotFound, "Request not found."), logger)
	case errors.Is(err, queue.ErrStopped):
		rw.Header().Set("Retry-After", "5")
		restapi.RespondError(rw, http.StatusServiceUnavailable,
			restapi.NewError(ErrorDomain, ErrCodeQueueStopped, "Queue is not accepting requests."), logger)
	default:
		logger.Error("queue operation failed", log.Error(err))
		restapi.RespondInternalError(rw, ErrorDomain, logger)
	}
}

func failureMessage(f *queue.Failure) string {
	if f == nil || f.Message == "" {
		return "Report generation failed."
	}
	return f.Message
}

func secondsCeil(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}
