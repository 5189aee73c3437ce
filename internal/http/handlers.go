package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"insight/internal/core"
	"insight/internal/dataset"
	"insight/internal/log"
	"insight/internal/middleware/trace"
)

type healthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime,omitempty"`
	Dataset   *dataset.Meta `json:"dataset,omitempty"`
}

type refreshQueuedResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports ready once a snapshot has been loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot()
	if err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, healthResponse{
			Status:    "not_ready",
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return
	}
	meta := snap.Meta()
	render.JSON(w, r, healthResponse{
		Status:    "ready",
		Timestamp: time.Now().Format(time.RFC3339),
		Dataset:   &meta,
	})
}

// handleRefresh rebuilds the snapshot in the request, or queues a refresh
// for the worker when a publisher is configured. A failed rebuild leaves
// the previous snapshot serving.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	if s.publisher != nil {
		requestID := trace.GetRequestID(ctx)
		if err := s.publisher.PublishRefreshRequest(ctx, requestID, "http"); err != nil {
			logger.ErrorContext(ctx, "Failed to queue refresh", log.FieldError, err)
			s.writeError(w, r, http.StatusServiceUnavailable, "refresh could not be queued")
			return
		}
		logger.InfoContext(ctx, "Refresh queued", log.FieldOperation, log.OpRefresh)
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, refreshQueuedResponse{Status: "queued", RequestID: requestID})
		return
	}

	snap, err := s.store.Refresh(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Refresh failed", log.FieldOperation, log.OpRefresh, log.FieldError, err)
		s.writeError(w, r, http.StatusServiceUnavailable, refreshErrorMessage(err))
		return
	}
	render.JSON(w, r, snap.Meta())
}

func refreshErrorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptySource):
		return "refresh failed: source is empty"
	case errors.Is(err, core.ErrMalformedDate):
		return "refresh failed: malformed date in source"
	case errors.Is(err, core.ErrMissingColumn):
		return "refresh failed: source is missing a column"
	case errors.Is(err, context.DeadlineExceeded):
		return "refresh failed: source timed out"
	default:
		return "refresh failed"
	}
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited()
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).
		WarnContext(r.Context(), "Rate limit exceeded", log.FieldClientIP, s.detector.ClientIP(r))
	s.writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
}
