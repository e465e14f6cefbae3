package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/services"
)

// queueHandler handles POST /api/queue. The job is accepted and the
// answer streams on /api/stream/{request_id}; the HTTP request returns
// immediately.
func (s *Server) queueHandler(c *echo.Context) error {
	var req QueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	// Client-supplied ids make submission retries idempotent; absent
	// ones are minted here.
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	job, err := s.deps.Queue.Enqueue(c.Request().Context(), models.EnqueueJobRequest{
		RequestID:      req.RequestID,
		SessionID:      req.SessionID,
		Query:          req.Query,
		TargetLanguage: req.TargetLanguage,
		Model:          req.Model,
	})
	if err != nil {
		var validErr *services.ValidationError
		switch {
		case errors.As(err, &validErr):
			return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
		case errors.Is(err, services.ErrAlreadyExists):
			return echo.NewHTTPError(http.StatusConflict, "request_id already queued")
		default:
			return echo.NewHTTPError(http.StatusServiceUnavailable, "queue unavailable")
		}
	}

	return c.JSON(http.StatusAccepted, &QueueResponse{
		Success:   true,
		Message:   "Request queued for processing",
		RequestID: job.RequestID,
		StreamURL: "/api/stream/" + job.RequestID,
	})
}
