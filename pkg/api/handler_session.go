package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/maestro-ai/maestro/pkg/models"
)

// listSessionsHandler handles GET /api/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	params := models.SessionListParams{}
	if v := c.QueryParam("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			params.Limit = limit
		}
	}
	if v := c.QueryParam("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC 3339")
		}
		params.Since = &since
	}

	sessions, err := s.deps.Sessions.ListSessions(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &SessionListResponse{
		Success:  true,
		Sessions: sessions,
	})
}

// getSessionHandler handles GET /api/sessions/:id. Returns the chat
// history and running summary from the latest checkpoint; a session
// with no checkpoints has an empty history.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	history, summary, err := s.deps.Sessions.GetHistory(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &SessionHistoryResponse{
		Success: true,
		History: history,
		Summary: summary,
	})
}

// deleteSessionHandler handles DELETE /api/sessions/:id. Idempotent.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	if err := s.deps.Sessions.DeleteSession(c.Request().Context(), sessionID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &DeleteResponse{
		Success: true,
		Message: "session deleted",
	})
}

// deleteAllSessionsHandler handles DELETE /api/sessions.
func (s *Server) deleteAllSessionsHandler(c *echo.Context) error {
	deleted, err := s.deps.Sessions.DeleteAllSessions(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &DeleteResponse{
		Success: true,
		Message: fmt.Sprintf("deleted %d sessions", deleted),
	})
}
