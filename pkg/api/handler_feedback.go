package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/maestro-ai/maestro/pkg/models"
)

// createFeedbackHandler handles POST /api/feedback.
func (s *Server) createFeedbackHandler(c *echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	feedbackType := models.FeedbackType(req.FeedbackType)
	if feedbackType != models.FeedbackUp && feedbackType != models.FeedbackDown {
		return echo.NewHTTPError(http.StatusBadRequest, `feedback_type must be "up" or "down"`)
	}

	feedback, err := s.deps.Feedback.Create(c.Request().Context(), &models.CreateFeedbackRequest{
		SessionID:         req.SessionID,
		MessageIndex:      req.MessageIndex,
		Type:              feedbackType,
		UserQuery:         req.UserQuery,
		AssistantResponse: req.AssistantResponse,
		RoutingDecision:   req.RoutingDecision,
		Intent:            req.Intent,
		ModelUsed:         req.ModelUsed,
		ResponseTimeMS:    req.ResponseTimeMS,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, &FeedbackResponse{
		Success:    true,
		FeedbackID: feedback.ID,
	})
}

// feedbackAnalyticsHandler handles GET /api/analytics/feedback.
func (s *Server) feedbackAnalyticsHandler(c *echo.Context) error {
	params := models.FeedbackAnalyticsParams{
		RoutingDecision: c.QueryParam("routing_decision"),
	}
	if v := c.QueryParam("start_date"); v != "" {
		start, err := parseDate(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "start_date must be RFC 3339 or YYYY-MM-DD")
		}
		params.StartDate = &start
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		params.Limit = limit
	}

	analytics, err := s.deps.Feedback.Analytics(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, analytics)
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
