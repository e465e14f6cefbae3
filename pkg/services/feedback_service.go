package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-ai/maestro/pkg/models"
)

// defaultAnalyticsLimit bounds the recent-feedback scan when the caller
// passes no limit.
const defaultAnalyticsLimit = 100

// recentFeedbackCount is how many raw records the analytics response
// carries alongside the aggregates.
const recentFeedbackCount = 10

// FeedbackService records user ratings and aggregates them for the
// analytics endpoint. Records are immutable and survive session deletes.
type FeedbackService struct {
	db *sql.DB
}

// NewFeedbackService creates a new feedback service.
func NewFeedbackService(db *sql.DB) *FeedbackService {
	return &FeedbackService{db: db}
}

// Create records a single feedback entry.
func (s *FeedbackService) Create(ctx context.Context, req *models.CreateFeedbackRequest) (*models.Feedback, error) {
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "must not be empty")
	}
	if req.Type != models.FeedbackUp && req.Type != models.FeedbackDown {
		return nil, NewValidationError("feedback_type", "must be 'up' or 'down'")
	}
	if req.MessageIndex < 0 {
		return nil, NewValidationError("message_index", "must not be negative")
	}

	fb := &models.Feedback{
		ID:                uuid.NewString(),
		SessionID:         req.SessionID,
		MessageIndex:      req.MessageIndex,
		Type:              req.Type,
		UserQuery:         req.UserQuery,
		AssistantResponse: req.AssistantResponse,
		RoutingDecision:   req.RoutingDecision,
		Intent:            req.Intent,
		ModelUsed:         req.ModelUsed,
		ResponseTimeMS:    req.ResponseTimeMS,
		CreatedAt:         time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (feedback_id, session_id, message_index, feedback_type,
		     user_query, assistant_response, routing_decision, intent, model_used,
		     response_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		fb.ID, fb.SessionID, fb.MessageIndex, string(fb.Type),
		fb.UserQuery, fb.AssistantResponse, fb.RoutingDecision, fb.Intent, fb.ModelUsed,
		fb.ResponseTimeMS, fb.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert feedback: %w", err)
	}

	slog.Info("Feedback recorded",
		"feedback_id", fb.ID,
		"session_id", fb.SessionID,
		"feedback_type", fb.Type)
	return fb, nil
}

// Analytics aggregates feedback over the filtered window: overall
// counts, a per-routing-decision breakdown, and the most recent records.
func (s *FeedbackService) Analytics(ctx context.Context, params models.FeedbackAnalyticsParams) (*models.FeedbackAnalytics, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultAnalyticsLimit
	}

	where := ` WHERE TRUE`
	args := []any{}
	if params.StartDate != nil {
		args = append(args, *params.StartDate)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if params.RoutingDecision != "" {
		args = append(args, params.RoutingDecision)
		where += fmt.Sprintf(` AND routing_decision = $%d`, len(args))
	}

	// Aggregate over the newest `limit` records, not the whole table.
	scoped := fmt.Sprintf(
		`WITH scoped AS (
		     SELECT * FROM feedback%s ORDER BY created_at DESC LIMIT %d
		 )`, where, limit)

	analytics := &models.FeedbackAnalytics{
		ByRoutingDecision: make([]models.RoutingDecisionFeedback, 0),
		RecentFeedback:    make([]models.Feedback, 0),
	}

	row := s.db.QueryRowContext(ctx, scoped+
		` SELECT count(*),
		         count(*) FILTER (WHERE feedback_type = 'up'),
		         count(*) FILTER (WHERE feedback_type = 'down')
		  FROM scoped`, args...)
	if err := row.Scan(&analytics.Summary.Total, &analytics.Summary.ThumbsUp, &analytics.Summary.ThumbsDown); err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	analytics.Summary.SatisfactionRate = satisfactionRate(analytics.Summary.ThumbsUp, analytics.Summary.Total)

	rows, err := s.db.QueryContext(ctx, scoped+
		` SELECT routing_decision,
		         count(*),
		         count(*) FILTER (WHERE feedback_type = 'up'),
		         count(*) FILTER (WHERE feedback_type = 'down')
		  FROM scoped
		  GROUP BY routing_decision
		  ORDER BY count(*) DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by routing decision: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rd models.RoutingDecisionFeedback
		if err := rows.Scan(&rd.RoutingDecision, &rd.Total, &rd.ThumbsUp, &rd.ThumbsDown); err != nil {
			return nil, fmt.Errorf("failed to scan routing aggregate: %w", err)
		}
		rd.SatisfactionRate = satisfactionRate(rd.ThumbsUp, rd.Total)
		analytics.ByRoutingDecision = append(analytics.ByRoutingDecision, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recent, err := s.db.QueryContext(ctx, scoped+fmt.Sprintf(
		` SELECT feedback_id, session_id, message_index, feedback_type,
		         user_query, assistant_response, routing_decision, intent,
		         model_used, response_time_ms, created_at
		  FROM scoped
		  ORDER BY created_at DESC
		  LIMIT %d`, recentFeedbackCount), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent feedback: %w", err)
	}
	defer recent.Close()
	for recent.Next() {
		var fb models.Feedback
		if err := recent.Scan(&fb.ID, &fb.SessionID, &fb.MessageIndex, &fb.Type,
			&fb.UserQuery, &fb.AssistantResponse, &fb.RoutingDecision, &fb.Intent,
			&fb.ModelUsed, &fb.ResponseTimeMS, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		analytics.RecentFeedback = append(analytics.RecentFeedback, fb)
	}
	return analytics, recent.Err()
}

func satisfactionRate(up, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(up) / float64(total)
}
