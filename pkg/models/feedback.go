package models

import "time"

// FeedbackType is the direction of a user's rating.
type FeedbackType string

const (
	FeedbackUp   FeedbackType = "up"
	FeedbackDown FeedbackType = "down"
)

// Feedback is one user rating of an assistant response, denormalized with
// the pipeline metadata in effect when the answer was produced.
type Feedback struct {
	ID        string `json:"feedback_id"`
	SessionID string `json:"session_id"`

	// MessageIndex is the position of the rated assistant message in the
	// session's chat history at submission time. Purely positional — it
	// goes stale if the history is ever rewritten.
	MessageIndex int `json:"message_index"`

	Type              FeedbackType `json:"feedback_type"`
	UserQuery         string       `json:"user_query,omitempty"`
	AssistantResponse string       `json:"assistant_response,omitempty"`
	RoutingDecision   string       `json:"routing_decision,omitempty"`
	Intent            string       `json:"intent,omitempty"`
	ModelUsed         string       `json:"model_used,omitempty"`
	ResponseTimeMS    *int         `json:"response_time_ms,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// CreateFeedbackRequest contains fields for recording feedback.
type CreateFeedbackRequest struct {
	SessionID         string       `json:"session_id"`
	MessageIndex      int          `json:"message_index"`
	Type              FeedbackType `json:"feedback_type"`
	UserQuery         string       `json:"user_query,omitempty"`
	AssistantResponse string       `json:"assistant_response,omitempty"`
	RoutingDecision   string       `json:"routing_decision,omitempty"`
	Intent            string       `json:"intent,omitempty"`
	ModelUsed         string       `json:"model_used,omitempty"`
	ResponseTimeMS    *int         `json:"response_time_ms,omitempty"`
}

// FeedbackSummary aggregates rating counts for the analytics endpoint.
type FeedbackSummary struct {
	Total            int     `json:"total"`
	ThumbsUp         int     `json:"thumbs_up"`
	ThumbsDown       int     `json:"thumbs_down"`
	SatisfactionRate float64 `json:"satisfaction_rate"`
}

// RoutingDecisionFeedback is the per-tool breakdown in analytics.
type RoutingDecisionFeedback struct {
	RoutingDecision  string  `json:"routing_decision"`
	Total            int     `json:"total"`
	ThumbsUp         int     `json:"thumbs_up"`
	ThumbsDown       int     `json:"thumbs_down"`
	SatisfactionRate float64 `json:"satisfaction_rate"`
}

// FeedbackAnalytics is the full analytics response.
type FeedbackAnalytics struct {
	Summary           FeedbackSummary           `json:"summary"`
	ByRoutingDecision []RoutingDecisionFeedback `json:"by_routing_decision"`
	RecentFeedback    []Feedback                `json:"recent_feedback"`
}

// FeedbackAnalyticsParams contains filtering options for analytics queries.
type FeedbackAnalyticsParams struct {
	StartDate       *time.Time `json:"start_date,omitempty"`
	RoutingDecision string     `json:"routing_decision,omitempty"`
	Limit           int        `json:"limit,omitempty"`
}
