package api

// QueueRequest is the body of POST /api/queue.
type QueueRequest struct {
	Query          string `json:"query"`
	SessionID      string `json:"session_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	Model          string `json:"model,omitempty"`
}

// FeedbackRequest is the body of POST /api/feedback.
type FeedbackRequest struct {
	SessionID         string `json:"session_id"`
	MessageIndex      int    `json:"message_index"`
	FeedbackType      string `json:"feedback_type"`
	UserQuery         string `json:"user_query,omitempty"`
	AssistantResponse string `json:"assistant_response,omitempty"`
	RoutingDecision   string `json:"routing_decision,omitempty"`
	Intent            string `json:"intent,omitempty"`
	ModelUsed         string `json:"model_used,omitempty"`
	ResponseTimeMS    *int   `json:"response_time_ms,omitempty"`
}
