package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/models"
)

func TestCreateFeedbackHandler(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"session_id": "` + uuid.NewString() + `", "message_index": 1,
		"feedback_type": "up", "routing_decision": "web_search",
		"user_query": "did it land?", "assistant_response": "yes"}`
	rec := postJSON(t, s, "/api/feedback", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp FeedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.FeedbackID)
}

func TestCreateFeedbackHandler_InvalidType(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"session_id": "abc", "message_index": 1, "feedback_type": "sideways"}`
	rec := postJSON(t, s, "/api/feedback", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "feedback_type")
}

func TestFeedbackAnalyticsHandler(t *testing.T) {
	s, _ := newTestServer(t)
	sessionID := uuid.NewString()

	for _, ft := range []string{"up", "up", "down"} {
		body := `{"session_id": "` + sessionID + `", "message_index": 1,
			"feedback_type": "` + ft + `", "routing_decision": "web_search"}`
		rec := postJSON(t, s, "/api/feedback", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/analytics/feedback")
	require.Equal(t, http.StatusOK, rec.Code)

	var analytics models.FeedbackAnalytics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analytics))
	assert.Equal(t, 3, analytics.Summary.Total)
	assert.Equal(t, 2, analytics.Summary.ThumbsUp)
	assert.Equal(t, 1, analytics.Summary.ThumbsDown)
	require.Len(t, analytics.ByRoutingDecision, 1)
	assert.Equal(t, "web_search", analytics.ByRoutingDecision[0].RoutingDecision)
	assert.NotEmpty(t, analytics.RecentFeedback)
}

func TestFeedbackAnalyticsHandler_BadParams(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/analytics/feedback?start_date=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/analytics/feedback?limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
