package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/models"
)

func seedSession(t *testing.T, deps Dependencies) string {
	t.Helper()
	sessionID := uuid.NewString()
	state := &models.AgentState{
		Summary: "the user asked about France",
		ChatHistory: []models.Message{
			{Role: models.RoleUser, Content: "what is the capital of France?"},
			{Role: models.RoleAssistant, Content: "Paris."},
		},
	}
	_, err := deps.Sessions.SaveState(context.Background(), sessionID, state, 0)
	require.NoError(t, err)
	return sessionID
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetSessionHandler(t *testing.T) {
	s, deps := newTestServer(t)
	sessionID := seedSession(t, deps)

	rec := doRequest(t, s, http.MethodGet, "/api/sessions/"+sessionID)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.History, 2)
	assert.Equal(t, "Paris.", resp.History[1].Content)
	assert.Equal(t, "the user asked about France", resp.Summary)
}

func TestGetSessionHandler_UnknownSessionIsEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/sessions/"+uuid.NewString())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.History)
	assert.Empty(t, resp.Summary)
}

func TestListSessionsHandler(t *testing.T) {
	s, deps := newTestServer(t)
	seedSession(t, deps)
	seedSession(t, deps)

	rec := doRequest(t, s, http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Sessions, 2)

	rec = doRequest(t, s, http.MethodGet, "/api/sessions?since=not-a-date")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSessionHandler_Idempotent(t *testing.T) {
	s, deps := newTestServer(t)
	sessionID := seedSession(t, deps)

	rec := doRequest(t, s, http.MethodDelete, "/api/sessions/"+sessionID)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Message)

	// Deleting again still succeeds.
	rec = doRequest(t, s, http.MethodDelete, "/api/sessions/"+sessionID)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The session is gone: history reads back empty, not 404.
	rec = doRequest(t, s, http.MethodGet, "/api/sessions/"+sessionID)
	require.Equal(t, http.StatusOK, rec.Code)
	var history SessionHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.True(t, history.Success)
	assert.Empty(t, history.History)
}

func TestDeleteAllSessionsHandler(t *testing.T) {
	s, deps := newTestServer(t)
	seedSession(t, deps)
	seedSession(t, deps)

	rec := doRequest(t, s, http.MethodDelete, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "2")

	rec = doRequest(t, s, http.MethodGet, "/api/sessions")
	var list SessionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Sessions)
}
