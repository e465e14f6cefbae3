package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/graph"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/tools"
)

func runPipeline(t *testing.T, deps *Deps, state *models.AgentState) *models.AgentState {
	t.Helper()
	engine, err := graph.NewEngine(deps.Graph, NewRegistry(deps))
	require.NoError(t, err)
	final, err := engine.Run(context.Background(), "test-run", state)
	require.NoError(t, err)
	return final
}

func TestPipeline_Calculator(t *testing.T) {
	// The whole calculator path is deterministic: no LLM involved.
	client := llm.NewScriptedClient("stub")
	deps := newTestDeps(client, tools.NewCalculator())

	state := runPipeline(t, deps, &models.AgentState{Query: "What is 15% of 1500?"})

	assert.Contains(t, state.FinalAnswer, "225")
	assert.Equal(t, models.ToolCalculator, state.RoutingDecision.Tool)
	assert.Zero(t, client.CallCount())
}

func TestPipeline_WebSearchWithRevisions(t *testing.T) {
	client := llm.NewScriptedClient("stub").Enqueue(
		`{"tool": "web_search", "reasoning": "current events", "search_query": "mars rover landing"}`,
		`{"intent": "find landing news", "steps": ["search", "synthesize"], "reasoning": "needs fresh data"}`,
		"The rover landed last week [Source 1].",
		`{"verdict": "needs_revision", "reasons": ["missing date"], "instructions": "include the landing date"}`,
		"The rover landed on March 3rd [Source 1].",
		`{"verdict": "needs_revision", "reasons": ["missing site"], "instructions": "name the landing site"}`,
		"The rover landed on March 3rd at Jezero Crater [Source 1].",
		`{"verdict": "approved"}`,
	)
	web := &fakeAdapter{kind: models.ToolWebSearch, configured: true,
		evidence: []models.Evidence{{Text: "Rover lands at Jezero Crater on March 3rd", Source: "https://example.com/news"}}}
	deps := newTestDeps(client, web)

	state := runPipeline(t, deps, &models.AgentState{Query: "Did the rover land?"})

	assert.Equal(t, "The rover landed on March 3rd at Jezero Crater [Source 1].", state.FinalAnswer)
	assert.Equal(t, 2, state.RevisionCount)
	assert.False(t, state.NeedsRevision)
	assert.Equal(t, []int{0}, state.Citations)
	require.Len(t, web.queries, 1)
	assert.Equal(t, "mars rover landing", web.queries[0])
	assert.Equal(t, 8, client.CallCount())
}

func TestPipeline_RetrievalFallbackFlipsRouting(t *testing.T) {
	client := llm.NewScriptedClient("stub").Enqueue(
		`{"tool": "internal_retrieval", "reasoning": "book question", "search_query": "chapter one lessons"}`,
		`{"intent": "summarize chapter", "steps": ["retrieve", "summarize"]}`,
		"The chapter teaches saving first [Source 1].",
		`{"verdict": "approved"}`,
	)
	internal := &fakeAdapter{kind: models.ToolInternalRetrieval, configured: true}
	web := &fakeAdapter{kind: models.ToolWebSearch, configured: true,
		evidence: []models.Evidence{{Text: "Chapter one is about saving first", Source: "https://example.com/review"}}}
	deps := newTestDeps(client, internal, web)

	state := runPipeline(t, deps, &models.AgentState{Query: "What does chapter one teach?"})

	assert.Equal(t, models.ToolWebSearch, state.RoutingDecision.Tool)
	require.Len(t, state.RetrievedContext, 1)
	assert.Equal(t, []string{"chapter one lessons"}, internal.queries)
	assert.Equal(t, []string{"chapter one lessons"}, web.queries)
	assert.Contains(t, state.FinalAnswer, "saving first")
}

func TestPipeline_FallbackDisabledKeepsEmptyContext(t *testing.T) {
	client := llm.NewScriptedClient("stub").Enqueue(
		`{"tool": "internal_retrieval", "reasoning": "book question"}`,
		`{"intent": "answer", "steps": ["retrieve"]}`,
		"I could not find that in the knowledge base.",
		`{"verdict": "approved"}`,
	)
	internal := &fakeAdapter{kind: models.ToolInternalRetrieval, configured: true}
	web := &fakeAdapter{kind: models.ToolWebSearch, configured: true}
	deps := newTestDeps(client, internal, web)
	disabled := false
	deps.ToolsCfg.FallbackWebOnEmptyRetrieval = &disabled

	state := runPipeline(t, deps, &models.AgentState{Query: "What does the appendix cover?"})

	assert.Equal(t, models.ToolInternalRetrieval, state.RoutingDecision.Tool)
	assert.Empty(t, web.queries)
	assert.Empty(t, state.RetrievedContext)
}

func TestPipeline_TranslateRoute(t *testing.T) {
	client := llm.NewScriptedClient("stub").Enqueue(
		`{"tool": "translate", "reasoning": "explicit translation request", "target_language": "Spanish"}`,
		"Hola mundo",
	)
	deps := newTestDeps(client)

	state := runPipeline(t, deps, &models.AgentState{Query: "Translate 'Hello world' to Spanish"})

	assert.Equal(t, "Hola mundo", state.FinalAnswer)
	assert.Equal(t, "Spanish", state.TargetLanguage)
	// router + translator only: no planner, retrieval, generator, or critic.
	assert.Equal(t, 2, client.CallCount())
}

func TestPipeline_GlobalTargetLanguage(t *testing.T) {
	client := llm.NewScriptedClient("stub").Enqueue(
		`{"tool": "direct_answer", "reasoning": "greeting"}`,
		"Hello! How can I help you today?",
		`{"verdict": "approved"}`,
		"Bonjour ! Comment puis-je vous aider ?",
	)
	deps := newTestDeps(client)

	state := runPipeline(t, deps, &models.AgentState{
		Query:                "hi there",
		GlobalTargetLanguage: "French",
	})

	assert.Equal(t, "Bonjour ! Comment puis-je vous aider ?", state.FinalAnswer)
	assert.Equal(t, "French", state.TargetLanguage)
}

func TestPipeline_CriticRejectionReplacesDraft(t *testing.T) {
	client := llm.NewScriptedClient("stub").Enqueue(
		`{"tool": "direct_answer", "reasoning": "chit-chat"}`,
		"Here is how to do something harmful.",
		`{"verdict": "rejected", "reasons": ["safety violation"]}`,
	)
	deps := newTestDeps(client)

	state := runPipeline(t, deps, &models.AgentState{Query: "tell me something"})

	assert.Equal(t, safetyRefusalAnswer, state.FinalAnswer)
	assert.Equal(t, models.VerdictRejected, state.Critique.Verdict)
	assert.Zero(t, state.RevisionCount)
}

func TestPipeline_UnparseableCritiqueApproves(t *testing.T) {
	client := llm.NewScriptedClient("stub").Enqueue(
		`{"tool": "direct_answer", "reasoning": "greeting"}`,
		"Hi!",
		"Looks good to me.",
	)
	deps := newTestDeps(client)

	state := runPipeline(t, deps, &models.AgentState{Query: "hello"})

	assert.Equal(t, "Hi!", state.FinalAnswer)
	assert.Equal(t, models.VerdictApproved, state.Critique.Verdict)
}

func TestSummarizeNode_NonFatalOnFailure(t *testing.T) {
	deps := newTestDeps(failingCompleteClient{})
	history := make([]models.Message, 20)
	for i := range history {
		history[i] = models.Message{Role: models.RoleUser, Content: "m"}
	}

	delta, err := deps.summarize(context.Background(), &models.AgentState{
		ChatHistory: history, Summary: "old summary",
	})
	require.NoError(t, err)
	assert.Nil(t, delta)
}

type failingCompleteClient struct{}

func (failingCompleteClient) Complete(context.Context, llm.Request) (string, error) {
	return "", assert.AnError
}

func (failingCompleteClient) Embed(context.Context, []string) ([][]float32, error) {
	return nil, assert.AnError
}

func (failingCompleteClient) Model() string { return "failing" }

func TestSummarizeNode_UpdatesSummary(t *testing.T) {
	client := llm.NewScriptedClient("stub").Enqueue("they talked at length")
	deps := newTestDeps(client)

	history := make([]models.Message, 12)
	for i := range history {
		history[i] = models.Message{Role: models.RoleUser, Content: "m"}
	}

	delta, err := deps.summarize(context.Background(), &models.AgentState{ChatHistory: history})
	require.NoError(t, err)
	require.NotNil(t, delta.Summary)
	assert.Equal(t, "they talked at length", *delta.Summary)
}
