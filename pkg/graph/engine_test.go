package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/models"
)

// recordingEmitter captures events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) nodeSequence() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	var seq []Node
	for _, ev := range r.events {
		if ev.Msg == MsgNodeStart {
			seq = append(seq, ev.Node)
		}
	}
	return seq
}

// noopNode returns an empty delta.
func noopNode(context.Context, *models.AgentState) (*models.StateDelta, error) {
	return &models.StateDelta{}, nil
}

// testRegistry builds a registry of no-op nodes with overrides.
func testRegistry(overrides map[Node]Func) Registry {
	reg := Registry{}
	for _, node := range []Node{
		NodeRouter, NodePlanner, NodeRetrieval, NodeGenerator,
		NodeCritic, NodeTranslator, NodeSummarize, NodeFinalize,
	} {
		reg[node] = noopNode
	}
	for node, fn := range overrides {
		reg[node] = fn
	}
	return reg
}

func routeTo(tool models.Tool) Func {
	return func(context.Context, *models.AgentState) (*models.StateDelta, error) {
		return &models.StateDelta{RoutingDecision: &models.RoutingDecision{Tool: tool}}, nil
	}
}

func TestEngine_RegistryValidation(t *testing.T) {
	_, err := NewEngine(config.DefaultGraphConfig(), Registry{NodeRouter: noopNode})
	assert.Error(t, err)
}

func TestEngine_NodeSequences(t *testing.T) {
	tests := []struct {
		name string
		tool models.Tool
		want []Node
	}{
		{
			name: "retrieval path walks the full pipeline",
			tool: models.ToolWebSearch,
			want: []Node{NodeRouter, NodePlanner, NodeRetrieval, NodeGenerator, NodeCritic, NodeTranslator, NodeSummarize, NodeFinalize},
		},
		{
			name: "direct answer skips planner and retrieval",
			tool: models.ToolDirectAnswer,
			want: []Node{NodeRouter, NodeGenerator, NodeCritic, NodeTranslator, NodeSummarize, NodeFinalize},
		},
		{
			name: "calculator skips the critic",
			tool: models.ToolCalculator,
			want: []Node{NodeRouter, NodeGenerator, NodeTranslator, NodeSummarize, NodeFinalize},
		},
		{
			name: "translate goes straight to the translator",
			tool: models.ToolTranslate,
			want: []Node{NodeRouter, NodeTranslator, NodeSummarize, NodeFinalize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitter := &recordingEmitter{}
			engine, err := NewEngine(config.DefaultGraphConfig(),
				testRegistry(map[Node]Func{NodeRouter: routeTo(tt.tool)}),
				WithEmitter(emitter))
			require.NoError(t, err)

			state := &models.AgentState{Query: "q"}
			_, err = engine.Run(context.Background(), "run-1", state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, emitter.nodeSequence())
		})
	}
}

func TestEngine_RevisionLoopBounded(t *testing.T) {
	// Critic always demands revision; the loop must stop at MaxRevisions.
	generatorRuns := 0
	critic := func(_ context.Context, state *models.AgentState) (*models.StateDelta, error) {
		if state.RevisionCount >= 2 {
			return &models.StateDelta{NeedsRevision: models.Ptr(false)}, nil
		}
		return &models.StateDelta{
			NeedsRevision: models.Ptr(true),
			RevisionCount: models.Ptr(state.RevisionCount + 1),
		}, nil
	}
	generator := func(context.Context, *models.AgentState) (*models.StateDelta, error) {
		generatorRuns++
		return &models.StateDelta{DraftAnswer: models.Ptr("draft")}, nil
	}

	engine, err := NewEngine(config.DefaultGraphConfig(),
		testRegistry(map[Node]Func{
			NodeRouter:    routeTo(models.ToolDirectAnswer),
			NodeGenerator: generator,
			NodeCritic:    critic,
		}))
	require.NoError(t, err)

	state, err := engine.Run(context.Background(), "run-1", &models.AgentState{Query: "q"})
	require.NoError(t, err)
	// Initial generation plus two revisions.
	assert.Equal(t, 3, generatorRuns)
	assert.Equal(t, 2, state.RevisionCount)
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	flaky := func(context.Context, *models.AgentState) (*models.StateDelta, error) {
		attempts++
		if attempts == 1 {
			return nil, &TransientBackendError{Backend: "search", Err: errors.New("rate limited")}
		}
		return &models.StateDelta{}, nil
	}

	cfg := config.DefaultGraphConfig()
	cfg.NodeRetryBackoff = time.Millisecond
	engine, err := NewEngine(cfg, testRegistry(map[Node]Func{NodeRetrieval: flaky}))
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), "run-1",
		&models.AgentState{Query: "q", RoutingDecision: &models.RoutingDecision{Tool: models.ToolWebSearch}})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestEngine_UnrecoverableNodeError(t *testing.T) {
	broken := func(context.Context, *models.AgentState) (*models.StateDelta, error) {
		return nil, &ConfigError{Component: "web_search", Reason: "no API key"}
	}

	engine, err := NewEngine(config.DefaultGraphConfig(),
		testRegistry(map[Node]Func{NodeRetrieval: broken}))
	require.NoError(t, err)

	state, err := engine.Run(context.Background(), "run-1",
		&models.AgentState{Query: "q", RoutingDecision: &models.RoutingDecision{Tool: models.ToolWebSearch}})
	require.Error(t, err)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, NodeRetrieval, nodeErr.Node)
	require.NotNil(t, state.Error)
	assert.Equal(t, "retrieval", state.Error.Stage)
}

func TestEngine_StepBudgetFallback(t *testing.T) {
	// A critic that always demands revision with a broken counter would
	// loop forever; MaxSteps converts that into a served answer.
	critic := func(context.Context, *models.AgentState) (*models.StateDelta, error) {
		return &models.StateDelta{NeedsRevision: models.Ptr(true)}, nil
	}
	generator := func(context.Context, *models.AgentState) (*models.StateDelta, error) {
		return &models.StateDelta{DraftAnswer: models.Ptr("best effort draft")}, nil
	}

	cfg := config.DefaultGraphConfig()
	cfg.MaxSteps = 6
	cfg.MaxRevisions = 1000
	engine, err := NewEngine(cfg, testRegistry(map[Node]Func{
		NodeRouter:    routeTo(models.ToolDirectAnswer),
		NodeGenerator: generator,
		NodeCritic:    critic,
	}))
	require.NoError(t, err)

	state, err := engine.Run(context.Background(), "run-1", &models.AgentState{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "best effort draft", state.FinalAnswer)
}

func TestEngine_StepBudgetApologyStub(t *testing.T) {
	router := func(context.Context, *models.AgentState) (*models.StateDelta, error) {
		return &models.StateDelta{}, nil
	}

	cfg := config.DefaultGraphConfig()
	cfg.MaxSteps = 1
	engine, err := NewEngine(cfg, testRegistry(map[Node]Func{NodeRouter: router}))
	require.NoError(t, err)

	state, err := engine.Run(context.Background(), "run-1", &models.AgentState{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, budgetFallbackAnswer, state.FinalAnswer)
}

func TestEngine_EmitsDeltaOnlyWhenChanged(t *testing.T) {
	emitter := &recordingEmitter{}
	engine, err := NewEngine(config.DefaultGraphConfig(),
		testRegistry(map[Node]Func{
			NodeRouter: routeTo(models.ToolDirectAnswer),
			NodeGenerator: func(context.Context, *models.AgentState) (*models.StateDelta, error) {
				return &models.StateDelta{DraftAnswer: models.Ptr("d")}, nil
			},
		}),
		WithEmitter(emitter))
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), "run-1", &models.AgentState{Query: "q"})
	require.NoError(t, err)

	deltas := 0
	for _, ev := range emitter.events {
		if ev.Msg == MsgStateDelta {
			deltas++
			require.NotNil(t, ev.Delta)
		}
	}
	// Only the router and generator changed state.
	assert.Equal(t, 2, deltas)
}

func TestEngine_CheckpointHookPerNode(t *testing.T) {
	var checkpoints int
	engine, err := NewEngine(config.DefaultGraphConfig(),
		testRegistry(map[Node]Func{NodeRouter: routeTo(models.ToolDirectAnswer)}),
		WithCheckpoint(func(context.Context, *models.AgentState) error {
			checkpoints++
			return nil
		}))
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), "run-1", &models.AgentState{Query: "q"})
	require.NoError(t, err)
	// One checkpoint per executed node.
	assert.Equal(t, 6, checkpoints)
}

func TestEngine_JobDeadline(t *testing.T) {
	slow := func(ctx context.Context, _ *models.AgentState) (*models.StateDelta, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	engine, err := NewEngine(config.DefaultGraphConfig(),
		testRegistry(map[Node]Func{NodeRouter: slow}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = engine.Run(ctx, "run-1", &models.AgentState{Query: "q"})
	require.Error(t, err)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.False(t, nodeErr.Retryable)
}
