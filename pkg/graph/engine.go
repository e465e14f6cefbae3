package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/models"
)

// budgetFallbackAnswer stands in for a final answer when the step
// budget runs out before a draft exists.
const budgetFallbackAnswer = "I was unable to produce a confident answer to this question. Please try rephrasing it."

// CheckpointFunc persists the state after a node exit. Failures are
// logged, not fatal; the worker does a guaranteed final persist.
type CheckpointFunc func(ctx context.Context, state *models.AgentState) error

// Engine walks the pipeline state machine. One engine instance is
// shared by all workers; per-run state lives in the AgentState.
type Engine struct {
	cfg        *config.GraphConfig
	nodes      Registry
	emitter    Emitter
	checkpoint CheckpointFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmitter sets the observability emitter.
func WithEmitter(e Emitter) Option {
	return func(eng *Engine) { eng.emitter = e }
}

// WithCheckpoint sets the per-node checkpoint hook.
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(eng *Engine) { eng.checkpoint = fn }
}

// NewEngine creates an engine over the node registry. The registry must
// cover every pipeline node.
func NewEngine(cfg *config.GraphConfig, nodes Registry, opts ...Option) (*Engine, error) {
	for _, node := range []Node{
		NodeRouter, NodePlanner, NodeRetrieval, NodeGenerator,
		NodeCritic, NodeTranslator, NodeSummarize, NodeFinalize,
	} {
		if _, ok := nodes[node]; !ok {
			return nil, fmt.Errorf("node registry missing %q", node)
		}
	}

	engine := &Engine{
		cfg:     cfg,
		nodes:   nodes,
		emitter: NullEmitter{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Run executes the pipeline from the router until a terminal node,
// mutating and returning the given state. The context carries the
// per-job deadline. On node failure the returned state has Error set
// and the error identifies the failing node.
func (e *Engine) Run(ctx context.Context, runID string, state *models.AgentState) (*models.AgentState, error) {
	node := NodeRouter
	steps := 0

	for {
		steps++
		if steps > e.cfg.MaxSteps {
			// Out of budget: ship what we have instead of failing the run.
			e.applyBudgetFallback(state)
			slog.Warn("Graph step budget exhausted",
				"run_id", runID, "steps", steps-1, "node", node)
			e.finishRun(runID, steps-1, node, "budget_exceeded")
			return state, nil
		}

		e.emitter.Emit(Event{RunID: runID, Step: steps, Node: node, Msg: MsgNodeStart})

		start := time.Now()
		delta, err := e.runNode(ctx, node, state)
		duration := time.Since(start)
		nodeDuration.WithLabelValues(string(node)).Observe(duration.Seconds())

		meta := map[string]any{"duration_ms": duration.Milliseconds()}
		if err != nil {
			meta["error"] = err.Error()
		}
		e.emitter.Emit(Event{RunID: runID, Step: steps, Node: node, Msg: MsgNodeEnd, Meta: meta})

		if err != nil {
			var nodeErr *NodeError
			if !errors.As(err, &nodeErr) {
				err = &NodeError{Node: node, Stage: string(node), Retryable: false, Err: err}
			}
			state.Error = &models.StateError{Stage: string(node), Message: err.Error()}
			e.finishRun(runID, steps, node, "error")
			return state, err
		}

		state.Apply(delta)
		if !delta.IsEmpty() {
			e.emitter.Emit(Event{RunID: runID, Step: steps, Node: node, Msg: MsgStateDelta, Delta: delta})
		}

		if e.checkpoint != nil {
			if err := e.checkpoint(ctx, state); err != nil {
				slog.Warn("Checkpoint failed after node",
					"run_id", runID, "node", node, "error", err)
			}
		}

		next, terminal := e.transition(node, state)
		if terminal {
			e.finishRun(runID, steps, node, "completed")
			return state, nil
		}
		node = next
	}
}

// runNode executes one node with its timeout, retrying transient
// failures with doubling backoff up to the configured attempt cap.
func (e *Engine) runNode(ctx context.Context, node Node, state *models.AgentState) (*models.StateDelta, error) {
	fn, ok := e.nodes[node]
	if !ok {
		return nil, fmt.Errorf("no implementation registered for node %q", node)
	}

	attempts := e.cfg.NodeRetryMax
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		nodeCtx, cancel := context.WithTimeout(ctx, e.cfg.TimeoutFor(string(node)))
		delta, err := fn(nodeCtx, state.Clone())
		cancel()

		if err == nil {
			return delta, nil
		}
		if ctx.Err() != nil {
			// Job deadline or cancellation — no point retrying.
			return nil, &NodeError{Node: node, Stage: string(node), Retryable: false, Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// Node timeout with the job still alive counts as transient.
			err = &TransientBackendError{Backend: string(node), Err: err}
		}
		lastErr = err
		if !Retryable(err) || attempt == attempts {
			break
		}

		nodeRetries.WithLabelValues(string(node)).Inc()
		backoff := e.cfg.NodeRetryBackoff << (attempt - 1)
		slog.Warn("Retrying node after transient failure",
			"node", node, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, &NodeError{Node: node, Stage: string(node), Retryable: false, Err: ctx.Err()}
		}
	}
	return nil, lastErr
}

// transition is the conditional edge table.
func (e *Engine) transition(node Node, state *models.AgentState) (Node, bool) {
	switch node {
	case NodeRouter:
		tool := models.ToolDirectAnswer
		if state.RoutingDecision != nil {
			tool = state.RoutingDecision.Tool
		}
		switch tool {
		case models.ToolCalculator, models.ToolDirectAnswer:
			return NodeGenerator, false
		case models.ToolTranslate:
			return NodeTranslator, false
		default:
			return NodePlanner, false
		}

	case NodePlanner:
		return NodeRetrieval, false

	case NodeRetrieval:
		return NodeGenerator, false

	case NodeGenerator:
		// Calculator results are deterministic; the critic adds nothing.
		if state.RoutingDecision != nil && state.RoutingDecision.Tool == models.ToolCalculator {
			return NodeTranslator, false
		}
		return NodeCritic, false

	case NodeCritic:
		// The critic increments RevisionCount when it requests a revision,
		// so a count at the cap is the last permitted revision.
		if state.NeedsRevision && state.RevisionCount <= e.cfg.MaxRevisions {
			return NodeGenerator, false
		}
		return NodeTranslator, false

	case NodeTranslator:
		return NodeSummarize, false

	case NodeSummarize:
		return NodeFinalize, false
	}
	return "", true
}

// applyBudgetFallback promotes the last draft to the final answer, or
// an apology stub when no draft exists yet.
func (e *Engine) applyBudgetFallback(state *models.AgentState) {
	if state.FinalAnswer != "" {
		return
	}
	if state.DraftAnswer != "" {
		state.FinalAnswer = state.DraftAnswer
		return
	}
	state.FinalAnswer = budgetFallbackAnswer
}

func (e *Engine) finishRun(runID string, steps int, node Node, status string) {
	runsTotal.WithLabelValues(status).Inc()
	runSteps.Observe(float64(steps))
	e.emitter.Emit(Event{RunID: runID, Step: steps, Node: node, Msg: MsgRunEnd,
		Meta: map[string]any{"status": status}})
}
