package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/maestro-ai/maestro/pkg/agents"
	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/graph"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/services"
)

// terminalWriteTimeout bounds the background-context writes that record
// a job's outcome after its own context is spent.
const terminalWriteTimeout = 30 * time.Second

// JobExecutor runs one claimed job to completion.
type JobExecutor interface {
	Execute(ctx context.Context, job *models.Job) *ExecutionResult
}

// ExecutionResult is the terminal outcome of a job run.
type ExecutionResult struct {
	Status models.JobStatus
	Err    error
}

// Executor runs claimed jobs through the graph: load the session
// checkpoint, execute the pipeline with streaming emission and per-node
// checkpoints, persist the final state, and publish exactly one
// terminal event. Client disconnects never reach the job context, so a
// run always finishes and its checkpoint survives.
type Executor struct {
	sessions  *services.SessionService
	publisher *events.Publisher
	registry  graph.Registry
	graphCfg  *config.GraphConfig
}

// NewExecutor creates the pipeline executor.
func NewExecutor(sessions *services.SessionService, publisher *events.Publisher,
	registry graph.Registry, graphCfg *config.GraphConfig) *Executor {
	return &Executor{
		sessions:  sessions,
		publisher: publisher,
		registry:  registry,
		graphCfg:  graphCfg,
	}
}

// Execute runs the job. The context carries the per-job deadline set by
// the worker.
func (e *Executor) Execute(ctx context.Context, job *models.Job) *ExecutionResult {
	log := slog.With("request_id", job.RequestID, "session_id", job.SessionID)

	state, baseSequence, err := e.loadState(ctx, job)
	if err != nil {
		log.Error("Failed to load session state", "error", err)
		e.publishError(job.RequestID, "load", err)
		return &ExecutionResult{Status: models.JobStatusFailed, Err: err}
	}
	history := state.ChatHistory

	// Per-node checkpoints ride the run's sequence counter; each save
	// advances it so the next one is not rejected as stale.
	sequence := baseSequence
	checkpoint := func(cpCtx context.Context, cpState *models.AgentState) error {
		saved, err := e.sessions.SaveState(cpCtx, job.SessionID, cpState, sequence)
		if err != nil {
			return err
		}
		sequence = saved.Sequence
		return nil
	}

	emitters := graph.MultiEmitter{
		&graph.LogEmitter{},
		&streamEmitter{publisher: e.publisher, requestID: job.RequestID},
	}
	if e.graphCfg.Tracing {
		emitters = append(emitters, graph.NewOTelEmitter(otel.Tracer("maestro/graph")))
	}

	engine, err := graph.NewEngine(e.graphCfg, e.registry,
		graph.WithEmitter(emitters),
		graph.WithCheckpoint(checkpoint),
	)
	if err != nil {
		e.publishError(job.RequestID, "setup", err)
		return &ExecutionResult{Status: models.JobStatusFailed, Err: err}
	}

	state, runErr := engine.Run(ctx, job.RequestID, state)
	if runErr != nil {
		stage := string(graph.NodeRouter)
		if state.Error != nil {
			stage = state.Error.Stage
		}
		log.Error("Pipeline run failed", "stage", stage, "error", runErr)

		// Work done before the failure is worth keeping: persist a partial
		// checkpoint when retrieval (or anything after it) succeeded.
		if len(state.RetrievedContext) > 0 || state.DraftAnswer != "" {
			e.persistFinal(job, state, sequence, log)
		}
		e.publishError(job.RequestID, stage, runErr)
		return &ExecutionResult{Status: models.JobStatusFailed, Err: runErr}
	}

	// The turn's messages join the history only on success, keeping the
	// summary and messages consistent.
	state.ChatHistory = append(history,
		models.Message{Role: models.RoleUser, Content: job.Query, CreatedAt: time.Now()},
		models.Message{Role: models.RoleAssistant, Content: state.FinalAnswer, CreatedAt: time.Now()},
	)

	if err := e.persistFinal(job, state, sequence, log); err != nil {
		e.publishError(job.RequestID, "persist", err)
		return &ExecutionResult{Status: models.JobStatusFailed, Err: err}
	}

	e.publishComplete(job.RequestID, state)
	return &ExecutionResult{Status: models.JobStatusCompleted}
}

// loadState restores the session's latest checkpoint, or builds a fresh
// state for a new session. The job's query and language options always
// override the checkpointed turn data.
func (e *Executor) loadState(ctx context.Context, job *models.Job) (*models.AgentState, int64, error) {
	state := &models.AgentState{
		Query:                job.Query,
		GlobalTargetLanguage: job.TargetLanguage,
	}

	cp, err := e.sessions.GetState(ctx, job.SessionID)
	if errors.Is(err, services.ErrNotFound) {
		return state, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	state.ChatHistory = cp.State.ChatHistory
	state.Summary = cp.State.Summary
	return state, cp.Sequence, nil
}

// persistFinal is the guaranteed end-of-run checkpoint. It runs on a
// background context so a spent job deadline cannot lose the state.
func (e *Executor) persistFinal(job *models.Job, state *models.AgentState, baseSequence int64, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	if _, err := e.sessions.SaveState(ctx, job.SessionID, state, baseSequence); err != nil {
		log.Error("Failed to persist final checkpoint", "error", err)
		return &graph.StoreError{Op: "save final checkpoint", Err: err}
	}
	return nil
}

// publishComplete emits the single terminal complete event. Terminal
// writes use a background context; the job's own context may be done.
func (e *Executor) publishComplete(requestID string, state *models.AgentState) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	payload := map[string]any{
		"final_answer": state.FinalAnswer,
		"intent":       state.Intent,
		"summary":      state.Summary,
	}
	if state.RoutingDecision != nil {
		payload["routing_decision"] = string(state.RoutingDecision.Tool)
	}

	if _, err := e.publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID,
		Kind:      events.KindComplete,
		Payload:   payload,
		Terminal:  true,
	}); err != nil {
		slog.Error("Failed to publish complete event", "request_id", requestID, "error", err)
	}
}

// publishError emits the single terminal error event.
func (e *Executor) publishError(requestID, stage string, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	if _, err := e.publisher.Publish(ctx, models.CreateEventRequest{
		RequestID: requestID,
		Kind:      events.KindError,
		Payload: map[string]any{
			"error": runErr.Error(),
			"stage": stage,
		},
		Terminal: true,
	}); err != nil {
		slog.Error("Failed to publish error event", "request_id", requestID, "error", err)
	}
}

// streamEmitter forwards graph events to the request's stream: a node
// event on entry and a state_delta on exit when the node changed state.
type streamEmitter struct {
	publisher *events.Publisher
	requestID string
}

func (s *streamEmitter) Emit(event graph.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	switch event.Msg {
	case graph.MsgNodeStart:
		_, err := s.publisher.Publish(ctx, models.CreateEventRequest{
			RequestID: s.requestID,
			Kind:      events.KindNode,
			Payload:   map[string]any{"node": string(event.Node), "step": event.Step},
		})
		if err != nil {
			slog.Warn("Failed to publish node event",
				"request_id", s.requestID, "node", event.Node, "error", err)
		}

	case graph.MsgStateDelta:
		payload := map[string]any{"node": string(event.Node), "step": event.Step}
		if delta := deltaPayload(event.Delta); len(delta) > 0 {
			payload["delta"] = delta
		}
		_, err := s.publisher.Publish(ctx, models.CreateEventRequest{
			RequestID: s.requestID,
			Kind:      events.KindStateDelta,
			Payload:   payload,
		})
		if err != nil {
			slog.Warn("Failed to publish state delta event",
				"request_id", s.requestID, "node", event.Node, "error", err)
		}
	}
}

// deltaPayload projects the client-visible fields out of a state delta.
// Internal bookkeeping (critique text, plans) stays off the wire.
func deltaPayload(delta *models.StateDelta) map[string]any {
	if delta == nil {
		return nil
	}
	out := map[string]any{}
	if delta.RoutingDecision != nil {
		out["routing_decision"] = string(delta.RoutingDecision.Tool)
	}
	if delta.Intent != nil {
		out["intent"] = *delta.Intent
	}
	if delta.DraftAnswer != nil {
		out["draft_answer"] = *delta.DraftAnswer
	}
	if delta.FinalAnswer != nil {
		out["final_answer"] = *delta.FinalAnswer
	}
	if delta.Summary != nil {
		out["summary"] = *delta.Summary
	}
	if delta.RetrievedContext != nil {
		out["retrieved_context_count"] = len(delta.RetrievedContext)
	}
	if delta.RevisionCount != nil {
		out["revision_count"] = *delta.RevisionCount
	}
	if delta.Error != nil {
		out["error"] = delta.Error.Message
	}
	return out
}

// NewPipelineRegistry wires the agent nodes for production use.
func NewPipelineRegistry(deps *agents.Deps) graph.Registry {
	return agents.NewRegistry(deps)
}
