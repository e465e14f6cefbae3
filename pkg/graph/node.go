// Package graph runs the question-answering pipeline as an explicit
// state machine: named nodes, a conditional transition table, per-node
// timeouts and retries, and pluggable emitters for observability.
package graph

import (
	"context"

	"github.com/maestro-ai/maestro/pkg/models"
)

// Node names one step of the pipeline.
type Node string

const (
	NodeRouter     Node = "router"
	NodePlanner    Node = "planner"
	NodeRetrieval  Node = "retrieval"
	NodeGenerator  Node = "generator"
	NodeCritic     Node = "critic"
	NodeTranslator Node = "translator"
	NodeSummarize  Node = "summarize"
	NodeFinalize   Node = "finalize"
)

// Func is one node's implementation. It receives a clone of the current
// state and returns only the fields it changed; the engine merges the
// delta through the single reducer. A nil delta is a valid no-op.
type Func func(ctx context.Context, state *models.AgentState) (*models.StateDelta, error)

// Registry maps node names to implementations. Built by pkg/agents.
type Registry map[Node]Func
