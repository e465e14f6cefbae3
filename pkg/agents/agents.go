// Package agents implements the pipeline nodes: pure state→delta
// functions over the LLM client and the tool registry, registered into
// the graph runtime by NewRegistry.
package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/graph"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/summarizer"
	"github.com/maestro-ai/maestro/pkg/tools"
)

// historyTailSize is how many recent messages nodes include as context.
const historyTailSize = 6

// Deps carries the shared dependencies behind every node.
type Deps struct {
	LLM        llm.Client
	Tools      *tools.Registry
	Summarizer *summarizer.Summarizer
	Graph      *config.GraphConfig
	ToolsCfg   *config.ToolsConfig
}

// NewRegistry binds the node implementations into a graph registry.
func NewRegistry(deps *Deps) graph.Registry {
	return graph.Registry{
		graph.NodeRouter:     deps.router,
		graph.NodePlanner:    deps.planner,
		graph.NodeRetrieval:  deps.retrieval,
		graph.NodeGenerator:  deps.generator,
		graph.NodeCritic:     deps.critic,
		graph.NodeTranslator: deps.translator,
		graph.NodeSummarize:  deps.summarize,
		graph.NodeFinalize:   deps.finalize,
	}
}

// decodeStructured extracts the first JSON object from an LLM response,
// tolerating code fences and surrounding prose.
func decodeStructured(raw string, out any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), out); err != nil {
		return fmt.Errorf("failed to decode structured response: %w", err)
	}
	return nil
}

// historyTail returns the most recent n messages.
func historyTail(history []models.Message, n int) []models.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// renderHistory formats messages for inclusion in a prompt.
func renderHistory(history []models.Message) string {
	if len(history) == 0 {
		return "(no prior messages)"
	}
	var sb strings.Builder
	for _, msg := range history {
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}
