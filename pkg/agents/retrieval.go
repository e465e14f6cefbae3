package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/tools"
)

// retrieval dispatches to the tool adapter selected by the router and
// collects evidence. An empty internal retrieval falls back to one web
// search when the fallback flag is on, updating the routing decision so
// downstream nodes and feedback records see what actually ran.
func (d *Deps) retrieval(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	decision := state.RoutingDecision
	if decision == nil {
		return nil, nil
	}

	switch decision.Tool {
	case models.ToolWebSearch, models.ToolInternalRetrieval:
		query := d.searchQuery(ctx, state)
		evidence, err := d.runAdapter(ctx, decision.Tool, query, tools.Options{})
		if err != nil {
			return nil, err
		}

		if len(evidence) == 0 && decision.Tool == models.ToolInternalRetrieval &&
			d.ToolsCfg.FallbackEnabled() && d.Tools.Configured(models.ToolWebSearch) {
			slog.Info("Internal retrieval empty, falling back to web search", "query", query)
			evidence, err = d.runAdapter(ctx, models.ToolWebSearch, query, tools.Options{})
			if err != nil {
				return nil, err
			}
			return &models.StateDelta{
				RetrievedContext: evidence,
				WebResults:       models.Ptr(renderEvidence(evidence)),
				RoutingDecision: &models.RoutingDecision{
					Tool:        models.ToolWebSearch,
					Reasoning:   "internal retrieval returned nothing; fell back to web search",
					SearchQuery: query,
				},
			}, nil
		}

		delta := &models.StateDelta{RetrievedContext: evidence}
		if decision.Tool == models.ToolWebSearch {
			delta.WebResults = models.Ptr(renderEvidence(evidence))
		}
		return delta, nil

	case models.ToolTargetedCrawl:
		evidence, err := d.runAdapter(ctx, decision.Tool, state.Query,
			tools.Options{TargetURL: decision.TargetURL})
		if err != nil {
			return nil, err
		}
		return &models.StateDelta{RetrievedContext: evidence}, nil

	default:
		// calculator/direct_answer/translate paths never reach retrieval.
		return nil, nil
	}
}

func (d *Deps) runAdapter(ctx context.Context, tool models.Tool, query string, opts tools.Options) ([]models.Evidence, error) {
	adapter, ok := d.Tools.Get(tool)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for tool %q", tool)
	}
	evidence, err := adapter.Run(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", tool, err)
	}
	return evidence, nil
}

// searchQuery refines the raw query against the conversation context.
// Refinement failures fall back to the router's search query or the raw
// query; a worse query beats a failed run.
func (d *Deps) searchQuery(ctx context.Context, state *models.AgentState) string {
	fallback := state.Query
	if state.RoutingDecision != nil && state.RoutingDecision.SearchQuery != "" {
		fallback = state.RoutingDecision.SearchQuery
	}
	if state.Summary == "" && len(state.ChatHistory) == 0 {
		// Nothing to resolve against; the query stands on its own.
		return fallback
	}

	prompt := fmt.Sprintf(
		"Conversation summary:\n%s\n\nRecent messages:\n%s\nQuestion: %s",
		orPlaceholder(state.Summary, "(none)"),
		renderHistory(historyTail(state.ChatHistory, historyTailSize)),
		state.Query,
	)
	refined, err := d.LLM.Complete(ctx, llm.Request{
		System:   refineSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		slog.Warn("Query refinement failed, using raw query", "error", err)
		return fallback
	}
	refined = strings.TrimSpace(strings.Trim(strings.TrimSpace(refined), `"`))
	if refined == "" {
		return fallback
	}
	return refined
}

func renderEvidence(evidence []models.Evidence) string {
	var sb strings.Builder
	for i, item := range evidence {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n", i+1, item.Text, item.Source)
	}
	return sb.String()
}
