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

// router produces the routing decision. Arithmetic and explicit URLs
// are detected deterministically; everything else goes through the LLM,
// constrained to the tools whose backends are configured.
func (d *Deps) router(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	if _, err := tools.Evaluate(state.Query); err == nil {
		return routeDelta(&models.RoutingDecision{
			Tool:      models.ToolCalculator,
			Reasoning: "query is an arithmetic expression",
		}), nil
	}

	if target := firstURL(state.Query); target != "" {
		return routeDelta(&models.RoutingDecision{
			Tool:      models.ToolTargetedCrawl,
			Reasoning: "query contains an explicit URL to read",
			TargetURL: target,
		}), nil
	}

	prompt := fmt.Sprintf(
		"Available tools: %s\n\nConversation summary:\n%s\n\nRecent messages:\n%s\nUser query: %s",
		strings.Join(d.availableTools(), ", "),
		orPlaceholder(state.Summary, "(none)"),
		renderHistory(historyTail(state.ChatHistory, historyTailSize)),
		state.Query,
	)

	raw, err := d.LLM.Complete(ctx, llm.Request{
		System:   routerSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to route query: %w", err)
	}

	var decision models.RoutingDecision
	if err := decodeStructured(raw, &decision); err != nil {
		slog.Warn("Router returned unparseable decision, defaulting to direct_answer", "error", err)
		return routeDelta(&models.RoutingDecision{
			Tool:      models.ToolDirectAnswer,
			Reasoning: "router output was unparseable",
		}), nil
	}
	normalizeDecision(&decision)

	return routeDelta(d.validateDecision(&decision)), nil
}

// validateDecision downgrades decisions the system cannot execute:
// unknown tools, unconfigured backends, and crawl targets that are not
// fetchable URLs.
func (d *Deps) validateDecision(decision *models.RoutingDecision) *models.RoutingDecision {
	if !models.ValidTool(decision.Tool) {
		slog.Warn("Router chose an unknown tool, defaulting to direct_answer", "tool", decision.Tool)
		return &models.RoutingDecision{Tool: models.ToolDirectAnswer,
			Reasoning: fmt.Sprintf("unknown tool %q", decision.Tool)}
	}

	if decision.Tool == models.ToolTargetedCrawl && !tools.ValidURL(decision.TargetURL) {
		slog.Warn("Router chose targeted_crawl without a valid URL, downgrading", "target", decision.TargetURL)
		return d.downgrade(decision, "crawl target is not a valid URL")
	}

	if !d.Tools.Configured(decision.Tool) {
		slog.Warn("Router chose an unconfigured tool, downgrading", "tool", decision.Tool)
		return d.downgrade(decision, fmt.Sprintf("%s backend is not configured", decision.Tool))
	}

	return decision
}

// downgrade falls back to web_search when it can carry the query, else
// to direct_answer.
func (d *Deps) downgrade(decision *models.RoutingDecision, reason string) *models.RoutingDecision {
	if decision.Tool != models.ToolWebSearch && d.Tools.Configured(models.ToolWebSearch) {
		return &models.RoutingDecision{
			Tool:        models.ToolWebSearch,
			Reasoning:   reason + "; falling back to web search",
			SearchQuery: decision.SearchQuery,
		}
	}
	return &models.RoutingDecision{Tool: models.ToolDirectAnswer, Reasoning: reason}
}

// availableTools lists the routable tools whose backends are usable.
func (d *Deps) availableTools() []string {
	all := []models.Tool{
		models.ToolInternalRetrieval, models.ToolWebSearch, models.ToolTargetedCrawl,
		models.ToolTranslate, models.ToolDirectAnswer,
	}
	names := make([]string, 0, len(all))
	for _, tool := range all {
		if d.Tools.Configured(tool) {
			names = append(names, string(tool))
		}
	}
	return names
}

// normalizeDecision clears the "None" placeholders models emit for
// unused fields.
func normalizeDecision(decision *models.RoutingDecision) {
	decision.Tool = models.Tool(strings.ToLower(strings.TrimSpace(string(decision.Tool))))
	for _, field := range []*string{&decision.TargetURL, &decision.SearchQuery, &decision.TargetLanguage} {
		if strings.EqualFold(strings.TrimSpace(*field), "none") {
			*field = ""
		}
	}
}

// firstURL returns the first fetchable http(s) URL token in the query.
func firstURL(query string) string {
	for _, field := range strings.Fields(query) {
		token := strings.Trim(field, ".,;:!?)('\"")
		if strings.HasPrefix(token, "http://") || strings.HasPrefix(token, "https://") {
			if tools.ValidURL(token) {
				return token
			}
		}
	}
	return ""
}

func routeDelta(decision *models.RoutingDecision) *models.StateDelta {
	return &models.StateDelta{RoutingDecision: decision}
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}
