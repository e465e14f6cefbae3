package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
)

type planSchema struct {
	Intent    string   `json:"intent"`
	Steps     []string `json:"steps"`
	Reasoning string   `json:"reasoning"`
}

// planner derives the user's intent and a short ordered plan. It is a
// no-op for calculator and direct_answer routes, which need no plan.
func (d *Deps) planner(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	if state.RoutingDecision != nil {
		switch state.RoutingDecision.Tool {
		case models.ToolCalculator, models.ToolDirectAnswer:
			return nil, nil
		}
	}

	prompt := fmt.Sprintf(
		"Conversation summary:\n%s\n\nRecent messages:\n%s\nUser query: %s",
		orPlaceholder(state.Summary, "(none)"),
		renderHistory(historyTail(state.ChatHistory, historyTailSize)),
		state.Query,
	)

	raw, err := d.LLM.Complete(ctx, llm.Request{
		System:   plannerSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to plan query: %w", err)
	}

	var plan planSchema
	if err := decodeStructured(raw, &plan); err != nil {
		// A malformed plan is not worth failing the run; the generator
		// gets the raw text as intent.
		slog.Warn("Planner returned unparseable plan", "error", err)
		return &models.StateDelta{Intent: models.Ptr(strings.TrimSpace(raw))}, nil
	}

	return &models.StateDelta{
		Intent: models.Ptr(plan.Intent),
		Plan:   plan.Steps,
	}, nil
}
