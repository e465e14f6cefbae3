package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/tools"
)

// citationPattern matches [Source N] and the legacy [Doc N] notation.
var citationPattern = regexp.MustCompile(`\[(?:Doc|Source)\s*(\d+)\]`)

// generator produces the draft answer. Calculator routes evaluate
// deterministically; revisions incorporate the critic's instructions;
// everything else synthesizes from the retrieved context.
func (d *Deps) generator(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	if state.RoutingDecision != nil && state.RoutingDecision.Tool == models.ToolCalculator {
		return d.generateCalculation(ctx, state)
	}
	if state.NeedsRevision && state.Critique != nil {
		return d.generateRevision(ctx, state)
	}
	return d.generateDraft(ctx, state)
}

func (d *Deps) generateCalculation(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	adapter, ok := d.Tools.Get(models.ToolCalculator)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for tool %q", models.ToolCalculator)
	}
	evidence, err := adapter.Run(ctx, state.Query, tools.Options{})
	if err != nil {
		return nil, fmt.Errorf("calculator failed: %w", err)
	}
	if len(evidence) == 0 {
		return nil, fmt.Errorf("calculator returned no result")
	}
	return &models.StateDelta{
		DraftAnswer:      models.Ptr(evidence[0].Text),
		RetrievedContext: evidence,
	}, nil
}

func (d *Deps) generateDraft(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	instructions := "(none)"
	if state.Intent != "" || len(state.Plan) > 0 {
		instructions = fmt.Sprintf("Intent: %s. Plan: %s", state.Intent, strings.Join(state.Plan, "; "))
	}

	prompt := fmt.Sprintf(
		"Original user question: %s\n\nInstructions: %s\n\nConversation summary:\n%s\n\nRecent messages:\n%s\nContext:\n%s\nNow write the answer.",
		state.Query,
		instructions,
		orPlaceholder(state.Summary, "(none)"),
		renderHistory(historyTail(state.ChatHistory, historyTailSize)),
		formatContext(state.RetrievedContext),
	)

	answer, err := d.LLM.Complete(ctx, llm.Request{
		System:   generatorSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &models.StateDelta{
		DraftAnswer: models.Ptr(strings.TrimSpace(answer)),
		Citations:   extractCitations(answer, len(state.RetrievedContext)),
	}, nil
}

func (d *Deps) generateRevision(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	prompt := fmt.Sprintf(
		"Original user question: %s\n\nDraft answer:\n%s\n\nReviewer instructions:\n%s\nReviewer reasons: %s\n\nContext:\n%s\nReturn the revised answer.",
		state.Query,
		state.DraftAnswer,
		state.Critique.Instructions,
		strings.Join(state.Critique.Reasons, "; "),
		formatContext(state.RetrievedContext),
	)

	answer, err := d.LLM.Complete(ctx, llm.Request{
		System:   reviserSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to revise answer: %w", err)
	}

	return &models.StateDelta{
		DraftAnswer: models.Ptr(strings.TrimSpace(answer)),
		Citations:   extractCitations(answer, len(state.RetrievedContext)),
	}, nil
}

// formatContext renders evidence as numbered [Source N] blocks matching
// the citation notation the prompts require.
func formatContext(evidence []models.Evidence) string {
	if len(evidence) == 0 {
		return "(no context retrieved)\n"
	}
	var sb strings.Builder
	for i, item := range evidence {
		fmt.Fprintf(&sb, "[Source %d] (%s):\n%s\n\n", i+1, item.Source, item.Text)
	}
	return sb.String()
}

// extractCitations returns the zero-based context indices the answer
// cites, in order of first appearance, dropping out-of-range references.
func extractCitations(answer string, contextLen int) []int {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	seen := make(map[int]bool, len(matches))
	citations := make([]int, 0, len(matches))
	for _, match := range matches {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		idx := n - 1
		if idx < 0 || idx >= contextLen || seen[idx] {
			continue
		}
		seen[idx] = true
		citations = append(citations, idx)
	}
	return citations
}
