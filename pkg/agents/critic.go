package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
)

// critic reviews the draft against the retrieved sources. Rejection is
// reserved for safety violations and replaces the draft with a refusal;
// quality problems request a bounded revision instead.
func (d *Deps) critic(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	prompt := fmt.Sprintf(
		"User question: %s\n\nSource data:\n%s\nDraft answer:\n%s",
		state.Query,
		formatContext(state.RetrievedContext),
		state.DraftAnswer,
	)

	raw, err := d.LLM.Complete(ctx, llm.Request{
		System:   criticSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to review draft: %w", err)
	}

	var critique models.Critique
	if err := decodeStructured(raw, &critique); err != nil {
		// An unreviewable draft ships as-is rather than failing the run.
		slog.Warn("Critic returned unparseable critique, treating as approved", "error", err)
		critique = models.Critique{Verdict: models.VerdictApproved}
	}

	switch critique.Verdict {
	case models.VerdictRejected:
		return &models.StateDelta{
			Critique:      &critique,
			NeedsRevision: models.Ptr(false),
			DraftAnswer:   models.Ptr(safetyRefusalAnswer),
			Citations:     []int{},
		}, nil

	case models.VerdictNeedsRevision:
		if state.RevisionCount >= d.Graph.MaxRevisions {
			// Revision budget spent; the current draft proceeds.
			return &models.StateDelta{
				Critique:      &critique,
				NeedsRevision: models.Ptr(false),
			}, nil
		}
		return &models.StateDelta{
			Critique:      &critique,
			NeedsRevision: models.Ptr(true),
			RevisionCount: models.Ptr(state.RevisionCount + 1),
		}, nil

	default:
		return &models.StateDelta{
			Critique:      &critique,
			NeedsRevision: models.Ptr(false),
		}, nil
	}
}
