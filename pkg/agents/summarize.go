package agents

import (
	"context"
	"log/slog"

	"github.com/maestro-ai/maestro/pkg/models"
)

// summarize folds older history into the rolling summary. Failures are
// non-fatal: the run proceeds with the stale summary.
func (d *Deps) summarize(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	summary, err := d.Summarizer.Summarize(ctx, state.ChatHistory, state.Summary)
	if err != nil {
		slog.Warn("Summarization failed, keeping previous summary",
			"messages", len(state.ChatHistory), "error", err)
		return nil, nil
	}
	if summary == state.Summary {
		return nil, nil
	}
	return &models.StateDelta{Summary: models.Ptr(summary)}, nil
}
