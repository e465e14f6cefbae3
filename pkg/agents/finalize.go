package agents

import (
	"context"

	"github.com/maestro-ai/maestro/pkg/models"
)

// finalize promotes the draft to the final answer and closes the run.
// History persistence happens in the worker after the run completes.
func (d *Deps) finalize(_ context.Context, state *models.AgentState) (*models.StateDelta, error) {
	answer := state.DraftAnswer
	if answer == "" {
		answer = noAnswerFallback
	}
	return &models.StateDelta{FinalAnswer: models.Ptr(answer)}, nil
}
