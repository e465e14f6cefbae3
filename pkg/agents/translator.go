package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/models"
)

// translator renders the answer in the requested language. A per-turn
// translate decision overrides the session-wide preference; when the
// target is the base language the node is identity.
func (d *Deps) translator(ctx context.Context, state *models.AgentState) (*models.StateDelta, error) {
	translateRoute := state.RoutingDecision != nil && state.RoutingDecision.Tool == models.ToolTranslate

	target := ""
	if translateRoute {
		target = state.RoutingDecision.TargetLanguage
	}
	if target == "" {
		target = state.GlobalTargetLanguage
	}

	if translateRoute {
		// No generator ran on this path; the translation request itself is
		// the work. The model reads the target from the request when the
		// router did not extract one.
		return d.translateRequest(ctx, state, target)
	}

	if isBaseLanguage(target) || state.DraftAnswer == "" {
		return nil, nil
	}

	translated, err := d.LLM.Complete(ctx, llm.Request{
		System: translatorSystemPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Translate the following text into %s:\n\n%s", target, state.DraftAnswer),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to translate answer: %w", err)
	}

	return &models.StateDelta{
		DraftAnswer:    models.Ptr(strings.TrimSpace(translated)),
		TargetLanguage: models.Ptr(target),
	}, nil
}

func (d *Deps) translateRequest(ctx context.Context, state *models.AgentState, target string) (*models.StateDelta, error) {
	var content string
	if target != "" {
		content = fmt.Sprintf("Fulfill this translation request, translating into %s:\n\n%s", target, state.Query)
	} else {
		content = fmt.Sprintf("Fulfill this translation request, inferring the target language from it:\n\n%s", state.Query)
	}

	translated, err := d.LLM.Complete(ctx, llm.Request{
		System:   translatorSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: content}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to translate: %w", err)
	}

	delta := &models.StateDelta{DraftAnswer: models.Ptr(strings.TrimSpace(translated))}
	if target != "" {
		delta.TargetLanguage = models.Ptr(target)
	}
	return delta, nil
}

// isBaseLanguage reports whether the target means "leave it alone".
func isBaseLanguage(lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "english", "en", "none":
		return true
	}
	return false
}
