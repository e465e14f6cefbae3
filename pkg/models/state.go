package models

// Tool identifies the execution strategy selected by the router.
type Tool string

const (
	ToolWebSearch         Tool = "web_search"
	ToolTargetedCrawl     Tool = "targeted_crawl"
	ToolInternalRetrieval Tool = "internal_retrieval"
	ToolCalculator        Tool = "calculator"
	ToolTranslate         Tool = "translate"
	ToolDirectAnswer      Tool = "direct_answer"
)

// ValidTool reports whether t is one of the closed set of routing tools.
func ValidTool(t Tool) bool {
	switch t {
	case ToolWebSearch, ToolTargetedCrawl, ToolInternalRetrieval,
		ToolCalculator, ToolTranslate, ToolDirectAnswer:
		return true
	}
	return false
}

// RoutingDecision is the router's structured choice of execution strategy.
type RoutingDecision struct {
	Tool           Tool   `json:"tool"`
	Reasoning      string `json:"reasoning,omitempty"`
	TargetURL      string `json:"target_url,omitempty"`
	SearchQuery    string `json:"search_query,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// Evidence is one retrieved context item with its provenance.
type Evidence struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score,omitempty"`
}

// Verdict is the critic's judgement of a draft answer.
type Verdict string

const (
	VerdictApproved      Verdict = "approved"
	VerdictNeedsRevision Verdict = "needs_revision"
	VerdictRejected      Verdict = "rejected"
)

// Critique is the critic node's structured review of a draft answer.
type Critique struct {
	Verdict      Verdict  `json:"verdict"`
	Reasons      []string `json:"reasons,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// StateError records a pipeline failure inside the agent state.
type StateError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// AgentState is the full pipeline state threaded through the graph.
// Nodes never mutate it directly — they return a StateDelta which the
// runtime merges via Apply before evaluating the next transition.
type AgentState struct {
	Query            string           `json:"query"`
	ChatHistory      []Message        `json:"chat_history,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	RoutingDecision  *RoutingDecision `json:"routing_decision,omitempty"`
	Intent           string           `json:"intent,omitempty"`
	Plan             []string         `json:"plan,omitempty"`
	RetrievedContext []Evidence       `json:"retrieved_context,omitempty"`
	WebResults       string           `json:"web_results,omitempty"`
	DraftAnswer      string           `json:"draft_answer,omitempty"`
	Citations        []int            `json:"citations,omitempty"`
	Critique         *Critique        `json:"critique,omitempty"`
	NeedsRevision    bool             `json:"needs_revision,omitempty"`
	RevisionCount    int              `json:"revision_count,omitempty"`
	FinalAnswer      string           `json:"final_answer,omitempty"`
	TargetLanguage   string           `json:"target_language,omitempty"`

	// GlobalTargetLanguage is the session-wide language preference from the
	// request options. A per-turn translate decision (router) overrides it
	// via TargetLanguage; when both are empty the answer stays in the base
	// language.
	GlobalTargetLanguage string `json:"global_target_language,omitempty"`

	Error *StateError `json:"error,omitempty"`
}

// StateDelta is a partial update to AgentState. Nil fields leave the
// corresponding state field untouched; set fields replace it wholesale
// (last-writer-wins, no slice concatenation).
type StateDelta struct {
	Query            *string          `json:"query,omitempty"`
	ChatHistory      []Message        `json:"chat_history,omitempty"`
	Summary          *string          `json:"summary,omitempty"`
	RoutingDecision  *RoutingDecision `json:"routing_decision,omitempty"`
	Intent           *string          `json:"intent,omitempty"`
	Plan             []string         `json:"plan,omitempty"`
	RetrievedContext []Evidence       `json:"retrieved_context,omitempty"`
	WebResults       *string          `json:"web_results,omitempty"`
	DraftAnswer      *string          `json:"draft_answer,omitempty"`
	Citations        []int            `json:"citations,omitempty"`
	Critique         *Critique        `json:"critique,omitempty"`
	NeedsRevision    *bool            `json:"needs_revision,omitempty"`
	RevisionCount    *int             `json:"revision_count,omitempty"`
	FinalAnswer      *string          `json:"final_answer,omitempty"`
	TargetLanguage   *string          `json:"target_language,omitempty"`
	Error            *StateError      `json:"error,omitempty"`
}

// IsEmpty reports whether the delta carries no changes.
func (d *StateDelta) IsEmpty() bool {
	if d == nil {
		return true
	}
	return d.Query == nil &&
		d.ChatHistory == nil &&
		d.Summary == nil &&
		d.RoutingDecision == nil &&
		d.Intent == nil &&
		d.Plan == nil &&
		d.RetrievedContext == nil &&
		d.WebResults == nil &&
		d.DraftAnswer == nil &&
		d.Citations == nil &&
		d.Critique == nil &&
		d.NeedsRevision == nil &&
		d.RevisionCount == nil &&
		d.FinalAnswer == nil &&
		d.TargetLanguage == nil &&
		d.Error == nil
}

// Apply merges a delta into the state, replacing only the fields the
// delta sets. This is the single reducer for all graph transitions.
func (s *AgentState) Apply(d *StateDelta) {
	if d == nil {
		return
	}
	if d.Query != nil {
		s.Query = *d.Query
	}
	if d.ChatHistory != nil {
		s.ChatHistory = d.ChatHistory
	}
	if d.Summary != nil {
		s.Summary = *d.Summary
	}
	if d.RoutingDecision != nil {
		s.RoutingDecision = d.RoutingDecision
	}
	if d.Intent != nil {
		s.Intent = *d.Intent
	}
	if d.Plan != nil {
		s.Plan = d.Plan
	}
	if d.RetrievedContext != nil {
		s.RetrievedContext = d.RetrievedContext
	}
	if d.WebResults != nil {
		s.WebResults = *d.WebResults
	}
	if d.DraftAnswer != nil {
		s.DraftAnswer = *d.DraftAnswer
	}
	if d.Citations != nil {
		s.Citations = d.Citations
	}
	if d.Critique != nil {
		s.Critique = d.Critique
	}
	if d.NeedsRevision != nil {
		s.NeedsRevision = *d.NeedsRevision
	}
	if d.RevisionCount != nil {
		s.RevisionCount = *d.RevisionCount
	}
	if d.FinalAnswer != nil {
		s.FinalAnswer = *d.FinalAnswer
	}
	if d.TargetLanguage != nil {
		s.TargetLanguage = *d.TargetLanguage
	}
	if d.Error != nil {
		s.Error = d.Error
	}
}

// Clone returns a deep copy of the state. The runtime passes clones to
// nodes so a misbehaving node cannot corrupt the canonical state.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	out := *s
	if s.ChatHistory != nil {
		out.ChatHistory = make([]Message, len(s.ChatHistory))
		copy(out.ChatHistory, s.ChatHistory)
	}
	if s.Plan != nil {
		out.Plan = make([]string, len(s.Plan))
		copy(out.Plan, s.Plan)
	}
	if s.RetrievedContext != nil {
		out.RetrievedContext = make([]Evidence, len(s.RetrievedContext))
		copy(out.RetrievedContext, s.RetrievedContext)
	}
	if s.Citations != nil {
		out.Citations = make([]int, len(s.Citations))
		copy(out.Citations, s.Citations)
	}
	if s.RoutingDecision != nil {
		rd := *s.RoutingDecision
		out.RoutingDecision = &rd
	}
	if s.Critique != nil {
		cr := *s.Critique
		cr.Reasons = make([]string, len(s.Critique.Reasons))
		copy(cr.Reasons, s.Critique.Reasons)
		out.Critique = &cr
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return &out
}
