package types

// CaseState is a state of the case orchestrator.
type CaseState string

const (
	StateStart           CaseState = "START"
	StateCacheCheck      CaseState = "CACHE_CHECK"
	StateReused          CaseState = "REUSED"
	StateLocalEval       CaseState = "LOCAL_EVAL"
	StateLocalSufficient CaseState = "LOCAL_SUFFICIENT"
	StateEscalate        CaseState = "ESCALATE"
	StateReasonGenerate  CaseState = "REASON_GENERATE"
	StateReasonSearch    CaseState = "REASON_SEARCH"
	StateSearchGenerate  CaseState = "SEARCH_GENERATE"
	StateSearchStore     CaseState = "SEARCH_STORE"
	StateReasonNone      CaseState = "REASON_NONE"
)

// IsTerminal reports whether the orchestrator stops in this state.
func (s CaseState) IsTerminal() bool {
	switch s {
	case StateReused, StateLocalSufficient, StateReasonGenerate,
		StateSearchGenerate, StateSearchStore, StateReasonNone:
		return true
	}
	return false
}

// ProducesReport reports whether reaching this terminal state synthesizes a new report.
func (s CaseState) ProducesReport() bool {
	switch s {
	case StateLocalSufficient, StateReasonGenerate, StateSearchGenerate:
		return true
	}
	return false
}

// IsDeferred reports whether the case is parked in the deferred-feedback log.
func (s CaseState) IsDeferred() bool {
	return s == StateSearchStore || s == StateReasonNone
}

// Action is a decision token returned by the reasoning and search oracles.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionSearch   Action = "search"
	ActionStore    Action = "store"
	ActionNone     Action = "none"
)

// IsValid checks if the action is one of the known tokens
func (a Action) IsValid() bool {
	switch a {
	case ActionGenerate, ActionSearch, ActionStore, ActionNone:
		return true
	}
	return false
}
