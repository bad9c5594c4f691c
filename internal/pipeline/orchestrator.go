// Package pipeline runs feedback cases through the triage state machine and
// drives the resumable batch over the input file.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/bugsift/internal/ai"
	"github.com/steveyegge/bugsift/internal/fusion"
	"github.com/steveyegge/bugsift/internal/types"
	"github.com/steveyegge/bugsift/internal/websearch"
)

// Judge rates one evidence candidate.
type Judge interface {
	JudgeCandidate(ctx context.Context, feedback, candidate string) ai.Judgment
}

// Generator writes a bug report from a free-form context.
type Generator interface {
	GenerateReport(ctx context.Context, reportContext string) (string, error)
}

// Reasoner picks the escalation action.
type Reasoner interface {
	Reason(ctx context.Context, feedback string, collected []string) ai.ReasoningDecision
}

// SearchAgent plans and evaluates the web-search escalation.
type SearchAgent interface {
	GenerateQueries(ctx context.Context, feedback string, max int) []string
	SummarizeResults(ctx context.Context, feedback string, results []string, maxResults int) string
	JudgeSummary(ctx context.Context, feedback string, collected []string, summary string) ai.SearchDecision
}

// Searcher is the web-search service. Failures yield no results.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []websearch.Result
}

// Cache is the semantic cache as seen by the pipeline.
type Cache interface {
	Search(ctx context.Context, feedback string) *types.ReuseDecision
	Add(ctx context.Context, feedback, report string, metadata map[string]string) (*types.CacheEntry, error)
}

// Retriever produces ranked evidence for a feedback text.
type Retriever interface {
	Fuse(ctx context.Context, text string) *types.FusedEvidence
}

// CaseResult is the outcome of running one case to a terminal state.
type CaseResult struct {
	CaseID     string               `json:"case_id"`
	CaseIndex  int                  `json:"case_index"`
	State      types.CaseState      `json:"state"`
	Weights    types.TierWeights    `json:"weights"`
	Escalate   bool                 `json:"escalate"`
	Candidates int                  `json:"candidates"`
	Report     string               `json:"report,omitempty"`
	Rationale  string               `json:"rationale,omitempty"`
	Summary    string               `json:"summary,omitempty"` // web-search summary, if the search ran
	Reuse      *types.ReuseDecision `json:"reuse,omitempty"`
	Memory     *types.CaseMemory    `json:"memory"`
	Duration   time.Duration        `json:"duration"`
}

// Reused reports whether the case was answered from the cache.
func (r *CaseResult) Reused() bool {
	return r.State == types.StateReused
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Cache       Cache
	Retriever   Retriever // can be nil: only retrieved_list evidence is used
	Judge       Judge
	Generator   Generator
	Reasoner    Reasoner
	SearchAgent SearchAgent
	Searcher    Searcher // can be nil: the search escalation finds nothing
	Fusion      fusion.Config
	Options     Config
}

// Orchestrator runs a single case through the state machine. It holds no
// per-case state and is safe for concurrent use.
type Orchestrator struct {
	cache     Cache
	retriever Retriever
	judge     Judge
	generator Generator
	reasoner  Reasoner
	agent     SearchAgent
	searcher  Searcher
	fusionCfg fusion.Config
	cfg       Config
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	switch {
	case cfg.Cache == nil:
		return nil, fmt.Errorf("semantic cache is required")
	case cfg.Judge == nil:
		return nil, fmt.Errorf("judge is required")
	case cfg.Generator == nil:
		return nil, fmt.Errorf("generator is required")
	case cfg.Reasoner == nil:
		return nil, fmt.Errorf("reasoner is required")
	case cfg.SearchAgent == nil:
		return nil, fmt.Errorf("search agent is required")
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if err := cfg.Fusion.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fusion config: %w", err)
	}
	return &Orchestrator{
		cache:     cfg.Cache,
		retriever: cfg.Retriever,
		judge:     cfg.Judge,
		generator: cfg.Generator,
		reasoner:  cfg.Reasoner,
		agent:     cfg.SearchAgent,
		searcher:  cfg.Searcher,
		fusionCfg: cfg.Fusion,
		cfg:       cfg.Options,
	}, nil
}

// Run takes one case from START to a terminal state. It performs no
// persistence: recording the outcome is the caller's job, which makes Run
// usable for dry runs and safe to repeat after an interruption.
//
// Oracle and retrieval failures are absorbed into conservative branches.
// An error is returned only for a cancelled context or a failed report
// synthesis.
func (o *Orchestrator) Run(ctx context.Context, c *types.FeedbackCase, index int) (*CaseResult, error) {
	start := time.Now()
	mem := types.NewCaseMemory(c)
	res := &CaseResult{CaseID: c.ID, CaseIndex: index, State: types.StateStart, Memory: mem}
	log := slog.With("case_id", c.ID, "case_index", index)

	finish := func(state types.CaseState) (*CaseResult, error) {
		res.State = state
		res.Report = mem.BugReport
		res.Rationale = mem.Decision
		res.Duration = time.Since(start)
		log.Info("pipeline: case finished", "state", state, "duration", res.Duration)
		return res, nil
	}

	// CACHE_CHECK
	res.State = types.StateCacheCheck
	if hit := o.cache.Search(ctx, c.Feedback); hit != nil {
		res.Reuse = hit
		mem.SetDecision(hit.Rationale)
		mem.SetBugReport(hit.Entry.Report)
		mem.Metadata["cache_entry_id"] = hit.Entry.ID
		mem.Metadata["cache_similarity"] = hit.Similarity
		return finish(types.StateReused)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// LOCAL_EVAL
	res.State = types.StateLocalEval
	evidence := o.evidence(ctx, c)
	res.Weights = evidence.Weights
	res.Escalate = evidence.Escalate
	res.Candidates = len(evidence.Candidates)
	mem.Metadata["weights"] = evidence.Weights
	mem.Metadata["escalate"] = evidence.Escalate
	log.Debug("pipeline: local evaluation", "candidates", res.Candidates, "weights", evidence.Weights.String(), "escalate", evidence.Escalate)

	for _, cand := range evidence.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		j := o.judge.JudgeCandidate(ctx, c.Feedback, cand.Text)
		switch {
		case j.Relevant && j.Sufficient:
			mem.SetDecision(j.Reason)
			if err := o.synthesize(ctx, mem, localContext(c.Feedback, cand.Text)); err != nil {
				return nil, err
			}
			mem.Metadata["evidence_tier"] = cand.Tier
			return finish(types.StateLocalSufficient)
		case j.Relevant:
			mem.AddEvidence(cand.Text)
		}
	}

	// ESCALATE
	res.State = types.StateEscalate
	decision := o.reasoner.Reason(ctx, c.Feedback, mem.Collected)
	mem.SetDecision(decision.Rationale)
	mem.Metadata["reasoning_action"] = string(decision.Action)
	log.Debug("pipeline: escalation decision", "action", decision.Action, "collected", len(mem.Collected))

	switch decision.Action {
	case types.ActionGenerate:
		if err := o.synthesize(ctx, mem, decision.Context); err != nil {
			return nil, err
		}
		return finish(types.StateReasonGenerate)
	case types.ActionSearch:
		res.State = types.StateReasonSearch
		state, summary, err := o.search(ctx, mem)
		if err != nil {
			return nil, err
		}
		res.Summary = summary
		return finish(state)
	default:
		// store and none both park the case with the reasoner's rationale
		return finish(types.StateReasonNone)
	}
}

// evidence returns the ranked candidates for a case: live tier retrieval
// when enabled, otherwise (or when live retrieval finds nothing) the case's
// pre-computed retrieved_list.
func (o *Orchestrator) evidence(ctx context.Context, c *types.FeedbackCase) *types.FusedEvidence {
	if o.cfg.LiveRetrieval && o.retriever != nil {
		fused := o.retriever.Fuse(ctx, c.Feedback)
		if len(fused.Candidates) > 0 || len(c.RetrievedList) == 0 {
			return fused
		}
	}
	hits := make([]fusion.Hit, len(c.RetrievedList))
	for i, text := range c.RetrievedList {
		hits[i] = fusion.Hit{Text: text}
	}
	return fusion.Rank(hits, nil, o.fusionCfg)
}

func (o *Orchestrator) synthesize(ctx context.Context, mem *types.CaseMemory, reportContext string) error {
	report, err := o.generator.GenerateReport(ctx, reportContext)
	if err != nil {
		return fmt.Errorf("report synthesis failed: %w", err)
	}
	mem.SetBugReport(report)
	return nil
}

func localContext(feedback, evidence string) string {
	return fmt.Sprintf("User feedback:\n%s\n\nRelevant knowledge:\n%s", feedback, evidence)
}
