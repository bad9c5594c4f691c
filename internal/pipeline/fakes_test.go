package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/steveyegge/bugsift/internal/ai"
	"github.com/steveyegge/bugsift/internal/fusion"
	"github.com/steveyegge/bugsift/internal/types"
	"github.com/steveyegge/bugsift/internal/websearch"
)

type fakeCache struct {
	mu    sync.Mutex
	hit   *types.ReuseDecision
	added []string
	err   error
}

func (f *fakeCache) Search(context.Context, string) *types.ReuseDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hit
}

func (f *fakeCache) Add(_ context.Context, feedback, report string, _ map[string]string) (*types.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.added = append(f.added, feedback)
	return &types.CacheEntry{Feedback: feedback, Report: report}, nil
}

// fakeJudge answers by candidate text; unknown candidates are irrelevant.
type fakeJudge struct {
	mu       sync.Mutex
	verdicts map[string]ai.Judgment
	seen     []string
}

func (f *fakeJudge) JudgeCandidate(_ context.Context, _, candidate string) ai.Judgment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, candidate)
	return f.verdicts[candidate]
}

type fakeGenerator struct {
	mu       sync.Mutex
	contexts []string
	// failOn makes generation fail for contexts containing this text
	failOn string
}

func (f *fakeGenerator) GenerateReport(_ context.Context, reportContext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, reportContext)
	if f.failOn != "" && strings.Contains(reportContext, f.failOn) {
		return "", errors.New("generator unavailable")
	}
	return "REPORT<" + reportContext + ">", nil
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contexts)
}

type fakeReasoner struct {
	mu        sync.Mutex
	decision  ai.ReasoningDecision
	calls     int
	collected []string
	// onReason runs before each decision is returned
	onReason func()
}

func (f *fakeReasoner) Reason(_ context.Context, _ string, collected []string) ai.ReasoningDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.collected = append([]string(nil), collected...)
	if f.onReason != nil {
		f.onReason()
	}
	return f.decision
}

type fakeAgent struct {
	queries  []string
	summary  string
	decision ai.SearchDecision
	results  []string
	judged   []string
}

func (f *fakeAgent) GenerateQueries(context.Context, string, int) []string {
	return f.queries
}

func (f *fakeAgent) SummarizeResults(_ context.Context, _ string, results []string, _ int) string {
	f.results = results
	return f.summary
}

func (f *fakeAgent) JudgeSummary(_ context.Context, _ string, collected []string, _ string) ai.SearchDecision {
	f.judged = append([]string(nil), collected...)
	return f.decision
}

type fakeSearcher struct {
	results map[string][]websearch.Result
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) []websearch.Result {
	f.queries = append(f.queries, query)
	return f.results[query]
}

type fakeRetriever struct {
	fused *types.FusedEvidence
}

func (f *fakeRetriever) Fuse(context.Context, string) *types.FusedEvidence {
	return f.fused
}

type fixture struct {
	cache     *fakeCache
	judge     *fakeJudge
	generator *fakeGenerator
	reasoner  *fakeReasoner
	agent     *fakeAgent
	searcher  *fakeSearcher
}

func newFixture() *fixture {
	return &fixture{
		cache:     &fakeCache{},
		judge:     &fakeJudge{verdicts: map[string]ai.Judgment{}},
		generator: &fakeGenerator{},
		reasoner:  &fakeReasoner{decision: ai.ReasoningDecision{Action: types.ActionNone, Rationale: "not actionable"}},
		agent:     &fakeAgent{decision: ai.SearchDecision{Action: types.ActionStore, Rationale: "nothing useful online"}},
		searcher:  &fakeSearcher{results: map[string][]websearch.Result{}},
	}
}

func (f *fixture) orchestratorConfig() *OrchestratorConfig {
	opts := DefaultConfig()
	opts.LiveRetrieval = false
	return &OrchestratorConfig{
		Cache:       f.cache,
		Judge:       f.judge,
		Generator:   f.generator,
		Reasoner:    f.reasoner,
		SearchAgent: f.agent,
		Searcher:    f.searcher,
		Fusion:      fusion.DefaultConfig(),
		Options:     opts,
	}
}
