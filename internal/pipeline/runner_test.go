package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/bugsift/internal/ai"
	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/reportlog"
	"github.com/steveyegge/bugsift/internal/semcache"
	"github.com/steveyegge/bugsift/internal/storage"
	"github.com/steveyegge/bugsift/internal/storage/sqlite"
	"github.com/steveyegge/bugsift/internal/types"
)

type harness struct {
	dir   string
	store *sqlite.SQLiteStorage
	f     *fixture
	cases []*types.FeedbackCase
	cache Cache
}

func newHarness(t *testing.T, cases ...*types.FeedbackCase) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "bugsift.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f := newFixture()
	return &harness{dir: dir, store: store, f: f, cases: cases, cache: f.cache}
}

func (h *harness) runner(t *testing.T, opts Config) *Runner {
	t.Helper()
	oc := h.f.orchestratorConfig()
	oc.Cache = h.cache
	oc.Options = opts
	orch, err := NewOrchestrator(oc)
	require.NoError(t, err)

	reports, err := reportlog.Open(filepath.Join(h.dir, "generated_reports.jsonl"))
	require.NoError(t, err)
	deferred, err := reportlog.Open(filepath.Join(h.dir, "deferred_feedback.jsonl"))
	require.NoError(t, err)

	r, err := NewRunner(&RunnerConfig{
		Store:        h.store,
		Orchestrator: orch,
		Cache:        h.cache,
		Cases:        h.cases,
		Reports:      reports,
		Deferred:     deferred,
		Snapshots:    reportlog.NewSnapshots(filepath.Join(h.dir, "progress.json"), filepath.Join(h.dir, "counters.json")),
		Options:      opts,
	})
	require.NoError(t, err)
	return r
}

func testOptions() Config {
	opts := DefaultConfig()
	opts.LiveRetrieval = false
	return opts
}

func (h *harness) reportLines(t *testing.T) []reportlog.ReportRecord {
	t.Helper()
	recs, err := reportlog.ReadAll[reportlog.ReportRecord](filepath.Join(h.dir, "generated_reports.jsonl"))
	require.NoError(t, err)
	return recs
}

func (h *harness) deferredLines(t *testing.T) []reportlog.DeferredRecord {
	t.Helper()
	recs, err := reportlog.ReadAll[reportlog.DeferredRecord](filepath.Join(h.dir, "deferred_feedback.jsonl"))
	require.NoError(t, err)
	return recs
}

func numberedCases(n int) []*types.FeedbackCase {
	out := make([]*types.FeedbackCase, n)
	for i := range out {
		out[i] = &types.FeedbackCase{ID: fmt.Sprintf("case-%d", i), Feedback: fmt.Sprintf("feedback %d", i)}
	}
	return out
}

func TestRunner_ProcessAll(t *testing.T) {
	h := newHarness(t,
		&types.FeedbackCase{ID: "a", Feedback: "crash on settings open", RetrievedList: []string{"sufficient doc"}},
		&types.FeedbackCase{ID: "b", Feedback: "settings weird", RetrievedList: []string{"partial 1", "partial 2"}},
		&types.FeedbackCase{ID: "c", Feedback: "nothing known"},
	)
	h.f.judge.verdicts["sufficient doc"] = ai.Judgment{Relevant: true, Sufficient: true}
	h.f.judge.verdicts["partial 1"] = ai.Judgment{Relevant: true}
	h.f.judge.verdicts["partial 2"] = ai.Judgment{Relevant: true}
	h.f.reasoner.decision = ai.ReasoningDecision{Action: types.ActionSearch, Rationale: "look online"}
	h.f.agent.queries = []string{"q"}

	summary, err := h.runner(t, testOptions()).ProcessAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Zero(t, summary.Errored)
	assert.Equal(t, 1, summary.States[types.StateLocalSufficient])
	assert.Equal(t, 2, summary.States[types.StateSearchStore])

	reports := h.reportLines(t)
	require.Len(t, reports, 1)
	assert.Equal(t, "a", reports[0].ID)
	assert.Equal(t, []string{"crash on settings open"}, h.f.cache.added)

	deferred := h.deferredLines(t)
	require.Len(t, deferred, 2)
	assert.Equal(t, []string{"partial 1", "partial 2"}, deferred[0].Collected)

	counters, err := h.store.GetCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counters.CaseCount)
	assert.Zero(t, counters.ReuseCount)
	assert.Len(t, counters.History, 3)

	p, err := reportlog.ReadProgress(filepath.Join(h.dir, "progress.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, p.LastIndex)
	c, err := reportlog.ReadCounters(filepath.Join(h.dir, "counters.json"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.CaseCount)
}

func TestRunner_ResumesAfterLastIndex(t *testing.T) {
	h := newHarness(t, numberedCases(4)...)
	ctx := context.Background()

	first := h.runner(t, testOptions())
	for i := 0; i < 2; i++ {
		res, err := first.ProcessNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, res.CaseIndex)
	}

	second := h.runner(t, testOptions())
	res, err := second.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.CaseIndex, "a fresh run continues after the progress record")

	_, err = second.ProcessNext(ctx)
	require.NoError(t, err)
	_, err = second.ProcessNext(ctx)
	assert.ErrorIs(t, err, storage.ErrNoMoreCases)

	ledger, err := h.store.ListLedger(ctx)
	require.NoError(t, err)
	assert.Len(t, ledger, 4)
}

func TestRunner_InterruptedCaseIsRetried(t *testing.T) {
	h := newHarness(t, numberedCases(2)...)
	ctx := context.Background()

	// a crashed run left case 0 claimed
	_, err := h.store.ClaimNext(ctx, "crashed-run", len(h.cases), 3)
	require.NoError(t, err)

	r := h.runner(t, testOptions())
	res, err := r.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.CaseIndex)

	claim, err := h.store.GetClaim(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, types.ClaimDone, claim.Status)
	assert.Equal(t, 2, claim.Attempts)
	assert.Equal(t, r.RunID(), claim.RunID)
}

func TestRunner_DeadLettersAfterMaxAttempts(t *testing.T) {
	h := newHarness(t,
		&types.FeedbackCase{ID: "bad", Feedback: "explodes", RetrievedList: []string{"poison"}},
		&types.FeedbackCase{ID: "good", Feedback: "fine"},
	)
	h.f.judge.verdicts["poison"] = ai.Judgment{Relevant: true, Sufficient: true}
	h.f.generator.failOn = "poison"

	summary, err := h.runner(t, testOptions()).ProcessAll(context.Background())
	require.NoError(t, err, "case failures are not fatal")

	assert.Equal(t, 3, summary.Errored)
	assert.Equal(t, 1, summary.Processed)

	claim, err := h.store.GetClaim(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, types.ClaimFailed, claim.Status)
	assert.Equal(t, 3, claim.Attempts)
	assert.Contains(t, claim.LastError, "generator unavailable")

	counters, err := h.store.GetCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counters.CaseCount, "dead-lettered case is not counted")

	// a later run never claims it again
	_, err = h.runner(t, testOptions()).ProcessNext(context.Background())
	assert.ErrorIs(t, err, storage.ErrNoMoreCases)
}

func TestRunner_CaseErrorType(t *testing.T) {
	h := newHarness(t, &types.FeedbackCase{ID: "bad", Feedback: "x", RetrievedList: []string{"poison"}})
	h.f.judge.verdicts["poison"] = ai.Judgment{Relevant: true, Sufficient: true}
	h.f.generator.failOn = "poison"

	_, err := h.runner(t, testOptions()).ProcessNext(context.Background())
	var caseErr *CaseError
	require.True(t, errors.As(err, &caseErr))
	assert.Equal(t, "bad", caseErr.CaseID)
	assert.Equal(t, types.ClaimErrored, caseErr.Status)
	assert.False(t, errors.Is(err, ErrPersistence))
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestRunner_StopsWhileOraclesUnavailable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, numberedCases(3)...)
	r := h.runner(t, testOptions())
	down := true
	r.health = healthFunc(func(context.Context) error {
		if down {
			return ai.ErrCircuitOpen
		}
		return nil
	})

	summary, err := r.ProcessAll(ctx)
	require.ErrorIs(t, err, ErrOraclesUnavailable)
	assert.ErrorIs(t, err, ai.ErrCircuitOpen)
	assert.Equal(t, 0, summary.Processed)

	p, err := h.store.GetProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, p.LastIndex, "nothing claimed during the outage")

	down = false
	summary, err = r.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
}

func TestRunner_ReportLogFailureIsRecoveredOnRerun(t *testing.T) {
	h := newHarness(t, &types.FeedbackCase{ID: "a", Feedback: "crash on settings open", RetrievedList: []string{"doc"}})
	h.f.judge.verdicts["doc"] = ai.Judgment{Relevant: true, Sufficient: true}
	ctx := context.Background()

	// a directory where the log file belongs makes every append fail
	logPath := filepath.Join(h.dir, "generated_reports.jsonl")
	require.NoError(t, os.Mkdir(logPath, 0755))

	_, err := h.runner(t, testOptions()).ProcessAll(ctx)
	require.ErrorIs(t, err, ErrPersistence)

	counters, err := h.store.GetCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.CaseCount, "the outcome is counted before the log line")
	assert.Empty(t, h.f.cache.added)

	require.NoError(t, os.Remove(logPath))
	summary, err := h.runner(t, testOptions()).ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	lines := h.reportLines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, "a", lines[0].ID)
	assert.Equal(t, 0, lines[0].CaseIndex)
	assert.Len(t, h.f.cache.added, 1)

	counters, err = h.store.GetCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.CaseCount, "the rerun does not count the case again")
	claim, err := h.store.GetClaim(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, types.ClaimDone, claim.Status)
}

func TestRunner_CommittedCaseWritesItsLogLineOnce(t *testing.T) {
	h := newHarness(t, &types.FeedbackCase{ID: "a", Feedback: "x", RetrievedList: []string{"doc"}})
	h.f.judge.verdicts["doc"] = ai.Judgment{Relevant: true, Sufficient: true}
	ctx := context.Background()

	// an earlier attempt committed the case and wrote its log line, then died
	committed, err := h.store.CommitCase(ctx, &types.LedgerEvent{CaseID: "a", CaseIndex: 0, State: types.StateLocalSufficient})
	require.NoError(t, err)
	require.True(t, committed)
	reports, err := reportlog.Open(filepath.Join(h.dir, "generated_reports.jsonl"))
	require.NoError(t, err)
	mem := types.NewCaseMemory(h.cases[0])
	mem.SetBugReport("first report")
	require.NoError(t, reports.Append(reportlog.NewReportRecord(mem, 0, types.StateLocalSufficient)))

	_, err = h.runner(t, testOptions()).ProcessNext(ctx)
	require.NoError(t, err)

	lines := h.reportLines(t)
	require.Len(t, lines, 1, "no second log line")
	assert.Equal(t, "first report", lines[0].BugReport)
	assert.Empty(t, h.f.cache.added, "no second cache entry")

	recorded, err := h.store.IsRecorded(ctx, 0)
	require.NoError(t, err)
	assert.True(t, recorded)
	counters, err := h.store.GetCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.CaseCount)
}

func TestRunner_RecordedCaseIsNotRecordedAgain(t *testing.T) {
	h := newHarness(t, &types.FeedbackCase{ID: "a", Feedback: "x"})
	ctx := context.Background()

	committed, err := h.store.CommitCase(ctx, &types.LedgerEvent{CaseID: "a", CaseIndex: 0, State: types.StateReasonNone})
	require.NoError(t, err)
	require.True(t, committed)
	require.NoError(t, h.store.MarkRecorded(ctx, 0))

	// index 0 is claimed fresh because no claim row exists for it
	_, err = h.runner(t, testOptions()).ProcessNext(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.deferredLines(t))

	claim, err := h.store.GetClaim(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, types.ClaimDone, claim.Status)
	counters, err := h.store.GetCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.CaseCount)
}

func TestRunner_CanceledCaseIsNotCommitted(t *testing.T) {
	h := newHarness(t, &types.FeedbackCase{ID: "a", Feedback: "nothing known"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.f.reasoner.onReason = cancel

	_, err := h.runner(t, testOptions()).ProcessNext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPersistence)

	bg := context.Background()
	ledger, err := h.store.ListLedger(bg)
	require.NoError(t, err)
	assert.Empty(t, ledger)
	claim, err := h.store.GetClaim(bg, 0)
	require.NoError(t, err)
	assert.Equal(t, types.ClaimClaimed, claim.Status, "left for the next run to release")
	assert.Empty(t, h.deferredLines(t))
}

func TestRunner_ConcurrentWorkers(t *testing.T) {
	h := newHarness(t, numberedCases(12)...)
	opts := testOptions()
	opts.Workers = 4

	summary, err := h.runner(t, opts).ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Processed)

	ledger, err := h.store.ListLedger(context.Background())
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, ev := range ledger {
		assert.False(t, seen[ev.CaseIndex], "case %d committed twice", ev.CaseIndex)
		seen[ev.CaseIndex] = true
	}
	assert.Len(t, seen, 12)
	assert.Len(t, h.deferredLines(t), 12)

	// the counters file ends up with every commit however workers interleave
	counters, err := reportlog.ReadCounters(filepath.Join(h.dir, "counters.json"))
	require.NoError(t, err)
	assert.Equal(t, 12, counters.CaseCount)
	assert.Len(t, counters.History, 12)
}

// mapEmbedder returns fixed vectors for known texts and a far-away vector otherwise.
type mapEmbedder map[string]embedding.Vector

func (m mapEmbedder) Dims() int { return 2 }
func (m mapEmbedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	if v, ok := m[text]; ok {
		return v, nil
	}
	return embedding.Vector{0, 1}, nil
}

type stubVerifier struct {
	verdict *ai.ReuseVerdict
	calls   int
}

func (s *stubVerifier) VerifyReuse(context.Context, string, []types.ScoredCacheEntry) (*ai.ReuseVerdict, error) {
	s.calls++
	return s.verdict, nil
}

func TestRunner_VerifiedCacheReuse(t *testing.T) {
	h := newHarness(t,
		&types.FeedbackCase{ID: "c", Feedback: "crash on settings open", RetrievedList: []string{"doc"}},
	)
	sim := 0.92
	emb := mapEmbedder{
		"crash on settings open": {1, 0},
		"settings page crashes":  {float32(sim), float32(math.Sqrt(1 - sim*sim))},
	}
	verifier := &stubVerifier{verdict: &ai.ReuseVerdict{Reuse: true, MatchedIndices: []int{1}, Rationale: "same defect"}}
	cache, err := semcache.New(h.store, emb, verifier, semcache.DefaultConfig())
	require.NoError(t, err)
	_, err = cache.Add(context.Background(), "settings page crashes", "cached report", nil)
	require.NoError(t, err)
	h.cache = cache
	h.f.judge.verdicts["doc"] = ai.Judgment{Relevant: true, Sufficient: true}

	res, err := h.runner(t, testOptions()).ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StateReused, res.State)
	assert.Equal(t, "cached report", res.Report)
	assert.InDelta(t, 0.92, res.Reuse.Similarity, 1e-6)
	assert.Equal(t, 1, verifier.calls)
	assert.Empty(t, h.f.judge.seen, "no judge invoked")
	assert.Zero(t, h.f.generator.calls(), "no generator invoked")

	counters, err := h.store.GetCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counters.CaseCount)
	assert.Equal(t, 1, counters.ReuseCount)

	n, err := cache.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "reuse adds no cache entry")
	assert.Empty(t, h.reportLines(t))
}

func TestRunner_CountersMonotonicAcrossRuns(t *testing.T) {
	h := newHarness(t, numberedCases(5)...)
	ctx := context.Background()
	h.f.cache.hit = &types.ReuseDecision{Entry: types.CacheEntry{Report: "r"}, Similarity: 0.9}

	prevCases, prevReuse, prevHist := 0, 0, 0
	for run := 0; run < 3; run++ {
		r := h.runner(t, testOptions())
		for i := 0; i < 2; i++ {
			_, err := r.ProcessNext(ctx)
			if errors.Is(err, storage.ErrNoMoreCases) {
				break
			}
			require.NoError(t, err)
		}
		c, err := h.store.GetCounters(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c.CaseCount, prevCases)
		assert.GreaterOrEqual(t, c.ReuseCount, prevReuse)
		assert.GreaterOrEqual(t, len(c.History), prevHist)
		assert.LessOrEqual(t, c.ReuseCount, c.CaseCount)
		prevCases, prevReuse, prevHist = c.CaseCount, c.ReuseCount, len(c.History)
	}
	assert.Equal(t, 5, prevCases)
	assert.Equal(t, 5, prevReuse)
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(&RunnerConfig{})
	assert.Error(t, err)
}
