package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/bugsift/internal/reportlog"
	"github.com/steveyegge/bugsift/internal/storage"
	"github.com/steveyegge/bugsift/internal/types"
)

// ErrPersistence wraps any failure to read or write authoritative state.
// Runners stop on it: continuing could lose or double-count a case.
var ErrPersistence = errors.New("persistence failure")

// ErrOraclesUnavailable stops claiming while the model API is failing, so
// cases are not spent against the dead-letter limit during an outage.
var ErrOraclesUnavailable = errors.New("oracles unavailable")

// HealthChecker reports whether the oracles can currently be reached.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CaseError is a non-fatal failure of one case. The case's claim has been
// marked errored (or failed once it ran out of attempts).
type CaseError struct {
	CaseID    string
	CaseIndex int
	Status    types.ClaimStatus
	Err       error
}

func (e *CaseError) Error() string {
	return fmt.Sprintf("case %s (index %d) %s: %v", e.CaseID, e.CaseIndex, e.Status, e.Err)
}

func (e *CaseError) Unwrap() error {
	return e.Err
}

// RunSummary tallies one ProcessAll invocation.
type RunSummary struct {
	Processed int                     `json:"processed"`
	Reused    int                     `json:"reused"`
	Errored   int                     `json:"errored"`
	States    map[types.CaseState]int `json:"states"`
	Duration  time.Duration           `json:"duration"`
}

func (s *RunSummary) add(res *CaseResult) {
	s.Processed++
	if res.Reused() {
		s.Reused++
	}
	s.States[res.State]++
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Store        storage.Storage
	Orchestrator *Orchestrator
	Cache        Cache
	Cases        []*types.FeedbackCase
	Reports      *reportlog.Log       // generated-report log
	Deferred     *reportlog.Log       // deferred-feedback log
	Snapshots    *reportlog.Snapshots // can be nil: no JSON state files
	Health       HealthChecker        // can be nil
	Options      Config
}

// Runner claims cases from the progress store, runs them and commits their
// outcome exactly once.
type Runner struct {
	store     storage.Storage
	orch      *Orchestrator
	cache     Cache
	cases     []*types.FeedbackCase
	reports   *reportlog.Log
	deferred  *reportlog.Log
	snapshots *reportlog.Snapshots
	health    HealthChecker
	cfg       Config
	runID     string

	startOnce sync.Once
	startErr  error
	snapMu    sync.Mutex
}

// NewRunner creates a runner with a fresh run id.
func NewRunner(cfg *RunnerConfig) (*Runner, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("storage is required")
	case cfg.Orchestrator == nil:
		return nil, fmt.Errorf("orchestrator is required")
	case cfg.Cache == nil:
		return nil, fmt.Errorf("semantic cache is required")
	case cfg.Reports == nil || cfg.Deferred == nil:
		return nil, fmt.Errorf("report and deferred logs are required")
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Runner{
		store:     cfg.Store,
		orch:      cfg.Orchestrator,
		cache:     cfg.Cache,
		cases:     cfg.Cases,
		reports:   cfg.Reports,
		deferred:  cfg.Deferred,
		snapshots: cfg.Snapshots,
		health:    cfg.Health,
		cfg:       cfg.Options,
		runID:     uuid.New().String(),
	}, nil
}

// RunID identifies this runner's claims.
func (r *Runner) RunID() string {
	return r.runID
}

// start releases claims abandoned by earlier runs. It runs once per Runner.
func (r *Runner) start(ctx context.Context) error {
	r.startOnce.Do(func() {
		n, err := r.store.ReleaseStaleClaims(ctx, r.runID, r.cfg.MaxAttempts)
		if err != nil {
			r.startErr = fmt.Errorf("%w: release stale claims: %w", ErrPersistence, err)
			return
		}
		if n > 0 {
			slog.Info("pipeline: released interrupted claims", "count", n, "run_id", r.runID)
		}
	})
	return r.startErr
}

// ProcessNext claims the next case, runs it and records the outcome.
//
// It returns storage.ErrNoMoreCases when the input is exhausted, a
// *CaseError when the case failed (non-fatal), and an error wrapping
// ErrPersistence when state could not be read or written. Nothing is
// claimed while the health check fails.
func (r *Runner) ProcessNext(ctx context.Context) (*CaseResult, error) {
	if err := r.start(ctx); err != nil {
		return nil, err
	}
	if r.health != nil {
		if err := r.health.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOraclesUnavailable, err)
		}
	}

	claim, err := r.store.ClaimNext(ctx, r.runID, len(r.cases), r.cfg.MaxAttempts)
	if err != nil {
		if errors.Is(err, storage.ErrNoMoreCases) {
			return nil, storage.ErrNoMoreCases
		}
		return nil, fmt.Errorf("%w: claim next case: %w", ErrPersistence, err)
	}
	r.writeProgress(ctx)

	c := r.cases[claim.CaseIndex]
	log := slog.With("case_id", c.ID, "case_index", claim.CaseIndex, "attempt", claim.Attempts)
	log.Info("pipeline: processing case")

	res, runErr := r.orch.Run(ctx, c, claim.CaseIndex)
	if runErr != nil {
		if ctx.Err() != nil {
			// leave the claim in place; the next run releases it as interrupted
			return nil, runErr
		}
		status, err := r.store.MarkCaseErrored(ctx, claim.CaseIndex, runErr.Error(), r.cfg.MaxAttempts)
		if err != nil {
			return nil, fmt.Errorf("%w: mark case %d errored: %w", ErrPersistence, claim.CaseIndex, err)
		}
		log.Error("pipeline: case failed", "status", status, "error", runErr)
		return nil, &CaseError{CaseID: c.ID, CaseIndex: claim.CaseIndex, Status: status, Err: runErr}
	}

	if ctx.Err() != nil {
		// fail-closed oracles may have cut the case short; leave the claim
		return nil, ctx.Err()
	}
	if err := r.record(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ProcessAll processes every remaining case with the configured number of
// workers. Case failures are logged and skipped; persistence failures stop
// all workers.
func (r *Runner) ProcessAll(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{States: map[types.CaseState]int{}}
	var mu sync.Mutex

	if err := r.start(ctx); err != nil {
		return summary, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < r.cfg.Workers; w++ {
		g.Go(func() error {
			for {
				res, err := r.ProcessNext(gctx)
				var caseErr *CaseError
				switch {
				case err == nil:
					mu.Lock()
					summary.add(res)
					mu.Unlock()
				case errors.Is(err, storage.ErrNoMoreCases):
					return nil
				case errors.As(err, &caseErr):
					mu.Lock()
					summary.Errored++
					mu.Unlock()
				default:
					return err
				}
			}
		})
	}
	err := g.Wait()
	summary.Duration = time.Since(start)
	return summary, err
}

// record commits the terminal state to the ledger, then writes the log line
// and cache entry, then marks the case recorded, which closes its claim.
//
// A case that dies between commit and MarkRecorded is claimed again. On that
// re-execution the ledger commit is a no-op, and the log line is written only
// if the log does not already hold one for the case index.
func (r *Runner) record(ctx context.Context, res *CaseResult) error {
	ev := &types.LedgerEvent{
		CaseID:    res.CaseID,
		CaseIndex: res.CaseIndex,
		State:     res.State,
		Reused:    res.Reused(),
	}
	committed, err := r.store.CommitCase(ctx, ev)
	if err != nil {
		return fmt.Errorf("%w: commit case %d: %w", ErrPersistence, res.CaseIndex, err)
	}

	log := slog.With("case_id", res.CaseID, "case_index", res.CaseIndex)
	writeLog := true
	if !committed {
		recorded, err := r.store.IsRecorded(ctx, res.CaseIndex)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if recorded {
			log.Warn("pipeline: case already recorded, skipping side effects")
			writeLog = false
		} else {
			logged, err := r.hasLogLine(res.CaseIndex)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrPersistence, err)
			}
			writeLog = !logged
			log.Info("pipeline: completing an earlier commit", "log_line_missing", writeLog)
		}
	}

	if writeLog {
		switch {
		case res.State.ProducesReport():
			if err := r.reports.Append(reportlog.NewReportRecord(res.Memory, res.CaseIndex, res.State)); err != nil {
				return fmt.Errorf("%w: %w", ErrPersistence, err)
			}
			meta := map[string]string{
				"case_id":    res.CaseID,
				"case_index": strconv.Itoa(res.CaseIndex),
				"state":      string(res.State),
			}
			if _, err := r.cache.Add(ctx, res.Memory.Feedback, res.Report, meta); err != nil {
				log.Warn("pipeline: report not cached", "error", err)
			}
		case res.State.IsDeferred():
			if err := r.deferred.Append(reportlog.NewDeferredRecord(res.Memory, res.CaseIndex, res.State, res.Summary)); err != nil {
				return fmt.Errorf("%w: %w", ErrPersistence, err)
			}
		}
	}

	if err := r.store.MarkRecorded(ctx, res.CaseIndex); err != nil {
		return fmt.Errorf("%w: mark case %d recorded: %w", ErrPersistence, res.CaseIndex, err)
	}
	r.writeCounters(ctx)
	return nil
}

// hasLogLine reports whether either log already holds a line for caseIndex.
func (r *Runner) hasLogLine(caseIndex int) (bool, error) {
	for _, l := range []*reportlog.Log{r.reports, r.deferred} {
		found, err := l.HasCase(caseIndex)
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

// writeProgress and writeCounters mirror the database into the JSON state
// files. The database stays authoritative, so failures only warn.
func (r *Runner) writeProgress(ctx context.Context) {
	if r.snapshots == nil {
		return
	}
	// read and write under one lock so an older read never overwrites a newer one
	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	p, err := r.store.GetProgress(ctx)
	if err == nil {
		err = r.snapshots.WriteProgress(p)
	}
	if err != nil {
		slog.Warn("pipeline: progress snapshot not written", "error", err)
	}
}

func (r *Runner) writeCounters(ctx context.Context) {
	if r.snapshots == nil {
		return
	}
	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	c, err := r.store.GetCounters(ctx)
	if err == nil {
		err = r.snapshots.WriteCounters(c)
	}
	if err != nil {
		slog.Warn("pipeline: counter snapshot not written", "error", err)
	}
}
