package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/steveyegge/bugsift/internal/ai"
	"github.com/steveyegge/bugsift/internal/cases"
	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/fusion"
	"github.com/steveyegge/bugsift/internal/pipeline"
	"github.com/steveyegge/bugsift/internal/reportlog"
	"github.com/steveyegge/bugsift/internal/semcache"
	"github.com/steveyegge/bugsift/internal/storage"
	"github.com/steveyegge/bugsift/internal/types"
	"github.com/steveyegge/bugsift/internal/websearch"
)

// app holds the wired components for one command invocation.
type app struct {
	store      storage.Storage
	embedder   embedding.Embedder
	engine     *fusion.Engine
	supervisor *ai.Supervisor
	cache      *semcache.Cache
	orch       *pipeline.Orchestrator
}

func openStore(ctx context.Context) (storage.Storage, error) {
	store, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.Paths.Database()})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// newApp wires storage, retrieval, the oracles and the orchestrator.
func newApp(ctx context.Context) (*app, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{store: store}

	a.embedder, err = embedding.New(cfg.Embedding)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	kb := fusion.NewSQLiteTier(types.TierKB, store, a.embedder)
	issues := fusion.NewSQLiteTier(types.TierIssue, store, a.embedder)
	a.engine, err = fusion.NewEngine(kb, issues, cfg.Fusion)
	if err != nil {
		a.close()
		return nil, err
	}

	a.supervisor, err = ai.NewSupervisor(&cfg.AI)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create AI supervisor: %w", err)
	}

	a.cache, err = semcache.New(store, a.embedder, a.supervisor, cfg.Cache)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create semantic cache: %w", err)
	}

	searcher, err := websearch.New(cfg.Search)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}

	oc := &pipeline.OrchestratorConfig{
		Cache:       a.cache,
		Judge:       a.supervisor,
		Generator:   a.supervisor,
		Reasoner:    a.supervisor,
		SearchAgent: a.supervisor,
		Searcher:    searcher,
		Fusion:      cfg.Fusion,
		Options:     cfg.Pipeline,
	}
	// Skip live retrieval (and its embedding calls) until a corpus is ingested
	counts, err := store.CountPassages(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to count passages: %w", err)
	}
	if counts[types.TierKB]+counts[types.TierIssue] > 0 {
		oc.Retriever = a.engine
	} else if cfg.Pipeline.LiveRetrieval {
		slog.Info("no tier passages ingested, using retrieved_list evidence only")
	}

	a.orch, err = pipeline.NewOrchestrator(oc)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// newRunner loads the case file and builds a runner over a.
func (a *app) newRunner() (*pipeline.Runner, error) {
	all, err := cases.Load(cfg.Paths.CaseFile)
	if err != nil {
		return nil, err
	}
	reports, err := reportlog.Open(cfg.Paths.Reports())
	if err != nil {
		return nil, err
	}
	deferred, err := reportlog.Open(cfg.Paths.Deferred())
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(&pipeline.RunnerConfig{
		Store:        a.store,
		Orchestrator: a.orch,
		Cache:        a.cache,
		Cases:        all,
		Reports:      reports,
		Deferred:     deferred,
		Snapshots:    reportlog.NewSnapshots(cfg.Paths.Progress(), cfg.Paths.Counters()),
		Health:       a.supervisor,
		Options:      cfg.Pipeline,
	})
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close database: %v\n", err)
		}
	}
}

// printAIUsage reports oracle call volume after a run.
func (a *app) printAIUsage() {
	calls, usage := a.supervisor.Stats()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Println(gray(fmt.Sprintf("  AI calls: %d (tokens in=%d out=%d)", calls, usage.InputTokens, usage.OutputTokens)))
}

// withLock runs fn while holding the data directory's exclusive lock.
func withLock(holder string, fn func() error) error {
	lockPath, err := storage.AcquireExclusiveLock(cfg.Paths.DataDir, holder, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.ReleaseExclusiveLock(lockPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release exclusive lock: %v\n", err)
		}
	}()
	return fn()
}

// signalContext is cancelled on Ctrl+C or SIGTERM. The in-flight case is
// abandoned and retried by the next run.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping after the current step...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
