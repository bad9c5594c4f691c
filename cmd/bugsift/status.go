package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/storage"
	"github.com/steveyegge/bugsift/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress, reuse counters and dead-lettered cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== bugsift status ==="))

		lock, err := storage.ReadExclusiveLock(filepath.Join(cfg.Paths.DataDir, storage.LockFileName))
		if err != nil {
			fmt.Printf("  %s failed to read lock: %v\n", red("✗"), err)
		} else if lock != nil {
			fmt.Printf("  %s %s running (PID %d on %s, since %s)\n\n", green("●"),
				lock.Holder, lock.PID, lock.Hostname, lock.StartedAt.Format("2006-01-02 15:04:05"))
		}

		progress, err := store.GetProgress(ctx)
		if err != nil {
			return fmt.Errorf("failed to get progress: %w", err)
		}
		counters, err := store.GetCounters(ctx)
		if err != nil {
			return fmt.Errorf("failed to get counters: %w", err)
		}

		fmt.Printf("%s\n", yellow("Progress:"))
		fmt.Printf("  Last claimed index: %d\n", progress.LastIndex)
		fmt.Printf("  Cases committed:    %d\n", counters.CaseCount)
		fmt.Printf("  Reused from cache:  %d (%.1f%%)\n", counters.ReuseCount, 100*counters.ReuseRate())
		fmt.Printf("  Checkpoints:        %d\n\n", len(counters.History))

		byState, err := store.CountByState(ctx)
		if err != nil {
			return fmt.Errorf("failed to count outcomes: %w", err)
		}
		if len(byState) > 0 {
			fmt.Printf("%s\n", yellow("Outcomes:"))
			for _, st := range []types.CaseState{
				types.StateReused, types.StateLocalSufficient, types.StateReasonGenerate,
				types.StateSearchGenerate, types.StateSearchStore, types.StateReasonNone,
			} {
				if n := byState[st]; n > 0 {
					fmt.Printf("  %-16s %d\n", st, n)
				}
			}
			fmt.Println()
		}

		fmt.Printf("%s\n", yellow("Claims:"))
		for _, st := range []types.ClaimStatus{types.ClaimClaimed, types.ClaimErrored, types.ClaimInterrupted, types.ClaimFailed} {
			claims, err := store.ListClaims(ctx, st)
			if err != nil {
				return fmt.Errorf("failed to list %s claims: %w", st, err)
			}
			if len(claims) == 0 {
				continue
			}
			fmt.Printf("  %s: %d\n", st, len(claims))
			if st != types.ClaimFailed {
				continue
			}
			for _, c := range claims {
				fmt.Printf("    %s index %d after %d attempts: %s\n", red("✗"), c.CaseIndex, c.Attempts, c.LastError)
			}
		}
		fmt.Println()

		entries, err := store.CountCacheEntries(ctx)
		if err != nil {
			return fmt.Errorf("failed to count cache entries: %w", err)
		}
		passages, err := store.CountPassages(ctx)
		if err != nil {
			return fmt.Errorf("failed to count passages: %w", err)
		}
		fmt.Printf("%s\n", yellow("Corpora:"))
		fmt.Printf("  Semantic cache entries: %d\n", entries)
		fmt.Printf("  Passages: kb=%d issue=%d\n", passages[types.TierKB], passages[types.TierIssue])
		fmt.Printf("  %s\n\n", gray("database: "+cfg.Paths.Database()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
