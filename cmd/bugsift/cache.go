package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/ai"
	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/semcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the semantic cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.ListCacheEntries(ctx)
		if err != nil {
			return err
		}
		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, e := range entries {
			fmt.Printf("%s  %s  %s\n", e.ID, gray(e.CreatedAt.Format("2006-01-02 15:04")), firstLine(e.Feedback, 90))
		}
		fmt.Printf("\n%d entr(ies)\n", len(entries))
		return nil
	},
}

var cacheSearchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "Look up a reusable report for feedback",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noVerify, _ := cmd.Flags().GetBool("no-verify")
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		embedder, err := embedding.New(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}

		cacheCfg := cfg.Cache
		var verifier semcache.Verifier
		if noVerify {
			cacheCfg.Verify = false
		} else if cacheCfg.Verify {
			sup, err := ai.NewSupervisor(&cfg.AI)
			if err != nil {
				return fmt.Errorf("failed to create AI supervisor: %w", err)
			}
			verifier = sup
		}
		cache, err := semcache.New(store, embedder, verifier, cacheCfg)
		if err != nil {
			return err
		}

		feedback := strings.Join(args, " ")
		nearest, err := cache.Nearest(ctx, feedback, cacheCfg.TopK)
		if err != nil {
			return err
		}
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Println("Nearest entries:")
		for i, n := range nearest {
			mark := gray("below threshold")
			if n.Similarity >= cacheCfg.SimilarityThreshold {
				mark = "candidate"
			}
			fmt.Printf("  [%d] %.3f  %s  %s\n", i+1, n.Similarity, firstLine(n.Entry.Feedback, 80), mark)
		}

		d := cache.Search(ctx, feedback)
		if d == nil {
			fmt.Printf("\n%s\n", gray("No reuse"))
			return nil
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s reuse %s (similarity %.3f): %s\n\n%s\n", green("✓"), d.Entry.ID, d.Similarity, d.Rationale, d.Entry.Report)
		return nil
	},
}

func firstLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

func init() {
	cacheSearchCmd.Flags().Bool("no-verify", false, "Skip the equivalence check and reuse on similarity alone")
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheSearchCmd)
	rootCmd.AddCommand(cacheCmd)
}
