package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/fusion"
	"github.com/steveyegge/bugsift/internal/types"
)

var fuseCmd = &cobra.Command{
	Use:   "fuse TEXT",
	Short: "Show the fused evidence ranking for a text",
	Long: `Query both evidence tiers and print the adaptive tier weights, the
escalation flag and the fused candidate ranking. Nothing is recorded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		engine, err := fusion.NewEngine(
			fusion.NewSQLiteTier(types.TierKB, store, embedder),
			fusion.NewSQLiteTier(types.TierIssue, store, embedder),
			cfg.Fusion,
		)
		if err != nil {
			return err
		}

		fused := engine.Fuse(ctx, strings.Join(args, " "))

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s %s\n", cyan("Weights:"), fused.Weights)
		if fused.Escalate {
			fmt.Printf("%s both tiers below %.2f, the case would escalate if no candidate is sufficient\n",
				yellow("⚠"), cfg.Fusion.ThresholdLow)
		}
		fmt.Println()
		for i, c := range fused.Candidates {
			text := strings.Join(strings.Fields(c.Text), " ")
			if r := []rune(text); len(r) > 100 {
				text = string(r[:100]) + "..."
			}
			fmt.Printf("  %2d. [%-5s] score=%.4f sim=%.4f w=%.4f  %s\n", i+1, c.Tier, c.Score, c.Similarity, c.Weight, text)
		}
		if len(fused.Candidates) == 0 {
			fmt.Println("  (no evidence)")
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fuseCmd)
}
