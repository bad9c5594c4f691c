package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/pipeline"
	"github.com/steveyegge/bugsift/internal/storage"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Process the next case",
	Long: `Claim the next unprocessed case from the input file, run it to a
terminal state and record the outcome. Safe to invoke repeatedly: each call
continues from the persisted progress record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		return withLock("bugsift next", func() error {
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			res, err := runner.ProcessNext(ctx)
			var caseErr *pipeline.CaseError
			switch {
			case errors.Is(err, storage.ErrNoMoreCases):
				gray := color.New(color.FgHiBlack).SprintFunc()
				fmt.Println(gray("No more cases to process"))
				return nil
			case errors.As(err, &caseErr):
				red := color.New(color.FgRed).SprintFunc()
				fmt.Printf("%s case %s (index %d) %s: %v\n", red("✗"), caseErr.CaseID, caseErr.CaseIndex, caseErr.Status, caseErr.Err)
				return nil
			case err != nil:
				return err
			}

			printResult(res)
			a.printAIUsage()
			return nil
		})
	},
}

func printResult(res *pipeline.CaseResult) {
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("%s case %s (index %d) → %s in %v\n",
		green("✓"), res.CaseID, res.CaseIndex, cyan(res.State), res.Duration.Round(1e6))
	if res.Candidates > 0 {
		fmt.Printf("  evidence: %d candidates, %s, escalate=%t\n", res.Candidates, res.Weights, res.Escalate)
	}
	if res.Rationale != "" {
		fmt.Printf("  rationale: %s\n", res.Rationale)
	}
	if res.Report != "" {
		fmt.Printf("\n%s\n", res.Report)
	}
}

func init() {
	rootCmd.AddCommand(nextCmd)
}
