package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process all remaining cases",
	Long: `Process every remaining case in the input file.

A failing case is logged and skipped; it is retried on later claims until it
has failed max_attempts times, then dead-lettered. Persistence failures stop
the run. Ctrl+C abandons the in-flight cases, which the next run retries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		if workers > 0 {
			cfg.Pipeline.Workers = workers
		}

		ctx, cancel := signalContext()
		defer cancel()

		return withLock("bugsift run", func() error {
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Run %s started with %d worker(s)\n", green("✓"), runner.RunID(), cfg.Pipeline.Workers)

			summary, runErr := runner.ProcessAll(ctx)

			fmt.Printf("\nProcessed %d case(s) in %v: %d reused, %d errored\n",
				summary.Processed, summary.Duration.Round(1e6), summary.Reused, summary.Errored)
			states := make([]string, 0, len(summary.States))
			for s := range summary.States {
				states = append(states, string(s))
			}
			sort.Strings(states)
			for _, s := range states {
				fmt.Printf("  %-18s %d\n", s, summary.States[types.CaseState(s)])
			}
			a.printAIUsage()

			if runErr != nil && ctx.Err() == nil {
				return runErr
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().IntP("workers", "w", 0, "Concurrent case workers (default from config)")
	rootCmd.AddCommand(runCmd)
}
