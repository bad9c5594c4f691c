package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/repl"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive triage shell",
	Long: `Start an interactive shell that triages feedback typed at the prompt.

Triage in the shell is a dry run: the semantic cache, evidence tiers and
oracles are consulted, but progress, counters and logs are not touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		r, err := repl.New(&repl.Config{
			Triager: a.orch,
			Fuser:   a.engine,
			Cache:   a.cache,
			Status:  a.store,
		})
		if err != nil {
			return err
		}
		return r.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
