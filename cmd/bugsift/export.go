package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/reportlog"
)

var exportCmd = &cobra.Command{
	Use:       "export [reports|deferred|ledger|counters]",
	Short:     "Export generated reports, deferred feedback, the ledger or counters as JSON",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"reports", "deferred", "ledger", "counters"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := "reports"
		if len(args) == 1 {
			kind = args[0]
		}
		outPath, _ := cmd.Flags().GetString("out")

		var data any
		var err error
		switch kind {
		case "reports":
			data, err = reportlog.ReadAll[reportlog.ReportRecord](cfg.Paths.Reports())
		case "deferred":
			data, err = reportlog.ReadAll[reportlog.DeferredRecord](cfg.Paths.Deferred())
		case "ledger", "counters":
			ctx := context.Background()
			store, openErr := openStore(ctx)
			if openErr != nil {
				return openErr
			}
			defer store.Close()
			if kind == "ledger" {
				data, err = store.ListLedger(ctx)
			} else {
				data, err = store.GetCounters(ctx)
			}
		default:
			return fmt.Errorf("unknown export kind %q", kind)
		}
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer f.Close()
			w = f
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
