package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/config"
)

const version = "0.1.0"

var (
	cfgPath string
	dataDir string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bugsift",
	Short: "Triage user feedback into structured bug reports",
	Long: `bugsift turns raw user feedback into structured bug reports.

Each case is checked against a semantic cache of earlier reports, then
against ranked local evidence (knowledge base and past issues), and only
escalates to a reasoning model and web search when local evidence is not
enough. Progress is durable: interrupted runs resume where they stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			loaded.Paths.DataDir = dataDir
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultFileName, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "State directory (overrides paths.data_dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
