package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bugsift/internal/embedding"
	"github.com/steveyegge/bugsift/internal/types"
)

// corpusRecord is one line of an ingest file.
type corpusRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

func (r corpusRecord) passage() string {
	text := strings.TrimSpace(r.Text)
	if title := strings.TrimSpace(r.Title); title != "" {
		return title + "\n" + text
	}
	return text
}

func (r corpusRecord) source() string {
	if r.URL != "" {
		return r.URL
	}
	return r.ID
}

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Embed a JSONL corpus into an evidence tier",
	Long: `Load passages from a JSONL file ({"id", "title", "text", "url"} per line),
embed each one and store it in the given tier. Passages already present in
the tier are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, _ := cmd.Flags().GetString("tier")
		if tier != types.TierKB && tier != types.TierIssue {
			return fmt.Errorf("--tier must be %q or %q", types.TierKB, types.TierIssue)
		}

		ctx, cancel := signalContext()
		defer cancel()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		embedder, err := embedding.New(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open corpus: %w", err)
		}
		defer f.Close()

		var added, skipped int
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec corpusRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
			}
			text := rec.passage()
			if text == "" {
				skipped++
				continue
			}
			vec, err := embedder.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("line %d: embedding failed: %w", lineNo, err)
			}
			ok, err := store.AddPassage(ctx, &types.Passage{Tier: tier, Text: text, Source: rec.source(), Embedding: vec})
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			if ok {
				added++
			} else {
				skipped++
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read corpus: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Ingested %d passage(s) into tier %s (%d skipped)\n", green("✓"), added, tier, skipped)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("tier", types.TierKB, "Target tier: kb or issue")
	rootCmd.AddCommand(ingestCmd)
}

