// Package repl is the interactive triage shell. Feedback typed at the prompt
// runs through the pipeline as a dry run: nothing is claimed, counted or
// logged.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/bugsift/internal/pipeline"
	"github.com/steveyegge/bugsift/internal/types"
)

// Triager runs one case to a terminal state without recording it.
type Triager interface {
	Run(ctx context.Context, c *types.FeedbackCase, index int) (*pipeline.CaseResult, error)
}

// Fuser ranks evidence for a text.
type Fuser interface {
	Fuse(ctx context.Context, text string) *types.FusedEvidence
}

// CacheSearcher looks up reusable reports.
type CacheSearcher interface {
	Search(ctx context.Context, feedback string) *types.ReuseDecision
}

// StatusSource reports persisted progress.
type StatusSource interface {
	GetProgress(ctx context.Context) (types.ProgressRecord, error)
	GetCounters(ctx context.Context) (*types.CounterRecord, error)
}

// REPL represents the interactive shell
type REPL struct {
	triager  Triager
	fuser    Fuser
	cache    CacheSearcher
	status   StatusSource
	out      io.Writer
	rl       *readline.Instance
	ctx      context.Context
	commands map[string]CommandHandler
	last     *pipeline.CaseResult
	runs     int
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Triager Triager
	Fuser   Fuser         // can be nil: "fuse" is unavailable
	Cache   CacheSearcher // can be nil: "cache" is unavailable
	Status  StatusSource  // can be nil: "status" is unavailable
	Out     io.Writer     // default os.Stdout
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Triager == nil {
		return nil, fmt.Errorf("triager is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		triager:  cfg.Triager,
		fuser:    cfg.Fuser,
		cache:    cfg.Cache,
		status:   cfg.Status,
		out:      out,
		ctx:      context.Background(),
		commands: make(map[string]CommandHandler),
	}

	// Register built-in commands
	r.registerCommands()

	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("bugsift> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.rl = rl
	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - just show prompt again
				continue
			} else if err == io.EOF {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// processInput dispatches a command, or triages the line as feedback.
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	if handler, ok := r.commands[parts[0]]; ok {
		return handler(parts[1:])
	}
	return r.triage(line)
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
	r.commands["status"] = r.cmdStatus
	r.commands["fuse"] = r.cmdFuse
	r.commands["cache"] = r.cmdCache
	r.commands["show"] = r.cmdShow
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("bugsift triage shell"))
	fmt.Fprintln(r.out, "Type user feedback to triage it (dry run, nothing is recorded).")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"<feedback>", "Triage feedback through the full pipeline (dry run)"},
		{"fuse <text>", "Show fused evidence and tier weights for text"},
		{"cache <text>", "Look up a reusable report in the semantic cache"},
		{"show", "Print the working memory of the last triage"},
		{"status", "Show progress and reuse counters"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, c := range commands {
		fmt.Fprintf(r.out, "  %-14s %s\n", green(c.name), c.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	if r.rl != nil {
		r.rl.Close()
	}
	return io.EOF // Signal to exit the loop
}
