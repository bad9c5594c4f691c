package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
)

// Model tiers. Judging, query writing and summarizing run on the cheap model;
// report synthesis, reasoning and cache verification on the default one.
//
// Environment variable overrides:
// - BUGSIFT_MODEL_DEFAULT: Override default model (default: Sonnet)
// - BUGSIFT_MODEL_SIMPLE: Override model for simple tasks (default: Haiku)
const (
	// ModelSonnet is the high-end model for synthesis and reasoning
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for simple tasks
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the default model, checking BUGSIFT_MODEL_DEFAULT env var first
func GetDefaultModel() string {
	if model := os.Getenv("BUGSIFT_MODEL_DEFAULT"); model != "" {
		return model
	}
	return ModelSonnet
}

// GetSimpleTaskModel returns the model for simple tasks, checking BUGSIFT_MODEL_SIMPLE env var first
func GetSimpleTaskModel() string {
	if model := os.Getenv("BUGSIFT_MODEL_SIMPLE"); model != "" {
		return model
	}
	return ModelHaiku
}

// completeFunc sends one prompt and returns the response text.
type completeFunc func(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error)

// Usage is the token usage of one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Supervisor is the language-model oracle behind every judgment bugsift makes.
//
// The Supervisor's responsibilities are distributed across multiple files:
// - supervisor.go: Core struct and constructor (this file)
// - breaker.go: Circuit breaker
// - retry.go: Retry policy and backoff
// - json_parser.go: Resilient parsing of model JSON
// - judge.go: Candidate relevance/sufficiency judgment
// - generator.go: Structured bug report synthesis
// - reasoning.go: Escalation decision (generate / search / none)
// - verification.go: Semantic cache reuse verification
// - search_agent.go: Query writing, result summarizing, summary judgment
// - utils.go: CallAI and shared helpers
type Supervisor struct {
	client         *anthropic.Client
	complete       completeFunc
	model          string
	simpleModel    string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted

	calls        atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// Config holds supervisor configuration
type Config struct {
	APIKey      string      `yaml:"-"`            // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model       string      `yaml:"model"`        // Model for synthesis and reasoning
	SimpleModel string      `yaml:"simple_model"` // Model for judging, query writing and summaries
	Retry       RetryConfig `yaml:"retry"`        // Retry configuration (uses defaults if not specified)
}

// DefaultConfig returns the default model selection and retry policy.
func DefaultConfig() Config {
	return Config{
		Model:       GetDefaultModel(),
		SimpleModel: GetSimpleTaskModel(),
		Retry:       DefaultRetryConfig(),
	}
}

// NewSupervisor creates a new AI supervisor
func NewSupervisor(cfg *Config) (*Supervisor, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	s := newSupervisor(cfg, nil)
	s.client = &client
	s.complete = s.callAnthropic
	return s, nil
}

// newSupervisor wires everything except the transport.
func newSupervisor(cfg *Config, complete completeFunc) *Supervisor {
	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}
	simpleModel := cfg.SimpleModel
	if simpleModel == "" {
		simpleModel = GetSimpleTaskModel()
	}

	// Use default retry config if not specified
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.Timeout == 0 {
		retry = DefaultRetryConfig()
	}

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
		slog.Debug("ai: circuit breaker initialized",
			"threshold", retry.FailureThreshold, "recovery", retry.SuccessThreshold, "timeout", retry.OpenTimeout)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	return &Supervisor{
		complete:       complete,
		model:          model,
		simpleModel:    simpleModel,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
	}
}

// HealthCheck fails while the circuit breaker refuses calls. Once the open
// timeout has passed it lets the next call through as a trial call.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if s.circuitBreaker == nil {
		return nil
	}
	if err := s.circuitBreaker.Allow(); err != nil {
		_, failures, _ := s.circuitBreaker.GetMetrics()
		return fmt.Errorf("AI supervisor unavailable: %w (failures=%d, retry in %v)",
			err, failures, s.retry.OpenTimeout)
	}
	return nil
}

// Stats returns the number of calls made and tokens used so far.
func (s *Supervisor) Stats() (calls int64, usage Usage) {
	return s.calls.Load(), Usage{InputTokens: s.inputTokens.Load(), OutputTokens: s.outputTokens.Load()}
}

func (s *Supervisor) callAnthropic(ctx context.Context, prompt, model string, maxTokens int) (string, Usage, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", Usage{}, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}, nil
}
