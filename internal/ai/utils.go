package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// CallAI makes a generic AI API call with the given prompt, wrapped in the
// retry, circuit breaker and concurrency limits.
func (s *Supervisor) CallAI(ctx context.Context, prompt string, operation string, model string, maxTokens int) (string, error) {
	if s.complete == nil {
		return "", fmt.Errorf("%s: supervisor has no transport", operation)
	}
	startTime := time.Now()

	if model == "" {
		model = s.model
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var responseText string
	var usage Usage
	err := s.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		text, u, apiErr := s.complete(attemptCtx, prompt, model, maxTokens)
		if apiErr != nil {
			return apiErr
		}
		responseText = text
		usage = u
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	s.calls.Add(1)
	s.inputTokens.Add(usage.InputTokens)
	s.outputTokens.Add(usage.OutputTokens)

	slog.Debug("ai: call complete",
		"operation", operation,
		"model", model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration", time.Since(startTime))

	return responseText, nil
}

// truncateString truncates a string to maxLen bytes without splitting a rune.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// numbered renders items as "[1] first\n[2] second" with 1-based indices.
func numbered(items []string, maxEach int) string {
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, truncateString(item, maxEach))
	}
	return strings.TrimRight(sb.String(), "\n")
}
