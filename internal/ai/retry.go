package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// RetryConfig bounds every oracle call: per-attempt timeout, exponential
// backoff between attempts, the circuit breaker and a shared concurrency cap.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Timeout           time.Duration `yaml:"timeout"` // per attempt

	CircuitBreakerEnabled bool          `yaml:"circuit_breaker"`
	FailureThreshold      int           `yaml:"failure_threshold"`
	SuccessThreshold      int           `yaml:"success_threshold"`
	OpenTimeout           time.Duration `yaml:"open_timeout"`

	// MaxConcurrentCalls is shared by all case workers; 0 means unlimited.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    3,
	}
}

// Validate checks the retry policy.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive (got %v)", c.Timeout)
	case c.BackoffMultiplier < 1:
		return fmt.Errorf("backoff_multiplier must be >= 1 (got %v)", c.BackoffMultiplier)
	case c.CircuitBreakerEnabled && (c.FailureThreshold < 1 || c.SuccessThreshold < 1):
		return fmt.Errorf("circuit breaker thresholds must be >= 1")
	case c.MaxConcurrentCalls < 0:
		return fmt.Errorf("max_concurrent_calls must be >= 0 (got %d)", c.MaxConcurrentCalls)
	}
	return nil
}

// retryWithBackoff runs fn until it succeeds, fails permanently, the breaker
// opens, or ctx ends. Each attempt gets its own deadline so a hung oracle
// call fails closed.
func (s *Supervisor) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) error {
	if s.concurrencySem != nil {
		if err := s.concurrencySem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to acquire concurrency slot for %s: %w", operation, err)
		}
		defer s.concurrencySem.Release(1)
	}

	backoff := s.retry.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if s.circuitBreaker != nil {
			if err := s.circuitBreaker.Allow(); err != nil {
				slog.Warn("ai: call blocked by circuit breaker", "operation", operation)
				return fmt.Errorf("%s failed: %w", operation, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.retry.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if s.circuitBreaker != nil {
				s.circuitBreaker.RecordSuccess()
			}
			if attempt > 0 {
				slog.Info("ai: call succeeded after retries", "operation", operation, "retries", attempt)
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: %w", operation, ctx.Err())
		}
		if !isRetriableError(err) {
			slog.Warn("ai: non-retriable error", "operation", operation, "error", err)
			return err
		}
		// Only transient failures count against the breaker; a bad request
		// says nothing about API health.
		if s.circuitBreaker != nil {
			s.circuitBreaker.RecordFailure()
		}
		if attempt == s.retry.MaxRetries {
			break
		}

		slog.Info("ai: call failed, retrying",
			"operation", operation, "attempt", attempt+1, "of", s.retry.MaxRetries+1, "backoff", backoff, "error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s failed: context canceled during backoff: %w", operation, ctx.Err())
		}
		backoff = min(time.Duration(float64(backoff)*s.retry.BackoffMultiplier), s.retry.MaxBackoff)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, s.retry.MaxRetries+1, lastErr)
}

// isRetriableError reports whether err is transient: timeouts, rate limits,
// server errors and connection failures.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}

	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"429", "rate limit",
		"500", "502", "503", "504", "529", "overloaded",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"connection refused", "connection reset", "timeout", "temporary failure", "network",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
