package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"llmhub/internal/domain"
)

// =============================================================================
// RetryConfig
// =============================================================================

// Config controls retry behaviour for engine calls.
type Config struct {
	MaxRetries     int           `json:"maxRetries"`     // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration `json:"initialBackoff"` // Delay before first retry
	MaxBackoff     time.Duration `json:"maxBackoff"`     // Upper bound on backoff duration
	Multiplier     float64       `json:"multiplier"`     // Backoff multiplier (e.g. 2.0 for exponential)
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// FromDomain converts the millisecond-based file config.
func FromDomain(rc domain.RetryConfig) Config {
	return Config{
		MaxRetries:     rc.MaxRetries,
		InitialBackoff: time.Duration(rc.InitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(rc.MaxBackoff) * time.Millisecond,
		Multiplier:     float64(rc.Multiplier),
	}
}

// Validate checks that all Config fields are within acceptable ranges.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("retry: MaxRetries must be >= 0")
	}
	if c.InitialBackoff <= 0 {
		return errors.New("retry: InitialBackoff must be > 0")
	}
	if c.MaxBackoff <= 0 {
		return errors.New("retry: MaxBackoff must be > 0")
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	return nil
}

// =============================================================================
// Error Classification
// =============================================================================

// retryableStatusCodes are HTTP status codes that indicate a transient failure.
var retryableStatusCodes = []string{"429", "500", "502", "503", "504", "529"}

// IsRetryable returns true when err represents a transient failure that may
// succeed on retry (5xx, 429, timeout, connection refused, EOF).
// Context errors (Canceled, DeadlineExceeded) are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, code := range retryableStatusCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "EOF")
}

// =============================================================================
// RetryableEngine (Decorator)
// =============================================================================

// RetryableEngine wraps an Engine with retry-on-transient-error logic. Only
// attempts that failed before the engine signalled OnStart are retried: once
// tokens have reached the caller a retry would duplicate output.
type RetryableEngine struct {
	inner     domain.Engine
	config    Config
	sleepFunc func(time.Duration) // injectable for testing
}

// NewRetryableEngine returns a decorator around inner, which must not be nil.
func NewRetryableEngine(inner domain.Engine, cfg Config) *RetryableEngine {
	if inner == nil {
		panic("retry: inner engine must not be nil")
	}
	return &RetryableEngine{
		inner:     inner,
		config:    cfg,
		sleepFunc: time.Sleep,
	}
}

// Info implements domain.Engine.
func (e *RetryableEngine) Info() domain.ModelInfo { return e.inner.Info() }

// Invoke implements domain.Engine.
func (e *RetryableEngine) Invoke(ctx context.Context, prompt string, cb domain.StreamCallbacks) (string, error) {
	var lastErr error
	backoff := e.config.InitialBackoff

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		var tracked *startTracker
		var callbacks domain.StreamCallbacks
		if cb != nil {
			tracked = &startTracker{inner: cb}
			callbacks = tracked
		}
		result, err := e.inner.Invoke(ctx, prompt, callbacks)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if tracked != nil && tracked.started {
			return "", err
		}
		if !IsRetryable(err) {
			return "", err
		}
		if attempt == e.config.MaxRetries {
			break
		}

		e.sleepFunc(backoff)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		next := time.Duration(float64(backoff) * e.config.Multiplier)
		if next > e.config.MaxBackoff {
			next = e.config.MaxBackoff
		}
		backoff = next
	}

	return "", fmt.Errorf("retries exhausted after %d attempts: %w", e.config.MaxRetries+1, lastErr)
}

// startTracker records whether the stream was opened.
type startTracker struct {
	inner   domain.StreamCallbacks
	started bool
}

func (s *startTracker) OnStart()             { s.started = true; s.inner.OnStart() }
func (s *startTracker) OnToken(delta string) { s.inner.OnToken(delta) }
func (s *startTracker) OnEnd(final string)   { s.inner.OnEnd(final) }

var _ domain.Engine = (*RetryableEngine)(nil)
