package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"llmhub/internal/domain"
)

// scriptedEngine fails the first `failures` calls with err, optionally after
// opening the stream.
type scriptedEngine struct {
	failures     int
	err          error
	startThenErr bool
	calls        int
}

func (s *scriptedEngine) Info() domain.ModelInfo { return domain.ModelInfo{Model: "scripted"} }

func (s *scriptedEngine) Invoke(ctx context.Context, prompt string, cb domain.StreamCallbacks) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		if s.startThenErr && cb != nil {
			cb.OnStart()
		}
		return "", s.err
	}
	if cb != nil {
		cb.OnStart()
		cb.OnToken("ok")
		cb.OnEnd("ok")
	}
	return "ok", nil
}

type countingCallbacks struct{ starts, tokens, ends int }

func (c *countingCallbacks) OnStart()       { c.starts++ }
func (c *countingCallbacks) OnToken(string) { c.tokens++ }
func (c *countingCallbacks) OnEnd(string)   { c.ends++ }

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond, Multiplier: 2}
}

// =============================================================================
// Config
// =============================================================================

func TestDefaultConfig_ShouldValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_Validate_WhenFieldsOutOfRange_ShouldReturnError(t *testing.T) {
	bad := []Config{
		{MaxRetries: -1, InitialBackoff: 1, MaxBackoff: 1, Multiplier: 1},
		{MaxRetries: 1, InitialBackoff: 0, MaxBackoff: 1, Multiplier: 1},
		{MaxRetries: 1, InitialBackoff: 1, MaxBackoff: 0, Multiplier: 1},
		{MaxRetries: 1, InitialBackoff: 1, MaxBackoff: 1, Multiplier: 0.5},
	}
	for i, c := range bad {
		if c.Validate() == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestFromDomain_ShouldConvertMilliseconds(t *testing.T) {
	c := FromDomain(domain.RetryConfig{MaxRetries: 2, InitialBackoff: 250, MaxBackoff: 1000, Multiplier: 3})
	if c.InitialBackoff != 250*time.Millisecond || c.MaxBackoff != time.Second || c.Multiplier != 3 || c.MaxRetries != 2 {
		t.Errorf("unexpected conversion: %+v", c)
	}
}

// =============================================================================
// IsRetryable
// =============================================================================

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{errors.New("ollama api: 503 Service Unavailable"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("ollama api: 400 Bad Request"), false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

// =============================================================================
// RetryableEngine
// =============================================================================

func TestRetryableEngine_WhenTransientBeforeStart_ShouldRetry(t *testing.T) {
	inner := &scriptedEngine{failures: 2, err: errors.New("503")}
	e := NewRetryableEngine(inner, fastConfig(3))
	e.sleepFunc = func(time.Duration) {}
	cb := &countingCallbacks{}

	out, err := e.Invoke(context.Background(), "p", cb)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "ok" || inner.calls != 3 {
		t.Errorf("out=%q calls=%d", out, inner.calls)
	}
	if cb.starts != 1 || cb.ends != 1 {
		t.Errorf("callbacks: %+v", cb)
	}
}

func TestRetryableEngine_WhenFailureAfterStart_ShouldNotRetry(t *testing.T) {
	inner := &scriptedEngine{failures: 1, err: errors.New("503"), startThenErr: true}
	e := NewRetryableEngine(inner, fastConfig(3))
	e.sleepFunc = func(time.Duration) {}

	if _, err := e.Invoke(context.Background(), "p", &countingCallbacks{}); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("want 1 call, got %d", inner.calls)
	}
}

func TestRetryableEngine_WhenNonRetryable_ShouldReturnImmediately(t *testing.T) {
	inner := &scriptedEngine{failures: 5, err: errors.New("400 bad request")}
	e := NewRetryableEngine(inner, fastConfig(3))
	e.sleepFunc = func(time.Duration) {}
	if _, err := e.Invoke(context.Background(), "p", nil); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("want 1 call, got %d", inner.calls)
	}
}

func TestRetryableEngine_WhenExhausted_ShouldWrapLastError(t *testing.T) {
	base := errors.New("502 bad gateway")
	inner := &scriptedEngine{failures: 10, err: base}
	e := NewRetryableEngine(inner, fastConfig(2))
	var sleeps []time.Duration
	e.sleepFunc = func(d time.Duration) { sleeps = append(sleeps, d) }

	_, err := e.Invoke(context.Background(), "p", nil)
	if !errors.Is(err, base) {
		t.Fatalf("want wrapped base error, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("want 3 calls, got %d", inner.calls)
	}
	if len(sleeps) != 2 || sleeps[0] != time.Millisecond || sleeps[1] != 2*time.Millisecond {
		t.Errorf("unexpected backoff schedule %v", sleeps)
	}
}

func TestRetryableEngine_Info_ShouldDelegate(t *testing.T) {
	e := NewRetryableEngine(&scriptedEngine{}, fastConfig(0))
	if e.Info().Model != "scripted" {
		t.Errorf("Info: got %+v", e.Info())
	}
}

func TestNewRetryableEngine_WhenNilInner_ShouldPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewRetryableEngine(nil, DefaultConfig())
}
