package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmhub/internal/domain"
	"llmhub/internal/retry"
)

func TestNewEngine_WhenConfigIsNil_ShouldReturnLocalEngine(t *testing.T) {
	e, err := NewEngine(nil, nil, nil)
	require.NoError(t, err)
	got, err := e.Invoke(context.Background(), "test", nil)
	require.NoError(t, err)
	assert.Equal(t, "Local: test", got)
}

func TestNewEngine_WhenProviderIsEmpty_ShouldDefaultToLocal(t *testing.T) {
	e, err := NewEngine(&domain.EngineConfig{}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalEngine{}, e)
}

func TestNewEngine_WhenProviderUnknown_ShouldReturnError(t *testing.T) {
	_, err := NewEngine(&domain.EngineConfig{Provider: "anthropic"}, nil, nil)
	assert.ErrorContains(t, err, "unknown engine provider")
}

func TestNewEngine_WhenOllamaWithoutModel_ShouldReturnError(t *testing.T) {
	_, err := NewEngine(&domain.EngineConfig{Provider: "ollama"}, nil, nil)
	assert.Error(t, err)
}

func TestNewEngine_WhenOpenAIKeyMissing_ShouldReturnError(t *testing.T) {
	orig := getenv
	getenv = func(string) string { return "" }
	defer func() { getenv = orig }()

	_, err := NewEngine(&domain.EngineConfig{Provider: "openai", Model: "gpt"}, nil, nil)
	assert.ErrorContains(t, err, "API key not set")
}

func TestNewEngine_WhenOpenAIKeyInEnv_ShouldUseIt(t *testing.T) {
	orig := getenv
	getenv = func(string) string { return "sk-env" }
	defer func() { getenv = orig }()

	e, err := NewEngine(&domain.EngineConfig{Provider: "openai", Model: "gpt"}, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &OpenAIEngine{}, e)
	assert.Equal(t, "sk-env", e.(*OpenAIEngine).apiKey)
}

func TestNewEngine_WhenRetryConfigured_ShouldWrap(t *testing.T) {
	rc := &domain.RetryConfig{MaxRetries: 2, InitialBackoff: 10, MaxBackoff: 100, Multiplier: 2}
	e, err := NewEngine(&domain.EngineConfig{Provider: "ollama", Model: "m"}, rc, nil)
	require.NoError(t, err)
	assert.IsType(t, &retry.RetryableEngine{}, e)
	assert.Equal(t, "m", e.Info().Model)
}

func TestNewEngine_WhenRetryDisabled_ShouldNotWrap(t *testing.T) {
	e, err := NewEngine(&domain.EngineConfig{Provider: "local"}, &domain.RetryConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalEngine{}, e)
}
