package llm

import (
	"fmt"
	"os"
	"strings"

	"llmhub/internal/domain"
	"llmhub/internal/retry"
)

// LocalPrefix is the echo prefix of the local engine.
const LocalPrefix = "Local: "

// getenv is swapped in tests.
var getenv = os.Getenv

// NewEngine returns the Engine selected by cfg, optionally wrapped with retry
// logic. Provider may be "local", "ollama" or "openai"; empty defaults to
// "local". split only affects the local engine.
func NewEngine(cfg *domain.EngineConfig, retryCfg *domain.RetryConfig, split Splitter) (domain.Engine, error) {
	base, err := newBaseEngine(cfg, split)
	if err != nil {
		return nil, err
	}
	return wrapWithRetry(base, retryCfg), nil
}

func newBaseEngine(cfg *domain.EngineConfig, split Splitter) (domain.Engine, error) {
	if cfg == nil {
		return NewLocalEngine(LocalPrefix, split), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "local"
	}
	switch provider {
	case "local":
		return NewLocalEngine(LocalPrefix, split), nil
	case "ollama":
		if cfg.Model == "" {
			return nil, fmt.Errorf("ollama engine: model not set")
		}
		return NewOllamaEngine(*cfg), nil
	case "openai":
		if cfg.Model == "" {
			return nil, fmt.Errorf("openai engine: model not set")
		}
		c := *cfg
		if c.APIKey == "" {
			c.APIKey = getenv("OPENAI_API_KEY")
		}
		if c.APIKey == "" && c.BaseURL == "" {
			return nil, fmt.Errorf("openai engine: API key not set (config engine.apiKey or OPENAI_API_KEY)")
		}
		return NewOpenAIEngine(c), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q (use: local, ollama, openai)", cfg.Provider)
	}
}

// wrapWithRetry decorates an engine with retry logic when config is supplied.
func wrapWithRetry(engine domain.Engine, retryCfg *domain.RetryConfig) domain.Engine {
	if retryCfg == nil || retryCfg.MaxRetries <= 0 {
		return engine
	}
	cfg := retry.FromDomain(*retryCfg)
	if cfg.Validate() != nil {
		return engine
	}
	return retry.NewRetryableEngine(engine, cfg)
}
