package config

import (
	"errors"
	"fmt"
	"os"

	"llmhub/internal/domain"
	"llmhub/internal/template"
)

// Validate reports every problem in cfg joined into one error. Each problem
// wraps ErrInvalid.
func Validate(cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		bad("gateway.port %d out of range", cfg.Gateway.Port)
	}
	switch cfg.Engine.Provider {
	case "", "local":
	case "ollama", "openai":
		if cfg.Engine.Model == "" {
			bad("engine.model is required for provider %q", cfg.Engine.Provider)
		}
	default:
		bad("engine.provider %q is not local, ollama or openai", cfg.Engine.Provider)
	}
	if cfg.Contexts.DefaultHistory < 0 {
		bad("contexts.defaultHistory must not be negative")
	}
	if _, err := domain.ParseSummarizerKind(cfg.Contexts.DefaultSummarizer); err != nil {
		bad("contexts.defaultSummarizer: %v", err)
	}
	if cfg.Retry.MaxRetries < 0 || cfg.Retry.InitialBackoff < 0 || cfg.Retry.MaxBackoff < 0 {
		bad("retry values must not be negative")
	}
	if cfg.Retry.MaxRetries > 0 && cfg.Retry.Multiplier < 1 {
		bad("retry.multiplier must be at least 1")
	}
	switch cfg.Infra.LogFormat {
	case "", "text", "json":
	default:
		bad("infra.logFormat %q is not text or json", cfg.Infra.LogFormat)
	}
	switch cfg.Infra.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		bad("infra.logLevel %q is not debug, info, warn or error", cfg.Infra.LogLevel)
	}
	return errors.Join(errs...)
}

// CheckTemplateDir verifies that the template directory exists and, when a
// default template is configured, that it parses.
func CheckTemplateDir(cfg *domain.Config) error {
	info, err := os.Stat(cfg.Contexts.TemplateDir)
	if err != nil {
		return fmt.Errorf("template dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: template dir %s is not a directory", ErrInvalid, cfg.Contexts.TemplateDir)
	}
	if cfg.Contexts.DefaultTemplate == "" {
		return nil
	}
	if _, err := template.NewLoader(cfg.Contexts.TemplateDir).Load(cfg.Contexts.DefaultTemplate); err != nil {
		return fmt.Errorf("default template: %w", err)
	}
	return nil
}
