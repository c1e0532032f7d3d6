package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"llmhub/internal/domain"
)

// DefaultPath is used when neither --config nor LLMHUB_CONFIG is set.
const DefaultPath = "llmhub.json"

// EnvPath names the environment variable that overrides DefaultPath.
const EnvPath = "LLMHUB_CONFIG"

// marshalIndent, marshalYAML and writeFile are used by WriteDefault and Save; tests may replace to force errors.
var (
	marshalIndent = json.MarshalIndent
	marshalYAML   = yaml.Marshal
	writeFile     = os.WriteFile
	getenv        = os.Getenv
)

// ErrInvalid wraps every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Path resolves the config path: flag first, then LLMHUB_CONFIG, then DefaultPath.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if p := getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Default returns the configuration written by WriteDefault. Load starts from
// it, so keys missing from a file keep these values.
func Default() *domain.Config {
	return &domain.Config{
		Gateway: domain.GatewayConfig{Port: 8080},
		Engine: domain.EngineConfig{
			Provider:    "local",
			Temperature: 0.7,
			MaxTokens:   512,
			NumCtx:      2048,
		},
		Contexts: domain.ContextsConfig{
			TemplateDir:       "templates",
			DefaultTemplate:   "instruct.tmpl",
			DefaultHistory:    2,
			DefaultSummarizer: string(domain.SummarizerNone),
			WatchTemplates:    true,
		},
		Retry: domain.RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 500,
			MaxBackoff:     30000,
			Multiplier:     2,
		},
		Tokenizer: domain.TokenizerConfig{Encoding: "cl100k_base"},
		Infra:     domain.InfraConfig{LogFormat: "text", LogLevel: "info"},
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func encode(path string, cfg *domain.Config) ([]byte, error) {
	if isYAML(path) {
		return marshalYAML(cfg)
	}
	return marshalIndent(cfg, "", "  ")
}

// WriteDefault writes a default Config to path (e.g. llmhub.json). Paths are not created.
func WriteDefault(path string) error {
	data, err := encode(path, Default())
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads path (JSON, or YAML for .yaml/.yml) over the defaults and cleans
// all path fields to mitigate path traversal. Returns error if file is missing or invalid.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	c := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	CleanPaths(c)
	return c, nil
}

// CleanPaths applies filepath.Clean to all path fields in cfg to prevent path traversal.
func CleanPaths(cfg *domain.Config) {
	if cfg == nil {
		return
	}
	cfg.Contexts.TemplateDir = filepath.Clean(cfg.Contexts.TemplateDir)
	if cfg.Contexts.DefaultTemplate != "" {
		cfg.Contexts.DefaultTemplate = filepath.Clean(cfg.Contexts.DefaultTemplate)
	}
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("config save: nil config")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config save mkdir: %w", err)
	}
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("config save marshal: %w", err)
	}
	if err = writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}
