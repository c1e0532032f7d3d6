package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Core Configuration
// =============================================================================

type Config struct {
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Engine    EngineConfig    `json:"engine" yaml:"engine"`
	Contexts  ContextsConfig  `json:"contexts" yaml:"contexts"`
	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	Tokenizer TokenizerConfig `json:"tokenizer" yaml:"tokenizer"`
	Infra     InfraConfig     `json:"infra" yaml:"infra"`
}

type GatewayConfig struct {
	Port int    `json:"port" yaml:"port"`
	Bind string `json:"bind,omitempty" yaml:"bind,omitempty"` // Host to listen on; empty = all interfaces
}

// EngineConfig selects and parameterizes the inference engine.
type EngineConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // "local" | "ollama" | "openai"
	Model       string  `json:"model" yaml:"model"`
	BaseURL     string  `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	APIKey      string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty"` // Falls back to OPENAI_API_KEY
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"maxTokens" yaml:"maxTokens"`
	NumCtx      int     `json:"numCtx" yaml:"numCtx"`
}

type ContextsConfig struct {
	TemplateDir       string `json:"templateDir" yaml:"templateDir"`
	DefaultTemplate   string `json:"defaultTemplate" yaml:"defaultTemplate"`
	DefaultHistory    int    `json:"defaultHistory" yaml:"defaultHistory"`
	DefaultSummarizer string `json:"defaultSummarizer" yaml:"defaultSummarizer"`
	WatchTemplates    bool   `json:"watchTemplates" yaml:"watchTemplates"`
}

// RetryConfig controls retry behaviour for engine calls that fail before streaming starts.
type RetryConfig struct {
	MaxRetries     int `json:"maxRetries" yaml:"maxRetries"`         // Maximum retry attempts (0 = no retries)
	InitialBackoff int `json:"initialBackoff" yaml:"initialBackoff"` // Initial backoff in milliseconds
	MaxBackoff     int `json:"maxBackoff" yaml:"maxBackoff"`         // Maximum backoff in milliseconds
	Multiplier     int `json:"multiplier" yaml:"multiplier"`         // Backoff multiplier (e.g. 2 for exponential doubling)
}

type TokenizerConfig struct {
	Encoding string `json:"encoding" yaml:"encoding"` // e.g. "cl100k_base"; empty disables token counting
}

type InfraConfig struct {
	LogFormat string `json:"logFormat" yaml:"logFormat"` // "json" | "text"
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
}

// =============================================================================
// Conversation Domain
// =============================================================================

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message kept in a context's history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Directive is one submitted prompt destined for one context. It is consumed
// exactly once by the dispatcher.
type Directive struct {
	ResponseID  string `json:"response_id"`
	ContextName string `json:"context_name"`
	Message     string `json:"msg"`
}

// Result is the outcome of one predict call. Full is always the raw reply;
// Summarized is what went into history.
type Result struct {
	ResponseID  string `json:"response_id"`
	ContextName string `json:"context_name"`
	Full        string `json:"full"`
	Summarized  string `json:"summarized"`
}

type SummarizerKind string

const (
	SummarizerNone        SummarizerKind = "none"
	SummarizerExtractive  SummarizerKind = "extractive"
	SummarizerAbstractive SummarizerKind = "abstractive"
)

// ParseSummarizerKind maps a wire value to a kind. The empty string is none;
// anything else unrecognized is reported so the caller can warn and fall back.
func ParseSummarizerKind(s string) (SummarizerKind, error) {
	switch k := SummarizerKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SummarizerNone, nil
	case SummarizerNone, SummarizerExtractive, SummarizerAbstractive:
		return k, nil
	default:
		return SummarizerNone, fmt.Errorf("unknown summarizer type %q", s)
	}
}

// ModelInfo describes the engine behind the dispatcher (GET /llm/info).
type ModelInfo struct {
	Model       string  `json:"model"`
	ModelType   string  `json:"model_type"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	NumCtx      int     `json:"n_ctx,omitempty"`
}

// ContextInfo is the administrative view of a context (GET /context/info/{name}).
type ContextInfo struct {
	ContextType    string         `json:"context_type"`
	SummarizerType SummarizerKind `json:"summarizer_type"`
	StreamerType   string         `json:"streamer_type"`
	SystemPrompt   string         `json:"system_prompt"`
	TemplateFile   string         `json:"template_file"`
	HistoryCount   int            `json:"history_count"`
	PromptTokens   int            `json:"prompt_tokens"`
}
