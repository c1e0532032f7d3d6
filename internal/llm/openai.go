package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"llmhub/internal/domain"
)

const defaultOpenAIURL = "https://api.openai.com/v1"

// OpenAIEngine calls an OpenAI-compatible completions endpoint. Contexts
// render the full prompt themselves, so the raw completions API is used
// rather than chat. With callbacks the response is read as an SSE stream.
type OpenAIEngine struct {
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	baseURL     string
	marshalFunc func(v interface{}) ([]byte, error) // for testing
}

// NewOpenAIEngine returns an OpenAI-backed Engine.
func NewOpenAIEngine(cfg domain.EngineConfig) *OpenAIEngine {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIURL
	}
	return &OpenAIEngine{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{},
		baseURL:     base,
		marshalFunc: json.Marshal,
	}
}

type openAIRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Info implements domain.Engine.
func (p *OpenAIEngine) Info() domain.ModelInfo {
	return domain.ModelInfo{
		Model:       p.model,
		ModelType:   "openai",
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
}

// Invoke implements domain.Engine.
func (p *OpenAIEngine) Invoke(ctx context.Context, prompt string, cb domain.StreamCallbacks) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body := openAIRequest{
		Model:       p.model,
		Prompt:      prompt,
		Stream:      cb != nil,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
	raw, err := p.marshalFunc(body)
	if err != nil {
		return "", fmt.Errorf("openai marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/completions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai api: %s", resp.Status)
	}

	if cb == nil {
		var out openAIResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("openai decode: %w", err)
		}
		if len(out.Choices) == 0 {
			return "", fmt.Errorf("openai: no choices in response")
		}
		return out.Choices[0].Text, nil
	}

	cb.OnStart()
	var full strings.Builder
	scanner := newSSEScanner(resp.Body)
	for scanner.Next() {
		data := scanner.Data()
		if data == "[DONE]" {
			break
		}
		var chunk openAIResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), fmt.Errorf("openai decode: %w", err)
		}
		if chunk.Error != nil {
			return full.String(), fmt.Errorf("openai: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Text == "" {
			continue
		}
		full.WriteString(chunk.Choices[0].Text)
		cb.OnToken(chunk.Choices[0].Text)
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("openai stream: %w", err)
	}
	cb.OnEnd(full.String())
	return full.String(), nil
}

var _ domain.Engine = (*OpenAIEngine)(nil)
