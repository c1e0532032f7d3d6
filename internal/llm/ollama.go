package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"llmhub/internal/domain"
)

// JSONMarshaller interface for testing
type JSONMarshaller interface {
	Marshal(v interface{}) ([]byte, error)
}

// defaultMarshaller uses json.Marshal
type defaultMarshaller struct{}

func (m *defaultMarshaller) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

const defaultOllamaURL = "http://localhost:11434/api"

// OllamaEngine calls the Ollama generate API. With callbacks it streams the
// NDJSON response and forwards each delta as a token.
type OllamaEngine struct {
	model       string
	temperature float64
	maxTokens   int
	numCtx      int
	client      *http.Client
	baseURL     string
	marshaller  JSONMarshaller
}

// NewOllamaEngine returns an Ollama-backed Engine. An empty baseURL uses the
// local default.
func NewOllamaEngine(cfg domain.EngineConfig) *OllamaEngine {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOllamaURL
	}
	return &OllamaEngine{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		numCtx:      cfg.NumCtx,
		client:      &http.Client{},
		baseURL:     base,
		marshaller:  &defaultMarshaller{},
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Raw     bool          `json:"raw"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Info implements domain.Engine.
func (p *OllamaEngine) Info() domain.ModelInfo {
	return domain.ModelInfo{
		Model:       p.model,
		ModelType:   "ollama",
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		NumCtx:      p.numCtx,
	}
}

// Invoke implements domain.Engine.
func (p *OllamaEngine) Invoke(ctx context.Context, prompt string, cb domain.StreamCallbacks) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body := ollamaRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: cb != nil,
		Raw:    true, // prompt is already rendered by the context template
		Options: ollamaOptions{
			Temperature: p.temperature,
			NumPredict:  p.maxTokens,
			NumCtx:      p.numCtx,
		},
	}

	raw, err := p.marshaller.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("ollama marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/generate", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama api: %s", resp.Status)
	}

	if cb == nil {
		var out ollamaResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("ollama decode: %w", err)
		}
		if out.Error != "" {
			return "", fmt.Errorf("ollama: %s", out.Error)
		}
		return out.Response, nil
	}

	var full strings.Builder
	started := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return full.String(), fmt.Errorf("ollama decode: %w", err)
		}
		if chunk.Error != "" {
			return full.String(), fmt.Errorf("ollama: %s", chunk.Error)
		}
		if !started {
			cb.OnStart()
			started = true
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			cb.OnToken(chunk.Response)
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("ollama stream: %w", err)
	}
	if !started {
		cb.OnStart()
	}
	cb.OnEnd(full.String())
	return full.String(), nil
}

// Ensure OllamaEngine implements domain.Engine at compile time.
var _ domain.Engine = (*OllamaEngine)(nil)
