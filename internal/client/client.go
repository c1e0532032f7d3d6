// Package client talks to a running hub over HTTP: administrative calls plus
// a word stream that follows one response through the shared context stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"llmhub/internal/domain"
)

// ErrRejected is returned when the hub answers a call with a non-success status.
var ErrRejected = errors.New("request rejected")

// Status mirrors a hub reply: OK is true for 200 and 422, which both carry a
// readable detail.
type Status struct {
	OK     bool
	Code   int
	Name   string
	Detail json.RawMessage
}

// Text returns the detail as a string when it is one, otherwise its JSON.
func (s Status) Text() string {
	var str string
	if err := json.Unmarshal(s.Detail, &str); err == nil {
		return str
	}
	return string(s.Detail)
}

// Decode unmarshals the detail into v.
func (s Status) Decode(v any) error {
	return json.Unmarshal(s.Detail, v)
}

// Success reports a 200 reply.
func (s Status) Success() bool { return s.Code == http.StatusOK }

// Option configures a client.
type Option func(*transport)

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) { t.http = c }
}

// WithChunkSize sets the read size of response streams.
func WithChunkSize(n int) Option {
	return func(t *transport) { t.chunkSize = n }
}

// WithMaxReopens bounds how often a word stream re-attaches after the hub
// closed it before the tracked response ended.
func WithMaxReopens(n int) Option {
	return func(t *transport) { t.maxReopens = n }
}

type transport struct {
	base       string
	http       *http.Client
	chunkSize  int
	maxReopens int
}

func newTransport(baseURL string, opts []Option) *transport {
	t := &transport{
		base:       strings.TrimRight(baseURL, "/"),
		http:       http.DefaultClient,
		maxReopens: 8,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *transport) call(ctx context.Context, method, path string, body any) (Status, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Status{}, fmt.Errorf("client marshal: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, rd)
	if err != nil {
		return Status{}, fmt.Errorf("client request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("client do: %w", err)
	}
	defer resp.Body.Close()

	st := Status{
		OK:   resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusUnprocessableEntity,
		Code: resp.StatusCode,
	}
	var out struct {
		Name   string          `json:"name"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return st, fmt.Errorf("client decode (%s): %w", resp.Status, err)
	}
	st.Name, st.Detail = out.Name, out.Detail
	return st, nil
}

// detail runs a call and decodes a 200 detail into v.
func (t *transport) detail(ctx context.Context, method, path string, v any) error {
	st, err := t.call(ctx, method, path, nil)
	if err != nil {
		return err
	}
	if !st.Success() {
		return fmt.Errorf("%w: %d %s", ErrRejected, st.Code, st.Text())
	}
	return st.Decode(v)
}

// =============================================================================
// LLMClient
// =============================================================================

// LLMClient drives the /llm routes.
type LLMClient struct {
	t *transport
}

// NewLLMClient returns a client for the hub at baseURL (e.g. http://localhost:8080).
func NewLLMClient(baseURL string, opts ...Option) *LLMClient {
	return &LLMClient{t: newTransport(baseURL, opts)}
}

func (c *LLMClient) Restart(ctx context.Context) (Status, error) {
	return c.t.call(ctx, http.MethodPost, "/llm/restart", nil)
}

func (c *LLMClient) Shutdown(ctx context.Context) (Status, error) {
	return c.t.call(ctx, http.MethodPost, "/llm/shutdown", nil)
}

// Names lists the live contexts.
func (c *LLMClient) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := c.t.detail(ctx, http.MethodGet, "/llm/list", &names)
	return names, err
}

func (c *LLMClient) ModelInfo(ctx context.Context) (domain.ModelInfo, error) {
	var info domain.ModelInfo
	err := c.t.detail(ctx, http.MethodGet, "/llm/info", &info)
	return info, err
}

// =============================================================================
// ContextClient
// =============================================================================

// CreateOptions are the parameters of a new context. Empty strings and a
// negative History let the hub pick its defaults.
type CreateOptions struct {
	Template     string
	History      int
	SystemPrompt string
	Summarizer   string
}

// ContextClient drives the /context routes for one named context.
type ContextClient struct {
	name string
	t    *transport

	mu           sync.Mutex
	lastTemplate string
}

// NewContextClient returns a client for context name at baseURL.
func NewContextClient(name, baseURL string, opts ...Option) *ContextClient {
	return &ContextClient{name: name, t: newTransport(baseURL, opts)}
}

func (c *ContextClient) Name() string { return c.name }

func (c *ContextClient) path(prefix string) string {
	return "/context/" + prefix + url.PathEscape(c.name)
}

// Create creates the context and records the template it ended up with.
func (c *ContextClient) Create(ctx context.Context, o CreateOptions) (Status, error) {
	body := map[string]any{}
	if o.Template != "" {
		body["template"] = o.Template
	}
	if o.History >= 0 {
		body["history"] = o.History
	}
	if o.SystemPrompt != "" {
		body["system_prompt"] = o.SystemPrompt
	}
	if o.Summarizer != "" {
		body["summerizer_type"] = o.Summarizer
	}
	st, err := c.t.call(ctx, http.MethodPost, c.path(""), body)
	if err != nil || !st.Success() {
		return st, err
	}
	if _, err := c.Template(ctx); err != nil {
		return st, err
	}
	return st, nil
}

func (c *ContextClient) Delete(ctx context.Context) (Status, error) {
	return c.t.call(ctx, http.MethodDelete, c.path(""), nil)
}

// Clear erases the context's history.
func (c *ContextClient) Clear(ctx context.Context) (Status, error) {
	return c.t.call(ctx, http.MethodPatch, c.path("history/"), nil)
}

func (c *ContextClient) History(ctx context.Context) ([]domain.Turn, error) {
	var turns []domain.Turn
	err := c.t.detail(ctx, http.MethodGet, c.path("history/"), &turns)
	return turns, err
}

func (c *ContextClient) Info(ctx context.Context) (domain.ContextInfo, error) {
	var info domain.ContextInfo
	err := c.t.detail(ctx, http.MethodGet, c.path("info/"), &info)
	return info, err
}

func (c *ContextClient) SetSystemPrompt(ctx context.Context, prompt string) (Status, error) {
	return c.t.call(ctx, http.MethodPut, c.path("prompt/"), map[string]string{"system_prompt": prompt})
}

func (c *ContextClient) LoadTemplate(ctx context.Context, file string) (Status, error) {
	st, err := c.t.call(ctx, http.MethodPut, c.path("template/"), map[string]string{"template": file})
	if err == nil && st.Success() {
		c.setLastTemplate(file)
	}
	return st, err
}

// Template returns the "<file>|<text>" view of the context's template.
func (c *ContextClient) Template(ctx context.Context) (string, error) {
	var view string
	if err := c.t.detail(ctx, http.MethodGet, c.path("template/"), &view); err != nil {
		return "", err
	}
	file, _, _ := strings.Cut(view, "|")
	c.setLastTemplate(file)
	return view, nil
}

// LastLoadedTemplate is the template file last seen on the hub.
func (c *ContextClient) LastLoadedTemplate() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTemplate
}

func (c *ContextClient) setLastTemplate(file string) {
	c.mu.Lock()
	c.lastTemplate = file
	c.mu.Unlock()
}

// Submit queues msg and returns its response id.
func (c *ContextClient) Submit(ctx context.Context, msg string) (string, error) {
	st, err := c.t.call(ctx, http.MethodPut, c.path(""), map[string]string{"msg": msg})
	if err != nil {
		return "", err
	}
	if !st.Success() {
		return "", fmt.Errorf("%w: %d %s", ErrRejected, st.Code, st.Text())
	}
	return st.Text(), nil
}

// SubmitAndStream queues msg and returns the stream of its reply words.
func (c *ContextClient) SubmitAndStream(ctx context.Context, msg string) (*WordStream, string, error) {
	id, err := c.Submit(ctx, msg)
	if err != nil {
		return nil, "", err
	}
	return c.Stream(ctx, id), id, nil
}

// Stream follows responseID on the context stream. Nothing is read until
// the first call to Next.
func (c *ContextClient) Stream(ctx context.Context, responseID string) *WordStream {
	return &WordStream{ctx: ctx, c: c, id: responseID}
}
