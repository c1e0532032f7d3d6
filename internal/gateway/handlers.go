package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"llmhub/internal/convo"
	"llmhub/internal/dispatch"
	"llmhub/internal/domain"
	"llmhub/internal/template"
)

// ReturnData is the body of every JSON reply, errors included.
type ReturnData struct {
	Name   string `json:"name"`
	Detail any    `json:"detail"`
}

// ContextSpec is the body of create, template and prompt requests. History
// is a pointer so an omitted value picks the configured default.
type ContextSpec struct {
	Template       string `json:"template"`
	History        *int   `json:"history,omitempty"`
	SystemPrompt   string `json:"system_prompt"`
	SummarizerType string `json:"summerizer_type"`
}

// Predict is the body of a directive submission.
type Predict struct {
	Msg string `json:"msg"`
}

// API binds the registry and dispatcher to HTTP routes.
type API struct {
	registry   *convo.Registry
	dispatcher *dispatch.Dispatcher
	defaults   domain.ContextsConfig
	logger     *slog.Logger
}

// APIOption configures an API.
type APIOption func(*API)

// WithAPILogger sets the logger used for handler errors.
func WithAPILogger(l *slog.Logger) APIOption {
	return func(a *API) { a.logger = l }
}

// NewAPI returns the route set. defaults supply history and summarizer for
// create requests that omit them.
func NewAPI(registry *convo.Registry, dispatcher *dispatch.Dispatcher, defaults domain.ContextsConfig, opts ...APIOption) *API {
	a := &API{registry: registry, dispatcher: dispatcher, defaults: defaults}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

// Register installs every route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /llm/restart", a.restart)
	mux.HandleFunc("POST /llm/shutdown", a.shutdown)
	mux.HandleFunc("GET /llm/list", a.list)
	mux.HandleFunc("GET /llm/info", a.modelInfo)

	mux.HandleFunc("POST /context/{name}", a.createContext)
	mux.HandleFunc("DELETE /context/{name}", a.deleteContext)
	mux.HandleFunc("PUT /context/{name}", a.submit)
	mux.HandleFunc("GET /context/{name}", a.stream)
	mux.HandleFunc("GET /context/info/{name}", a.contextInfo)
	mux.HandleFunc("PUT /context/template/{name}", a.loadTemplate)
	mux.HandleFunc("GET /context/template/{name}", a.getTemplate)
	mux.HandleFunc("PUT /context/prompt/{name}", a.setPrompt)
	mux.HandleFunc("PATCH /context/history/{name}", a.clearHistory)
	mux.HandleFunc("GET /context/history/{name}", a.history)

	mux.HandleFunc("GET /ws/context/{name}", a.streamWS)
}

// =============================================================================
// LLM routes
// =============================================================================

func (a *API) restart(w http.ResponseWriter, r *http.Request) {
	a.dispatcher.Restart()
	writeJSON(w, http.StatusOK, ReturnData{Name: "llm", Detail: "LLM restarted"})
}

func (a *API) shutdown(w http.ResponseWriter, r *http.Request) {
	a.dispatcher.Shutdown()
	writeJSON(w, http.StatusOK, ReturnData{Name: "llm", Detail: "LLM shutdown"})
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ReturnData{Name: "llm", Detail: a.registry.Names()})
}

func (a *API) modelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ReturnData{Name: "llm", Detail: a.dispatcher.ModelInfo()})
}

// =============================================================================
// Context routes
// =============================================================================

func (a *API) createContext(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var spec ContextSpec
	if !decodeBody(w, r, name, &spec) {
		return
	}
	history := a.defaults.DefaultHistory
	if spec.History != nil {
		history = *spec.History
	}
	summarizer := spec.SummarizerType
	if summarizer == "" {
		summarizer = a.defaults.DefaultSummarizer
	}
	err := a.registry.Create(convo.Spec{
		Name:         name,
		Template:     spec.Template,
		History:      history,
		SystemPrompt: spec.SystemPrompt,
		Summarizer:   summarizer,
		Streaming:    true,
	})
	switch {
	case errors.Is(err, convo.ErrDuplicateContext):
		a.fail(w, name, fmt.Sprintf("Reusing context '%s'", name), err)
	case err != nil:
		a.fail(w, name, fmt.Sprintf("Context '%s' not created: %v", name, err), err)
	default:
		writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: fmt.Sprintf("Context '%s' created with history of %d", name, history)})
	}
}

func (a *API) deleteContext(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := a.registry.Delete(name); err != nil {
		a.fail(w, name, fmt.Sprintf("Context '%s' does not exist", name), err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: fmt.Sprintf("Context '%s' deleted", name)})
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var p Predict
	if !decodeBody(w, r, name, &p) {
		return
	}
	id, err := a.dispatcher.Submit(name, p.Msg)
	if err != nil {
		a.fail(w, name, fmt.Sprintf("Context '%s' does not exist", name), err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: id})
}

func (a *API) contextInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	c, err := a.registry.Get(name)
	if err != nil {
		a.fail(w, name, fmt.Sprintf("Context '%s' info does not exist", name), err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: c.Info()})
}

func (a *API) loadTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var spec ContextSpec
	if !decodeBody(w, r, name, &spec) {
		return
	}
	if err := a.registry.LoadTemplate(name, spec.Template); err != nil {
		a.fail(w, name, fmt.Sprintf("Context '%s' and/or template %s do not exist: %v", name, spec.Template, err), err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: fmt.Sprintf("Context '%s' template loaded", name)})
}

func (a *API) getTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	c, err := a.registry.Get(name)
	if err != nil {
		a.fail(w, name, fmt.Sprintf("Template for context '%s' has not been loaded or rendered.", name), err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: c.TemplateView()})
}

func (a *API) setPrompt(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var spec ContextSpec
	if !decodeBody(w, r, name, &spec) {
		return
	}
	if err := a.registry.SetSystemPrompt(name, spec.SystemPrompt); err != nil {
		a.fail(w, name, fmt.Sprintf("Context '%s' does not exist", name), err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: fmt.Sprintf("System prompt in context '%s' set.", name)})
}

func (a *API) clearHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := a.registry.ClearHistory(name); err != nil {
		a.fail(w, name, fmt.Sprintf("Context '%s' does not exist", name), err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: fmt.Sprintf("Context '%s' history cleared", name)})
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	c, err := a.registry.Get(name)
	if err != nil {
		a.fail(w, name, fmt.Sprintf("Context '%s' does not exist", name), err)
		return
	}
	turns := c.History()
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, ReturnData{Name: name, Detail: turns})
}

// =============================================================================
// Helpers
// =============================================================================

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, convo.ErrUnknownContext),
		errors.Is(err, convo.ErrDuplicateContext),
		errors.Is(err, convo.ErrNoTemplate),
		errors.Is(err, convo.ErrVariantMismatch),
		errors.Is(err, convo.ErrInvalidName),
		errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, template.ErrUnknownVariant),
		errors.Is(err, template.ErrInvalidTemplate),
		errors.Is(err, dispatch.ErrStopped):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, name, detail string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		a.log().Error("request failed", "context", name, "error", err)
	}
	writeJSON(w, status, ReturnData{Name: name, Detail: detail})
}

// decodeBody reads a JSON body into v. An empty body leaves v zeroed.
func decodeBody(w http.ResponseWriter, r *http.Request, name string, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ReturnData{Name: name, Detail: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
