// Package convo holds the named conversation contexts that share the engine:
// their history, system prompt, template and streamer.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"llmhub/internal/domain"
	"llmhub/internal/stream"
	"llmhub/internal/template"
)

// DefaultSystemPrompt is used when a context is created without one.
const DefaultSystemPrompt = "Act as friendly and polite chatbot that answers questions."

var (
	ErrUnknownContext   = errors.New("unknown context")
	ErrDuplicateContext = errors.New("context already exists")
	ErrNoTemplate       = errors.New("context has no template")
	ErrVariantMismatch  = errors.New("template variant does not match context")
	ErrInvalidName      = errors.New("invalid context name")
)

// Context is one named conversation. Predict is only called by the
// dispatcher; the remaining methods are safe from any goroutine.
type Context interface {
	Name() string
	Variant() template.Variant
	Predict(ctx context.Context, responseID, message string) (domain.Result, error)
	EraseMemory()
	LoadTemplate(f *template.File) error
	TemplateFile() string
	TemplateView() string
	SystemPrompt() string
	SetSystemPrompt(prompt string)
	History() []domain.Turn
	Info() domain.ContextInfo
	// Streamer returns nil when streaming is disabled.
	Streamer() *stream.Streamer
}

// deps are the collaborators every context shares.
type deps struct {
	engine     domain.Engine
	summarizer domain.Summarizer
	tokenizer  domain.Tokenizer
	logger     *slog.Logger
}

// base carries the bookkeeping both variants share.
type base struct {
	deps
	name     string
	capacity int
	kind     domain.SummarizerKind
	streamer *stream.Streamer

	mu           sync.Mutex
	tpl          *template.File
	systemPrompt string
	history      []domain.Turn
	rendered     string
}

func (b *base) init(d deps, spec Spec, tpl *template.File, kind domain.SummarizerKind) {
	b.deps = d
	b.name = spec.Name
	b.capacity = max(spec.History, 0)
	b.kind = kind
	b.tpl = tpl
	b.systemPrompt = spec.SystemPrompt
	if b.systemPrompt == "" {
		b.systemPrompt = DefaultSystemPrompt
	}
	if spec.Streaming {
		b.streamer = stream.NewStreamer(spec.Name)
	}
}

func (b *base) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

func (b *base) Name() string               { return b.name }
func (b *base) Streamer() *stream.Streamer { return b.streamer }

func (b *base) TemplateFile() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tpl.Name
}

// TemplateView returns "<file>|<text>", where text is the last rendered
// prompt or, before the first predict, the raw body.
func (b *base) TemplateView() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	text := b.rendered
	if text == "" {
		text = b.tpl.Body
	}
	return b.tpl.Name + "|" + text
}

func (b *base) SystemPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.systemPrompt
}

func (b *base) SetSystemPrompt(prompt string) {
	b.mu.Lock()
	b.systemPrompt = prompt
	b.mu.Unlock()
	b.log().Info("set system prompt", "context", b.name)
}

// History returns a copy of the stored turns, oldest first.
func (b *base) History() []domain.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Turn(nil), b.history...)
}

func (b *base) eraseHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// swapTemplate installs f if it is written for variant v.
func (b *base) swapTemplate(f *template.File, v template.Variant) error {
	if f == nil {
		return ErrNoTemplate
	}
	if f.Variant != v {
		return fmt.Errorf("%w: %s is %s, context %s is %s", ErrVariantMismatch, f.Name, f.Variant, b.name, v)
	}
	b.mu.Lock()
	b.tpl = f
	b.rendered = ""
	b.mu.Unlock()
	b.log().Info("loaded template", "context", b.name, "template", f.Name, "variant", v)
	return nil
}

func (b *base) info(v template.Variant) domain.ContextInfo {
	b.mu.Lock()
	prompt := b.rendered
	if prompt == "" {
		prompt = b.tpl.Body
	}
	info := domain.ContextInfo{
		ContextType:    string(v),
		SummarizerType: b.kind,
		StreamerType:   "none",
		SystemPrompt:   b.systemPrompt,
		TemplateFile:   b.tpl.Name,
		HistoryCount:   b.capacity,
	}
	b.mu.Unlock()
	if b.streamer != nil {
		info.StreamerType = "queue"
	}
	if b.tokenizer != nil {
		if n, err := b.tokenizer.CountTokens(prompt); err == nil {
			info.PromptTokens = n
		}
	}
	return info
}

// snapshot is the state a variant renders from. It is copied under the lock
// so administrative calls never wait on inference.
type snapshot struct {
	tpl          *template.File
	systemPrompt string
	history      []domain.Turn
}

func (b *base) snapshot() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshot{
		tpl:          b.tpl,
		systemPrompt: b.systemPrompt,
		history:      append([]domain.Turn(nil), b.history...),
	}
}

// predict runs one directive: render, invoke the engine with the streamer
// bound, summarize, then append the exchange. The engine's OnEnd closes the
// stream window before summarization starts. after runs under the lock with
// the raw reply once the exchange is stored.
func (b *base) predict(ctx context.Context, responseID, message string,
	render func(snapshot) (string, error), after func(message, reply string)) (domain.Result, error) {

	res := domain.Result{ResponseID: responseID, ContextName: b.name}

	var cb domain.StreamCallbacks
	if b.streamer != nil {
		b.streamer.Bind(responseID)
		cb = b.streamer
		// closes the window when render or the engine failed
		defer b.streamer.Abort()
	}

	prompt, err := render(b.snapshot())
	if err != nil {
		return res, err
	}
	b.mu.Lock()
	b.rendered = prompt
	b.mu.Unlock()
	b.log().Debug("rendered prompt", "context", b.name, "response_id", responseID, "prompt", prompt)

	reply, err := b.engine.Invoke(ctx, prompt, cb)
	if err != nil {
		return res, fmt.Errorf("context %s: engine: %w", b.name, err)
	}
	if b.streamer != nil {
		b.streamer.Abort()
	}
	res.Full = strings.TrimSpace(reply)
	res.Summarized = res.Full

	if b.capacity == 0 {
		return res, nil
	}

	summarized := res.Full
	if b.summarizer != nil && b.kind != domain.SummarizerNone {
		s, err := b.summarizer.Summarize(ctx, b.kind, res.Full)
		if err != nil {
			b.log().Warn("summarizer failed, storing full reply", "context", b.name, "kind", b.kind, "error", err)
		} else {
			summarized = s
		}
	}
	res.Summarized = summarized

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) >= 2*b.capacity {
		b.history = b.history[2:]
	}
	b.history = append(b.history,
		domain.Turn{Role: domain.RoleUser, Content: message},
		domain.Turn{Role: domain.RoleAssistant, Content: summarized},
	)
	if after != nil {
		after(message, res.Full)
	}
	return res, nil
}
