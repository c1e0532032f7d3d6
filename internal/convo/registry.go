package convo

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"llmhub/internal/domain"
	"llmhub/internal/template"
)

// Spec describes a context to create.
type Spec struct {
	Name         string
	Template     string // file name under the template dir; empty uses the default
	History      int    // exchanges kept; 0 keeps none
	SystemPrompt string // empty uses DefaultSystemPrompt
	Summarizer   string // none | extractive | abstractive; unknown falls back to none
	Streaming    bool
}

type constructor func(d deps, spec Spec, tpl *template.File, kind domain.SummarizerKind) Context

// constructors maps each template variant to its context implementation.
var constructors = map[template.Variant]constructor{
	template.VariantInstruct: newInstruct,
	template.VariantStandard: newStandard,
}

// Registry owns the live contexts, keyed by unique name.
type Registry struct {
	deps
	loader          *template.Loader
	defaultTemplate string

	mu       sync.RWMutex
	contexts map[string]Context
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for the registry and its contexts.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithSummarizer sets the summarizer used for stored replies.
func WithSummarizer(s domain.Summarizer) Option {
	return func(r *Registry) { r.summarizer = s }
}

// WithTokenizer enables prompt token counts in context info.
func WithTokenizer(t domain.Tokenizer) Option {
	return func(r *Registry) { r.tokenizer = t }
}

// WithDefaultTemplate sets the template used when a create names none.
func WithDefaultTemplate(name string) Option {
	return func(r *Registry) { r.defaultTemplate = name }
}

// NewRegistry returns an empty registry. engine and loader must not be nil.
func NewRegistry(engine domain.Engine, loader *template.Loader, opts ...Option) *Registry {
	if engine == nil {
		panic("convo: engine must not be nil")
	}
	if loader == nil {
		panic("convo: loader must not be nil")
	}
	r := &Registry{
		deps:     deps{engine: engine},
		loader:   loader,
		contexts: make(map[string]Context),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// Create builds a context from spec. The template's first line picks the
// variant. Nothing is registered on failure.
func (r *Registry) Create(spec Spec) error {
	if err := ValidName(spec.Name); err != nil {
		r.log().Warn("rejected context name", "context", spec.Name)
		return err
	}
	r.mu.RLock()
	_, exists := r.contexts[spec.Name]
	r.mu.RUnlock()
	if exists {
		r.log().Warn("reusing context", "context", spec.Name)
		return fmt.Errorf("%w: %q", ErrDuplicateContext, spec.Name)
	}

	if spec.Template == "" {
		spec.Template = r.defaultTemplate
	}
	if spec.Template == "" {
		r.log().Error("context has no template", "context", spec.Name)
		return fmt.Errorf("%w: %q", ErrNoTemplate, spec.Name)
	}
	tpl, err := r.loader.Load(spec.Template)
	if err != nil {
		r.log().Warn("template load failed", "context", spec.Name, "template", spec.Template, "error", err)
		return err
	}
	build, ok := constructors[tpl.Variant]
	if !ok {
		return fmt.Errorf("%w: %q", template.ErrUnknownVariant, tpl.Variant)
	}

	kind, err := domain.ParseSummarizerKind(spec.Summarizer)
	if err != nil {
		r.log().Warn("unknown summarizer, using none", "context", spec.Name, "error", err)
	}

	c := build(r.deps, spec, tpl, kind)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contexts[spec.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateContext, spec.Name)
	}
	r.contexts[spec.Name] = c
	r.log().Info("created context", "context", spec.Name, "variant", tpl.Variant, "history", spec.History, "summarizer", kind)
	return nil
}

// ValidName rejects names that cannot travel inside a stream frame: empty
// names and names holding the frame delimiter or a line break.
func ValidName(name string) error {
	if name == "" || strings.ContainsAny(name, "|\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Delete removes the named context.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contexts[name]; !ok {
		return r.unknown(name)
	}
	delete(r.contexts, name)
	r.log().Info("deleted context", "context", name)
	return nil
}

// DeleteAll removes every context.
func (r *Registry) DeleteAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.contexts {
		delete(r.contexts, name)
		r.log().Info("deleted context", "context", name)
	}
}

// Get returns the named context.
func (r *Registry) Get(name string) (Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContext, name)
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.contexts))
	for name := range r.contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

func (r *Registry) ClearHistory(name string) error {
	c, err := r.lookup(name)
	if err != nil {
		return err
	}
	c.EraseMemory()
	return nil
}

func (r *Registry) SetSystemPrompt(name, prompt string) error {
	c, err := r.lookup(name)
	if err != nil {
		return err
	}
	c.SetSystemPrompt(prompt)
	return nil
}

// LoadTemplate loads file into the named context. The file must be written
// for the context's variant.
func (r *Registry) LoadTemplate(name, file string) error {
	c, err := r.lookup(name)
	if err != nil {
		return err
	}
	tpl, err := r.loader.Load(file)
	if err != nil {
		r.log().Warn("template load failed", "context", name, "template", file, "error", err)
		return err
	}
	return c.LoadTemplate(tpl)
}

// ReloadTemplateFile reloads file into every context currently using it and
// returns how many were updated.
func (r *Registry) ReloadTemplateFile(file string) int {
	r.mu.RLock()
	var users []Context
	for _, c := range r.contexts {
		if c.TemplateFile() == file {
			users = append(users, c)
		}
	}
	r.mu.RUnlock()
	if len(users) == 0 {
		return 0
	}

	tpl, err := r.loader.Load(file)
	if err != nil {
		r.log().Warn("template reload failed", "template", file, "error", err)
		return 0
	}
	n := 0
	for _, c := range users {
		if err := c.LoadTemplate(tpl); err != nil {
			r.log().Warn("template reload rejected", "context", c.Name(), "template", file, "error", err)
			continue
		}
		n++
	}
	return n
}

func (r *Registry) lookup(name string) (Context, error) {
	c, err := r.Get(name)
	if err != nil {
		r.log().Error("unknown context", "context", name)
	}
	return c, err
}

// unknown runs with r.mu held.
func (r *Registry) unknown(name string) error {
	r.log().Error("unknown context", "context", name)
	return fmt.Errorf("%w: %q", ErrUnknownContext, name)
}
