// Package template loads prompt templates and renders them.
//
// A template file starts with one line naming the context variant it is
// written for; the remainder is the body. Instruct bodies are Jinja-style
// templates iterated over the message list; standard bodies carry a {system}
// placeholder plus {history} and {input}.
package template

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flosch/pongo2/v6"

	"llmhub/internal/domain"
)

var (
	// ErrTemplateNotFound is returned when a template file cannot be resolved.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrUnknownVariant is returned when a template's first line names no known variant.
	ErrUnknownVariant = errors.New("unknown context variant")

	// ErrInvalidTemplate is returned when an instruct body does not compile.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Variant selects the concrete context behavior a template is written for.
type Variant string

const (
	VariantInstruct Variant = "instruct"
	VariantStandard Variant = "standard"
)

// variants maps discriminators to variants. The class-style names are what
// older template files carry.
var variants = map[string]Variant{
	"instruct":        VariantInstruct,
	"ContextInstruct": VariantInstruct,
	"standard":        VariantStandard,
	"ContextStandard": VariantStandard,
}

// ParseVariant resolves a discriminator line.
func ParseVariant(s string) (Variant, error) {
	if v, ok := variants[strings.TrimSpace(s)]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, strings.TrimSpace(s))
}

// File is a parsed template file.
type File struct {
	Name    string
	Variant Variant
	Body    string

	compiled *pongo2.Template
}

// Parse splits data into discriminator and body. Instruct bodies are compiled
// so syntax errors surface at load time.
func Parse(name string, data []byte) (*File, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	first, body, _ := strings.Cut(text, "\n")
	v, err := ParseVariant(first)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	f := &File{Name: name, Variant: v, Body: body}
	if v == VariantInstruct {
		tpl, err := pongo2.FromString("{% autoescape off %}" + body + "{% endautoescape %}")
		if err != nil {
			return nil, fmt.Errorf("template %s: %w: %v", name, ErrInvalidTemplate, err)
		}
		f.compiled = tpl
	}
	return f, nil
}

// RenderMessages renders an instruct body over messages. Each message is
// exposed as {role, content}.
func (f *File) RenderMessages(messages []domain.Turn) (string, error) {
	if f.compiled == nil {
		return "", fmt.Errorf("template %s: %s bodies do not iterate messages", f.Name, f.Variant)
	}
	list := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		list = append(list, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	out, err := f.compiled.Execute(pongo2.Context{"messages": list})
	if err != nil {
		return "", fmt.Errorf("template %s: render: %w", f.Name, err)
	}
	return out, nil
}

// Substitute replaces {name} placeholders in body. Placeholders without a
// value are left untouched.
func Substitute(body string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// Loader resolves template names against a directory.
type Loader struct {
	dir string
}

// NewLoader returns a loader rooted at dir.
func NewLoader(dir string) *Loader {
	if dir == "" {
		dir = "."
	}
	return &Loader{dir: dir}
}

// Dir returns the template directory.
func (l *Loader) Dir() string { return l.dir }

// Load reads and parses the named template. Names must stay inside the
// loader's directory.
func (l *Loader) Load(name string) (*File, error) {
	if name == "" || !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return Parse(name, data)
}

// Variant reads only the discriminator of the named template.
func (l *Loader) Variant(name string) (Variant, error) {
	f, err := l.Load(name)
	if err != nil {
		return "", err
	}
	return f.Variant, nil
}
