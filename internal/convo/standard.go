package convo

import (
	"context"
	"strings"

	"llmhub/internal/domain"
	"llmhub/internal/template"
)

// Standard substitutes {system}, {history} and {input} into a freeform body.
// It keeps its own window of raw, unsummarized turns for {history}; the
// summarized history is only for display.
type Standard struct {
	base

	// window is guarded by base.mu.
	window []domain.Turn
}

func newStandard(d deps, spec Spec, tpl *template.File, kind domain.SummarizerKind) Context {
	c := &Standard{}
	c.init(d, spec, tpl, kind)
	return c
}

func (c *Standard) Variant() template.Variant { return template.VariantStandard }

// FormatWindow renders raw turns the way conversational prompts expect them.
func FormatWindow(turns []domain.Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch t.Role {
		case domain.RoleUser:
			sb.WriteString("Human: ")
		case domain.RoleAssistant:
			sb.WriteString("AI: ")
		default:
			sb.WriteString("System: ")
		}
		sb.WriteString(t.Content)
	}
	return sb.String()
}

func (c *Standard) Predict(ctx context.Context, responseID, message string) (domain.Result, error) {
	return c.predict(ctx, responseID, message, func(s snapshot) (string, error) {
		c.mu.Lock()
		window := FormatWindow(c.window)
		c.mu.Unlock()
		return template.Substitute(s.tpl.Body, map[string]string{
			"system":  s.systemPrompt,
			"history": window,
			"input":   message,
		}), nil
	}, c.remember)
}

// remember runs under base.mu.
func (c *Standard) remember(message, reply string) {
	limit := 2 * c.capacity
	c.window = append(c.window,
		domain.Turn{Role: domain.RoleUser, Content: message},
		domain.Turn{Role: domain.RoleAssistant, Content: reply},
	)
	if len(c.window) > limit {
		c.window = append([]domain.Turn(nil), c.window[len(c.window)-limit:]...)
	}
}

// Window returns a copy of the raw turns fed into {history}.
func (c *Standard) Window() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Turn(nil), c.window...)
}

func (c *Standard) EraseMemory() {
	c.mu.Lock()
	c.window = nil
	c.mu.Unlock()
	c.eraseHistory()
}

func (c *Standard) LoadTemplate(f *template.File) error {
	return c.swapTemplate(f, template.VariantStandard)
}

func (c *Standard) Info() domain.ContextInfo { return c.info(template.VariantStandard) }
