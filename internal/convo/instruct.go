package convo

import (
	"context"

	"llmhub/internal/domain"
	"llmhub/internal/template"
)

// Instruct renders an explicit message list (system, history, user, empty
// assistant) through the template's message loop.
type Instruct struct {
	base
}

func newInstruct(d deps, spec Spec, tpl *template.File, kind domain.SummarizerKind) Context {
	c := &Instruct{}
	c.init(d, spec, tpl, kind)
	return c
}

func (c *Instruct) Variant() template.Variant { return template.VariantInstruct }

// Messages builds the list the template iterates. The system message is
// omitted when the prompt is empty.
func Messages(systemPrompt string, history []domain.Turn, message string) []domain.Turn {
	msgs := make([]domain.Turn, 0, len(history)+3)
	if systemPrompt != "" {
		msgs = append(msgs, domain.Turn{Role: domain.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, history...)
	return append(msgs,
		domain.Turn{Role: domain.RoleUser, Content: message},
		domain.Turn{Role: domain.RoleAssistant, Content: ""},
	)
}

func (c *Instruct) Predict(ctx context.Context, responseID, message string) (domain.Result, error) {
	return c.predict(ctx, responseID, message, func(s snapshot) (string, error) {
		return s.tpl.RenderMessages(Messages(s.systemPrompt, s.history, message))
	}, nil)
}

func (c *Instruct) EraseMemory() { c.eraseHistory() }

func (c *Instruct) LoadTemplate(f *template.File) error {
	return c.swapTemplate(f, template.VariantInstruct)
}

func (c *Instruct) Info() domain.ContextInfo { return c.info(template.VariantInstruct) }
