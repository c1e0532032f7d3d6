package llm

import (
	"context"
	"strings"
	"unicode"

	"llmhub/internal/domain"
)

// Splitter breaks a reply into the token deltas a streaming engine would emit.
type Splitter func(text string) []string

// maxPieceRunes bounds the size of one synthetic token from SplitWords.
const maxPieceRunes = 4

// SplitWords cuts text into whitespace-led pieces of at most four runes so the
// local engine exercises word coalescing the way a real tokenizer would.
func SplitWords(text string) []string {
	var out []string
	var cur strings.Builder
	n := 0
	for _, r := range text {
		if (unicode.IsSpace(r) && strings.TrimSpace(cur.String()) != "") || n == maxPieceRunes {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
		cur.WriteRune(r)
		n++
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// LocalEngine is a model-agnostic stub that echoes the prompt with a prefix,
// for running the hub without a model server.
type LocalEngine struct {
	Prefix string
	split  Splitter
}

// NewLocalEngine returns a local engine. A nil split uses SplitWords.
func NewLocalEngine(prefix string, split Splitter) *LocalEngine {
	if split == nil {
		split = SplitWords
	}
	return &LocalEngine{Prefix: prefix, split: split}
}

// Info implements domain.Engine.
func (e *LocalEngine) Info() domain.ModelInfo {
	return domain.ModelInfo{Model: "local-echo", ModelType: "local"}
}

// Invoke implements domain.Engine.
func (e *LocalEngine) Invoke(ctx context.Context, prompt string, cb domain.StreamCallbacks) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reply := e.Prefix + lastLine(prompt)
	if cb == nil {
		return reply, nil
	}
	cb.OnStart()
	for _, piece := range e.split(reply) {
		cb.OnToken(piece)
	}
	cb.OnEnd(reply)
	return reply, nil
}

// lastLine keeps the echo short when the prompt is a rendered template.
func lastLine(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if i := strings.LastIndexByte(prompt, '\n'); i >= 0 {
		return strings.TrimSpace(prompt[i+1:])
	}
	return prompt
}

var _ domain.Engine = (*LocalEngine)(nil)
