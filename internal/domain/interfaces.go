package domain

import "context"

// StreamCallbacks receives the incremental output of one inference call.
// Engines call OnStart once, OnToken for every delta, then OnEnd with the
// final text, all on the goroutine that called Invoke.
type StreamCallbacks interface {
	OnStart()
	OnToken(delta string)
	OnEnd(final string)
}

// Engine is the model-agnostic inference interface. Implementations may be a
// local echo engine, Ollama, an OpenAI-compatible endpoint, or test fakes.
// An Engine is an exclusively owned, non-reentrant resource: callers must
// never have two Invoke calls in flight.
type Engine interface {
	// Invoke renders nothing itself: prompt is the final prompt text. When cb
	// is non-nil the engine streams through it before returning.
	Invoke(ctx context.Context, prompt string, cb StreamCallbacks) (string, error)

	// Info describes the loaded model.
	Info() ModelInfo
}

// Summarizer shortens assistant replies before they are stored in history.
// It must tolerate empty or very short input.
type Summarizer interface {
	Summarize(ctx context.Context, kind SummarizerKind, text string) (string, error)
}

// Tokenizer counts tokens in a string for prompt accounting.
type Tokenizer interface {
	// CountTokens returns the number of tokens in the given text.
	CountTokens(text string) (int, error)
}
