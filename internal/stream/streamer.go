package stream

import (
	"context"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"llmhub/internal/domain"
	"llmhub/internal/queue"
)

// Streamer is the per-context sink for one in-flight response at a time. The
// engine drives it through domain.StreamCallbacks; a relay drains the framed
// items with Next. Tokens are coalesced into words: a token beginning with
// whitespace flushes the word accumulated so far.
//
// The producer side (Bind, On*) runs on the dispatcher goroutine; the consumer
// side (Next, TryNext) is meant for a single reader.
type Streamer struct {
	contextName string
	frames      *queue.FIFO[string]

	mu         sync.Mutex
	responseID string
	word       strings.Builder
	tokenCount int
	open       bool
	closed     bool
}

// NewStreamer returns an idle streamer for the named context.
func NewStreamer(contextName string) *Streamer {
	return &Streamer{
		contextName: contextName,
		frames:      queue.NewFIFO[string](),
		responseID:  "???",
		closed:      true,
	}
}

// Bind ties the streamer to the response that is about to be produced.
func (s *Streamer) Bind(responseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseID = responseID
	s.word.Reset()
	s.tokenCount = 0
	s.open = false
	s.closed = false
}

// ResponseID returns the response the streamer is bound to.
func (s *Streamer) ResponseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseID
}

// ContextName returns the owning context's name.
func (s *Streamer) ContextName() string { return s.contextName }

// OnStart implements domain.StreamCallbacks.
func (s *Streamer) OnStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.frames.Push(StartFrame(s.responseID, s.contextName))
}

// OnToken implements domain.StreamCallbacks.
func (s *Streamer) OnToken(delta string) {
	if delta == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenCount++
	if r, _ := utf8.DecodeRuneInString(delta); unicode.IsSpace(r) {
		s.flushLocked()
	}
	s.word.WriteString(delta)
}

// OnEnd implements domain.StreamCallbacks.
func (s *Streamer) OnEnd(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Abort closes the bound response when the engine failed to finish it, so
// readers waiting for END are released. A response that never started gets an
// empty START/END window. It is a no-op once the response is closed.
func (s *Streamer) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.open {
		s.frames.Push(StartFrame(s.responseID, s.contextName))
	}
	s.closeLocked()
}

// Next blocks until a frame or word is available or ctx is done.
func (s *Streamer) Next(ctx context.Context) (string, error) {
	return s.frames.Pop(ctx)
}

// TryNext returns the next item without waiting.
func (s *Streamer) TryNext() (string, bool) {
	return s.frames.TryPop()
}

// Pending returns the number of undelivered items.
func (s *Streamer) Pending() int {
	return s.frames.Len()
}

func (s *Streamer) closeLocked() {
	s.flushLocked()
	s.frames.Push(EndFrame(s.responseID, s.contextName, s.tokenCount))
	s.tokenCount = 0
	s.open = false
	s.closed = true
}

// flushLocked emits the accumulated word, if it survives normalization.
func (s *Streamer) flushLocked() {
	if s.word.Len() == 0 {
		return
	}
	w := NormalizeWord(s.word.String())
	s.word.Reset()
	if w != "" {
		s.frames.Push(w)
	}
}

var _ domain.StreamCallbacks = (*Streamer)(nil)
