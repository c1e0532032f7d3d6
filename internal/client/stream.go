package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"llmhub/internal/stream"
)

// ErrStreamLost is returned when the hub keeps closing the stream without
// delivering anything for the tracked response.
var ErrStreamLost = errors.New("stream lost before response ended")

// WordStream yields the words of one response. Items of other responses
// sharing the context stream are skipped.
type WordStream struct {
	ctx context.Context
	c   *ContextClient
	id  string

	body    io.ReadCloser
	dec     *stream.Decoder
	inside  bool
	done    bool
	reopens int
	word    string
	tokens  int
	err     error
}

// ResponseID is the id this stream follows.
func (s *WordStream) ResponseID() string { return s.id }

// Word is the word read by the last successful Next.
func (s *WordStream) Word() string { return s.word }

// Err is the error that stopped Next, nil after a clean END.
func (s *WordStream) Err() error { return s.err }

// TokenCount is the count carried by the END frame, valid once Next returned false
// with a nil Err.
func (s *WordStream) TokenCount() int { return s.tokens }

// Next advances to the next word. It returns false at the END frame of the
// tracked response or on error.
func (s *WordStream) Next() bool {
	if s.done {
		return false
	}
	for {
		if s.dec == nil {
			if err := s.open(); err != nil {
				return s.fail(err)
			}
		}
		it, err := s.dec.Next()
		if err != nil {
			s.closeBody()
			if !errors.Is(err, io.EOF) {
				return s.fail(fmt.Errorf("read stream: %w", err))
			}
			s.reopens++
			if s.reopens > s.c.t.maxReopens {
				return s.fail(ErrStreamLost)
			}
			continue
		}
		s.reopens = 0

		if !it.IsFrame {
			if s.inside {
				s.word = it.Text
				return true
			}
			continue
		}
		f := it.Frame
		if f.ResponseID != s.id {
			continue
		}
		switch f.Kind {
		case stream.KindStart:
			if s.inside {
				return s.fail(fmt.Errorf("%w: repeated START for %s", stream.ErrProtocolViolation, s.id))
			}
			s.inside = true
		case stream.KindEnd:
			if !s.inside {
				return s.fail(fmt.Errorf("%w: END without START for %s", stream.ErrProtocolViolation, s.id))
			}
			s.tokens = f.TokenCount
			s.finish()
			return false
		}
	}
}

// All ranges over the remaining words. Check Err afterwards.
func (s *WordStream) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for s.Next() {
			if !yield(s.word) {
				return
			}
		}
	}
}

// Close releases the connection. It is safe to call more than once.
func (s *WordStream) Close() error {
	s.finish()
	return nil
}

func (s *WordStream) open() error {
	t := s.c.t
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, t.base+s.c.path(""), nil)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("%w: stream %s", ErrRejected, resp.Status)
	}
	s.body = resp.Body
	s.dec = stream.NewDecoder(resp.Body, t.chunkSize)
	return nil
}

func (s *WordStream) closeBody() {
	if s.body != nil {
		s.body.Close()
	}
	s.body, s.dec = nil, nil
}

func (s *WordStream) fail(err error) bool {
	s.err = err
	s.finish()
	return false
}

func (s *WordStream) finish() {
	s.done = true
	s.word = ""
	s.closeBody()
}
