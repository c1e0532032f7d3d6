package gateway

import (
	"context"
	"fmt"
	"net/http"

	"llmhub/internal/stream"
)

// Relay copies items from s to emit until an END frame has been emitted or
// ctx is done. The END may belong to any response: readers filter by id.
func Relay(ctx context.Context, s *stream.Streamer, emit func(item string) error) error {
	for {
		item, err := s.Next(ctx)
		if err != nil {
			return err
		}
		if err := emit(item); err != nil {
			return err
		}
		if stream.IsEnd(item) {
			return nil
		}
	}
}

// stream serves GET /context/{name}: newline-delimited items, one flush per item.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s, ok := a.streamer(w, name)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	_ = rc.Flush()

	err := Relay(r.Context(), s, func(item string) error {
		if _, err := w.Write(stream.EncodeItem(item)); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil && r.Context().Err() == nil {
		a.log().Warn("stream relay ended early", "context", name, "error", err)
	}
}

func (a *API) streamer(w http.ResponseWriter, name string) (*stream.Streamer, bool) {
	c, err := a.registry.Get(name)
	if err != nil {
		a.fail(w, name, fmt.Sprintf("Context '%s' does not exist", name), err)
		return nil, false
	}
	s := c.Streamer()
	if s == nil {
		writeJSON(w, http.StatusUnprocessableEntity, ReturnData{Name: name, Detail: fmt.Sprintf("Context '%s' does not stream", name)})
		return nil, false
	}
	return s, true
}
