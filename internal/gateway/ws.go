package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"llmhub/internal/stream"
)

// WSMessage is one relayed item on the websocket stream.
// Example: {"type": "word", "content": "hello", "contextName": "c1"}
type WSMessage struct {
	Type        string `json:"type"` // start | word | end
	Content     string `json:"content"`
	ContextName string `json:"contextName,omitempty"`
}

// jsonMarshal is used when encoding WSMessage; tests may replace it to force Marshal errors.
// Access is protected by jsonMarshalMu for race-safe test swaps.
var (
	jsonMarshalMu sync.RWMutex
	jsonMarshal   = json.Marshal
)

// Default upgrader for WebSocket connections.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessageFor classifies a relayed item.
func wsMessageFor(contextName, item string) WSMessage {
	msg := WSMessage{Type: "word", Content: item, ContextName: contextName}
	if f, ok := stream.ParseFrame(item); ok {
		msg.Type = "start"
		if f.Kind == stream.KindEnd {
			msg.Type = "end"
		}
	}
	return msg
}

// streamWS serves GET /ws/context/{name}: the same relay as the chunked
// stream, one JSON message per item, closed after the first END.
func (a *API) streamWS(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s, ok := a.streamer(w, name)
	if !ok {
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log().Warn("ws upgrade failed", "context", name, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The read loop only notices the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	var writeMu sync.Mutex
	err = Relay(ctx, s, func(item string) error {
		msg := wsMessageFor(name, item)
		return writeWSMessage(conn, &writeMu, &msg)
	})
	if err != nil && ctx.Err() == nil {
		a.log().Warn("ws relay ended early", "context", name, "error", err)
		return
	}
	writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of response"),
		time.Now().Add(time.Second))
	writeMu.Unlock()
}

func writeWSMessage(conn *websocket.Conn, mu *sync.Mutex, msg *WSMessage) error {
	jsonMarshalMu.RLock()
	marshal := jsonMarshal
	jsonMarshalMu.RUnlock()
	data, err := marshal(msg)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
