package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmhub/internal/stream"
)

func TestStreamWS_ShouldSendOneMessagePerItemThenClose(t *testing.T) {
	h := newTestHub(t)
	h.do(t, http.MethodPost, "/context/c", ContextSpec{})
	_, out := h.do(t, http.MethodPut, "/context/c", Predict{Msg: "good day"})
	id := out.Detail.(string)

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/context/c"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msgs []WSMessage
	for {
		var m WSMessage
		if err := conn.ReadJSON(&m); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
			break
		}
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 4)
	assert.Equal(t, WSMessage{Type: "start", Content: stream.StartFrame(id, "c"), ContextName: "c"}, msgs[0])
	assert.Equal(t, "word", msgs[1].Type)
	assert.Equal(t, "good", msgs[1].Content)
	assert.Equal(t, "end", msgs[3].Type)
}

func TestStreamWS_WhenUnknownContext_ShouldReturn422(t *testing.T) {
	h := newTestHub(t)
	resp, err := http.Get(h.server.URL + "/ws/context/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStreamWS_WhenNotWebSocketRequest_ShouldReturnBadRequest(t *testing.T) {
	h := newTestHub(t)
	h.do(t, http.MethodPost, "/context/c", ContextSpec{})
	resp, err := http.Get(h.server.URL + "/ws/context/c")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWriteWSMessage_WhenMarshalFails_ShouldReturnError(t *testing.T) {
	jsonMarshalMu.Lock()
	old := jsonMarshal
	jsonMarshal = func(v any) ([]byte, error) { return nil, errors.New("marshal failed") }
	jsonMarshalMu.Unlock()
	defer func() {
		jsonMarshalMu.Lock()
		jsonMarshal = old
		jsonMarshalMu.Unlock()
	}()
	err := writeWSMessage(nil, nil, &WSMessage{Type: "word"})
	assert.ErrorContains(t, err, "marshal failed")
}

func TestWSMessageFor_ShouldClassifyItems(t *testing.T) {
	assert.Equal(t, "start", wsMessageFor("c", "|START-ab-c|").Type)
	assert.Equal(t, "end", wsMessageFor("c", "|END-ab-c-3|").Type)
	assert.Equal(t, "word", wsMessageFor("c", "hello").Type)
}

func TestRequestLogger_ShouldPassThroughStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	RequestLogger(discardLogger())(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
