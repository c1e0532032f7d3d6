package repl

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmhub/internal/client"
	"llmhub/internal/convo"
	"llmhub/internal/dispatch"
	"llmhub/internal/domain"
	"llmhub/internal/gateway"
	"llmhub/internal/llm"
	"llmhub/internal/template"
)

const echoTemplate = "instruct\n{% for m in messages %}{% if m.role == \"user\" %}{{ m.content }}{% endif %}{% endfor %}"

func newHub(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.tmpl"), []byte(echoTemplate), 0o644))

	engine := llm.NewLocalEngine("", nil)
	reg := convo.NewRegistry(engine, template.NewLoader(dir), convo.WithDefaultTemplate("echo.tmpl"))
	d := dispatch.New(reg, engine)
	d.Start()
	srv, err := gateway.NewServer(&domain.GatewayConfig{}, gateway.NewAPI(reg, d, domain.ContextsConfig{DefaultHistory: 2}))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		d.Shutdown()
	})
	return ts.URL
}

func newSession(t *testing.T, opts ...Option) (*Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s := NewSession(newHub(t), "me-box", &out, opts...)
	require.NoError(t, s.Intro(context.Background()))
	return s, &out
}

// scriptReader replays lines and then reports end of input.
type scriptReader struct {
	lines   []string
	history []string
}

func (r *scriptReader) Prompt(string) (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	l := r.lines[0]
	r.lines = r.lines[1:]
	return l, nil
}

func (r *scriptReader) AppendHistory(item string) { r.history = append(r.history, item) }

// =============================================================================
// Startup and chat
// =============================================================================

func TestSession_Intro_ShouldShowModelAndStartDefault(t *testing.T) {
	s, out := newSession(t)

	assert.Contains(t, out.String(), "Current model information:")
	assert.Contains(t, out.String(), "local-echo")
	assert.Equal(t, "me-box", s.Current())
	assert.Equal(t, []string{"me-box"}, s.Contexts())
	assert.Contains(t, s.Prompt(), "(me-box):")
}

func TestSession_Handle_WhenPlainText_ShouldStreamReply(t *testing.T) {
	s, out := newSession(t)
	out.Reset()

	assert.True(t, s.Handle(context.Background(), "hello brave world"))
	assert.Contains(t, out.String(), "hello brave world")
}

func TestSession_Handle_WhenQuit_ShouldStop(t *testing.T) {
	s, out := newSession(t)

	assert.False(t, s.Handle(context.Background(), ".q"))
	assert.Contains(t, out.String(), "So long")
}

func TestSession_Run_WhenInputEnds_ShouldSayGoodbye(t *testing.T) {
	s, out := newSession(t)
	in := &scriptReader{lines: []string{"  hi  ", ""}}

	require.NoError(t, s.Run(context.Background(), in))
	assert.Equal(t, []string{"hi"}, in.history)
	assert.Contains(t, out.String(), "Goodbye and good luck.")
}

// =============================================================================
// Context commands
// =============================================================================

func TestSession_StartSwitchDelete(t *testing.T) {
	s, out := newSession(t)
	ctx := context.Background()

	s.Handle(ctx, ".start other 3")
	assert.Contains(t, out.String(), "Created context 'other' with history of 3.")
	assert.Equal(t, "other", s.Current())

	s.Handle(ctx, ".start other")
	assert.Contains(t, out.String(), "Context 'other' already exists.")

	s.Handle(ctx, ".sw nope")
	assert.Contains(t, out.String(), "Context 'nope' does not exist.")

	s.Handle(ctx, ".del other")
	assert.Contains(t, out.String(), "You cannot delete the current context.")

	s.Handle(ctx, ".switch me-box")
	assert.Equal(t, "me-box", s.Current())
	s.Handle(ctx, ".del other")
	assert.Contains(t, out.String(), "Deleted context 'other'.")
	assert.Equal(t, []string{"me-box"}, s.Contexts())

	out.Reset()
	s.Handle(ctx, ".list")
	assert.Contains(t, out.String(), "me-box")
	assert.NotContains(t, out.String(), "other")
}

func TestSession_Start_WhenContextAlreadyOnHub_ShouldReattach(t *testing.T) {
	url := newHub(t)
	ctx := context.Background()
	_, err := client.NewContextClient("shared", url).Create(ctx, client.CreateOptions{History: 1})
	require.NoError(t, err)

	var out bytes.Buffer
	s := NewSession(url, "shared", &out)
	require.NoError(t, s.Intro(ctx))
	assert.Equal(t, "shared", s.Current())
	assert.Contains(t, out.String(), "The following contexts are active:")
}

func TestSession_HistoryForgetPrompt(t *testing.T) {
	s, out := newSession(t)
	ctx := context.Background()

	s.Handle(ctx, ".history")
	assert.Contains(t, out.String(), "Unable to get any history.")

	s.Handle(ctx, "remember me")
	assert.Eventually(t, func() bool {
		out.Reset()
		s.Handle(ctx, ".history")
		return strings.Contains(out.String(), "{'role': 'user', 'content': 'remember me'}")
	}, 2*time.Second, 10*time.Millisecond)

	s.Handle(ctx, ".forget")
	assert.Contains(t, out.String(), "My mind is going.")

	s.Handle(ctx, ".prompt be terse")
	assert.Contains(t, out.String(), "System prompt set to 'be terse'.")
	out.Reset()
	s.Handle(ctx, ".info context")
	assert.Contains(t, out.String(), `"system_prompt": "be terse"`)

	s.Handle(ctx, ".prompt")
	assert.Contains(t, out.String(), "Set empty system prompt.")
}

func TestSession_Template(t *testing.T) {
	s, out := newSession(t)
	ctx := context.Background()

	s.Handle(ctx, ".template show")
	assert.Contains(t, out.String(), "Loaded from 'echo.tmpl'")

	s.Handle(ctx, ".template load missing.tmpl")
	assert.Contains(t, out.String(), "Unable to load template 'missing.tmpl'.")

	s.Handle(ctx, ".template load")
	assert.Contains(t, out.String(), "Loaded template 'echo.tmpl'.")

	s.Handle(ctx, ".template bogus")
	assert.Contains(t, out.String(), "Invalid template subcommand 'bogus'.")
}

func TestSession_Restart_ShouldRecreateDefault(t *testing.T) {
	s, out := newSession(t)
	ctx := context.Background()
	s.Handle(ctx, ".start extra")

	s.Handle(ctx, ".restart")
	assert.Contains(t, out.String(), "My mind is clear now.")
	assert.Equal(t, []string{"me-box"}, s.Contexts())
	assert.Equal(t, "me-box", s.Current())
}

func TestSession_Info_WhenBadArgument_ShouldComplain(t *testing.T) {
	s, out := newSession(t)
	s.Handle(context.Background(), ".info")
	assert.Contains(t, out.String(), "Invalid command.")
}

// =============================================================================
// Questions
// =============================================================================

func TestSession_Ask_WhenRange_ShouldRunUnattended(t *testing.T) {
	s, out := newSession(t, WithQuestions([]string{"first question", "second question", "third question"}))
	in := &scriptReader{lines: []string{".ask 1 2"}}

	require.NoError(t, s.Run(context.Background(), in))
	assert.Contains(t, out.String(), "1. first question")
	assert.Contains(t, out.String(), "2. second question")
	assert.NotContains(t, out.String(), "3. third question")
}

func TestSession_Ask_WhenSingle_ShouldAdvance(t *testing.T) {
	s, out := newSession(t, WithQuestions([]string{"a?", "b?"}))
	ctx := context.Background()

	s.Handle(ctx, ".ask 2")
	assert.Contains(t, out.String(), "2. b?")
	s.Handle(ctx, ".ask")
	assert.Contains(t, out.String(), "1. a?")
	s.Handle(ctx, ".ask 9")
	assert.Contains(t, out.String(), "Invalid question command.")
}

func TestSession_Ask_WhenNoQuestions_ShouldComplain(t *testing.T) {
	s, out := newSession(t)
	s.Handle(context.Background(), ".ask")
	assert.Contains(t, out.String(), "No questions loaded.")
}

func TestLoadQuestions_ShouldSkipBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\n\n  two  \n"), 0o644))

	got, err := LoadQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)

	_, err = LoadQuestions(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
