package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"llmhub/internal/convo"
	"llmhub/internal/domain"
	"llmhub/internal/template"
)

// gateEngine records prompts and, when gate is set, blocks each call until
// the test releases it.
type gateEngine struct {
	mu      sync.Mutex
	prompts []string
	gate    chan struct{}
	calls   chan string
	panicOn string
	failOn  string
}

func newGateEngine(gated bool) *gateEngine {
	e := &gateEngine{calls: make(chan string, 100)}
	if gated {
		e.gate = make(chan struct{})
	}
	return e
}

func (e *gateEngine) Info() domain.ModelInfo {
	return domain.ModelInfo{Model: "gate", ModelType: "test"}
}

func (e *gateEngine) Invoke(_ context.Context, prompt string, cb domain.StreamCallbacks) (string, error) {
	e.mu.Lock()
	e.prompts = append(e.prompts, prompt)
	e.mu.Unlock()
	e.calls <- prompt
	if e.gate != nil {
		<-e.gate
	}
	if prompt == e.panicOn {
		panic("engine exploded")
	}
	if prompt == e.failOn {
		return "", assert.AnError
	}
	return "ok " + prompt, nil
}

func (e *gateEngine) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.prompts...)
}

func (e *gateEngine) waitCall(t *testing.T) string {
	t.Helper()
	select {
	case p := <-e.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("engine was not called")
		return ""
	}
}

// newTestSetup registers contexts whose template renders only the user message.
func newTestSetup(t *testing.T, eng domain.Engine, names ...string) (*convo.Registry, *Dispatcher) {
	t.Helper()
	dir := t.TempDir()
	body := "instruct\n{% for m in messages %}{% if m.role == \"user\" %}{{ m.content }}{% endif %}{% endfor %}"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.tmpl"), []byte(body), 0o644))
	reg := convo.NewRegistry(eng, template.NewLoader(dir))
	for _, n := range names {
		require.NoError(t, reg.Create(convo.Spec{Name: n, Template: "plain.tmpl", History: 2}))
	}
	d := New(reg, eng)
	d.Start()
	t.Cleanup(d.Shutdown)
	return reg, d
}

// =============================================================================
// Response ids
// =============================================================================

func TestNewResponseID_ShouldBeEightHexChars(t *testing.T) {
	id := NewResponseID()
	assert.Regexp(t, `^[0-9a-f]{8}$`, id)
}

func TestNextID_WhenTenThousand_ShouldNotCollide(t *testing.T) {
	_, d := newTestSetup(t, newGateEngine(false))
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := d.nextID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s after %d", id, i)
		seen[id] = struct{}{}
	}
}

func TestSubmit_WhenGeneratorRepeats_ShouldRegenerateID(t *testing.T) {
	_, d := newTestSetup(t, newGateEngine(false), "c1")
	script := []string{"aaaa0000", "aaaa0000", "aaaa0000", "bbbb1111"}
	var calls int
	d.newID = func() string {
		id := script[calls]
		calls++
		return id
	}

	first, err := d.Submit("c1", "one")
	require.NoError(t, err)
	second, err := d.Submit("c1", "two")
	require.NoError(t, err)

	assert.Equal(t, "aaaa0000", first)
	assert.Equal(t, "bbbb1111", second)
	assert.Equal(t, 4, calls)
}

func TestNextID_WhenRingWraps_ShouldForgetOldestID(t *testing.T) {
	_, d := newTestSetup(t, newGateEngine(false))
	var n int
	d.newID = func() string {
		n++
		return fmt.Sprintf("%08x", n)
	}
	first := d.nextID()
	for i := 1; i < recentIDs; i++ {
		d.nextID()
	}
	assert.Len(t, d.issued, recentIDs)

	d.nextID()
	assert.NotContains(t, d.issued, first)
	assert.Len(t, d.issued, recentIDs)
}

// =============================================================================
// Submit
// =============================================================================

func TestSubmit_WhenUnknownContext_ShouldFail(t *testing.T) {
	defer goleak.VerifyNone(t)
	_, d := newTestSetup(t, newGateEngine(false))
	_, err := d.Submit("nope", "hi")
	assert.ErrorIs(t, err, convo.ErrUnknownContext)
	d.Shutdown()
}

func TestSubmit_WhenStopped_ShouldReturnErrStopped(t *testing.T) {
	reg, d := newTestSetup(t, newGateEngine(false), "a")
	d.Shutdown()
	require.NoError(t, reg.Create(convo.Spec{Name: "a", Template: "plain.tmpl"}))
	_, err := d.Submit("a", "hi")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSubmit_ShouldRunInFIFOOrderAcrossContexts(t *testing.T) {
	defer goleak.VerifyNone(t)
	eng := newGateEngine(true)
	_, d := newTestSetup(t, eng, "a", "b", "c")

	for _, m := range [][2]string{{"a", "D1"}, {"b", "D2"}, {"c", "D3"}} {
		_, err := d.Submit(m[0], m[1])
		require.NoError(t, err)
	}
	for _, want := range []string{"D1", "D2", "D3"} {
		assert.Equal(t, want, eng.waitCall(t))
		// no second call may start while this one is in flight
		assert.Empty(t, eng.calls)
		eng.gate <- struct{}{}
	}
	assert.Equal(t, []string{"D1", "D2", "D3"}, eng.seen())
	d.Shutdown()
}

func TestDispatcher_WhenContextDeletedBeforeDequeue_ShouldDropAndContinue(t *testing.T) {
	defer goleak.VerifyNone(t)
	eng := newGateEngine(true)
	reg, d := newTestSetup(t, eng, "a", "ghost", "b")

	_, err := d.Submit("a", "first")
	require.NoError(t, err)
	assert.Equal(t, "first", eng.waitCall(t))

	_, err = d.Submit("ghost", "boo")
	require.NoError(t, err)
	_, err = d.Submit("b", "second")
	require.NoError(t, err)
	require.NoError(t, reg.Delete("ghost"))

	eng.gate <- struct{}{}
	assert.Equal(t, "second", eng.waitCall(t))
	eng.gate <- struct{}{}

	assert.Eventually(t, func() bool {
		res, ok := d.LastResult()
		return ok && res.ContextName == "b"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, eng.seen())
	d.Shutdown()
}

func TestDispatcher_WhenEngineFailsOrPanics_ShouldKeepRunning(t *testing.T) {
	defer goleak.VerifyNone(t)
	eng := newGateEngine(false)
	eng.failOn = "bad"
	eng.panicOn = "boom"
	reg, d := newTestSetup(t, eng, "a")

	for _, m := range []string{"bad", "boom", "good"} {
		_, err := d.Submit("a", m)
		require.NoError(t, err)
	}
	assert.Eventually(t, func() bool {
		res, ok := d.LastResult()
		return ok && res.Full == "ok good"
	}, 2*time.Second, 5*time.Millisecond)

	c, _ := reg.Get("a")
	// only the successful directive reached history
	assert.Len(t, c.History(), 2)
	assert.True(t, d.Running())
	d.Shutdown()
}

// The engine call is never cancelled: Shutdown waits for the in-flight
// directive to return on its own.
func TestShutdown_ShouldWaitForInFlightAndDeleteContexts(t *testing.T) {
	defer goleak.VerifyNone(t)
	eng := newGateEngine(true)
	reg, d := newTestSetup(t, eng, "a")

	_, err := d.Submit("a", "slow")
	require.NoError(t, err)
	_, err = d.Submit("a", "queued")
	require.NoError(t, err)
	eng.waitCall(t)

	stopped := make(chan struct{})
	go func() {
		d.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("shutdown returned while a directive was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	eng.gate <- struct{}{}
	<-stopped

	assert.False(t, d.Running())
	assert.Zero(t, reg.Len())
	assert.Equal(t, []string{"slow"}, eng.seen())
}

func TestRestart_ShouldAcceptDirectivesForNewContexts(t *testing.T) {
	defer goleak.VerifyNone(t)
	eng := newGateEngine(false)
	reg, d := newTestSetup(t, eng, "a")

	d.Restart()
	assert.True(t, d.Running())
	assert.Zero(t, reg.Len())

	require.NoError(t, reg.Create(convo.Spec{Name: "a", Template: "plain.tmpl"}))
	id, err := d.Submit("a", "again")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		res, ok := d.LastResult()
		return ok && res.ResponseID == id
	}, 2*time.Second, 5*time.Millisecond)
	d.Shutdown()
}

func TestModelInfo_ShouldDelegateToEngine(t *testing.T) {
	_, d := newTestSetup(t, newGateEngine(false))
	assert.Equal(t, "gate", d.ModelInfo().Model)
}
