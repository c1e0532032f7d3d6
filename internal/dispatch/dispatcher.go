// Package dispatch serializes every inference call onto one worker. Callers
// submit directives from any goroutine; the worker runs them in submission
// order against the shared engine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"llmhub/internal/convo"
	"llmhub/internal/domain"
	"llmhub/internal/queue"
)

// ErrStopped is returned by Submit while the dispatcher is not running.
var ErrStopped = errors.New("dispatcher is stopped")

// NewResponseID returns an 8-hex-char id taken from both ends of a random UUID.
func NewResponseID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return hex[:4] + hex[len(hex)-4:]
}

// recentIDs bounds how many issued response ids are remembered for
// collision checks.
const recentIDs = 1 << 16

// Dispatcher owns the directive queue and the single worker that drains it.
type Dispatcher struct {
	registry *convo.Registry
	engine   domain.Engine
	lane     *queue.Lane[domain.Directive]
	logger   *slog.Logger
	newID    func() string

	idMu   sync.Mutex
	issued map[string]struct{}
	ring   []string
	next   int

	mu     sync.Mutex
	last   domain.Result
	hasRes bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New returns a stopped dispatcher over registry. Call Start to begin work.
func New(registry *convo.Registry, engine domain.Engine, opts ...Option) *Dispatcher {
	if registry == nil {
		panic("dispatch: registry must not be nil")
	}
	d := &Dispatcher{
		registry: registry,
		engine:   engine,
		newID:    NewResponseID,
		issued:   make(map[string]struct{}, recentIDs),
		ring:     make([]string, recentIDs),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lane = queue.NewLane(d.run, d.failed)
	return d
}

func (d *Dispatcher) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// Start launches the worker. It is a no-op when already running.
func (d *Dispatcher) Start() {
	d.lane.Start()
}

// Running reports whether the worker is active.
func (d *Dispatcher) Running() bool { return d.lane.Running() }

// Pending returns the number of queued directives behind the in-flight one.
func (d *Dispatcher) Pending() int { return d.lane.Pending() }

// Submit queues message for the named context and returns its response id
// without waiting for inference.
func (d *Dispatcher) Submit(contextName, message string) (string, error) {
	if _, err := d.registry.Get(contextName); err != nil {
		d.log().Error("unknown context", "context", contextName)
		return "", err
	}
	dir := domain.Directive{ResponseID: d.nextID(), ContextName: contextName, Message: message}
	if err := d.lane.Push(dir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStopped, err)
	}
	return dir.ResponseID, nil
}

// nextID returns a response id distinct from the last recentIDs issued,
// regenerating on collision.
func (d *Dispatcher) nextID() string {
	d.idMu.Lock()
	defer d.idMu.Unlock()
	id := d.newID()
	for {
		if _, dup := d.issued[id]; !dup {
			break
		}
		id = d.newID()
	}
	if old := d.ring[d.next]; old != "" {
		delete(d.issued, old)
	}
	d.ring[d.next] = id
	d.next = (d.next + 1) % len(d.ring)
	d.issued[id] = struct{}{}
	return id
}

// Shutdown lets the in-flight directive finish, discards queued ones and
// deletes every context.
func (d *Dispatcher) Shutdown() {
	dropped := d.lane.Stop()
	if len(dropped) > 0 {
		d.log().Warn("discarded queued directives", "count", len(dropped))
	}
	d.registry.DeleteAll()
	d.log().Info("dispatcher has been shut down")
}

// Restart shuts down and starts a fresh worker. Contexts are not recreated.
func (d *Dispatcher) Restart() {
	d.Shutdown()
	d.Start()
	d.log().Info("dispatcher has been restarted")
}

// LastResult returns the most recent completed result.
func (d *Dispatcher) LastResult() (domain.Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasRes
}

// ModelInfo describes the shared engine.
func (d *Dispatcher) ModelInfo() domain.ModelInfo {
	if d.engine == nil {
		return domain.ModelInfo{}
	}
	return d.engine.Info()
}

// run executes one directive on the worker goroutine. Predict is never
// cancelled: a hung engine call holds the worker until it returns.
func (d *Dispatcher) run(dir domain.Directive) error {
	c, err := d.registry.Get(dir.ContextName)
	if err != nil {
		d.log().Error("unknown context, directive dropped", "context", dir.ContextName, "response_id", dir.ResponseID)
		return nil
	}
	d.log().Info("started directive", "context", dir.ContextName, "response_id", dir.ResponseID)
	res, err := c.Predict(context.Background(), dir.ResponseID, dir.Message)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.last, d.hasRes = res, true
	d.mu.Unlock()
	d.log().Info("completed directive", "context", dir.ContextName, "response_id", dir.ResponseID)
	return nil
}

func (d *Dispatcher) failed(dir domain.Directive, err error) {
	d.log().Error("directive failed", "context", dir.ContextName, "response_id", dir.ResponseID, "error", err)
}
