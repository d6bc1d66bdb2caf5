// CLAUDE:SUMMARY Per-surface injection controller: deferred ready retry, teardown-then-rebuild, override injection, watcher + periodic rescan loop, one-shot unload teardown.
// Package controller owns the overlay state of every reader surface. Each
// surface has at most one live windowState; applying again tears the old
// one down first, and teardown runs exactly once per state.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/readerlabels/overlay/internal/labels"
	"github.com/hazyhaar/readerlabels/overlay/internal/override"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

// LabelSource supplies fresh label data for each Apply.
type LabelSource interface {
	HexMap(ctx context.Context) (labels.HexMap, error)
	OrderedTuples(ctx context.Context) ([]labels.Tuple, error)
}

// Injector installs the in-context override.
type Injector interface {
	Inject(ctx context.Context, s surface.Surface, tuples []labels.Tuple) (override.Outcome, error)
}

// Config configures a Controller.
type Config struct {
	Labels   LabelSource
	Injector Injector

	// RescanInterval is the periodic fallback re-scan. Default: 2s.
	RescanInterval time.Duration
	// ReadyTimeout bounds the wait for a not-yet-ready document. Default: 30s.
	ReadyTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.RescanInterval <= 0 {
		c.RescanInterval = 2 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Stats are cumulative controller counters.
type Stats struct {
	Active    int   `json:"active"`
	Applies   int64 `json:"applies"`
	Deferred  int64 `json:"deferred"`
	Teardowns int64 `json:"teardowns"`
	Passes    int64 `json:"passes"`
	Written   int64 `json:"written"`
	Errors    int64 `json:"errors"`
}

// Controller applies the overlay to surfaces.
type Controller struct {
	cfg Config

	mu      sync.Mutex
	states  map[string]*windowState
	pending map[string]*pendingReady

	applies   atomic.Int64
	deferred  atomic.Int64
	teardowns atomic.Int64
	passes    atomic.Int64
	written   atomic.Int64
	errors    atomic.Int64
}

// New creates a Controller.
func New(cfg Config) *Controller {
	cfg.defaults()
	return &Controller{
		cfg:     cfg,
		states:  make(map[string]*windowState),
		pending: make(map[string]*pendingReady),
	}
}

// Apply labels s. When the document body does not exist yet, Apply
// registers a one-shot retry for when the document is ready and returns
// nil. Otherwise it tears down any previous state for the surface,
// injects the override, runs one annotation pass, and starts the watcher,
// the periodic re-scan and the unload teardown before returning.
func (c *Controller) Apply(ctx context.Context, s surface.Surface) error {
	ready, err := s.BodyReady(ctx)
	if err != nil {
		return fmt.Errorf("controller: body ready: %w", err)
	}
	if !ready {
		c.deferApply(s)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := s.ID()
	c.cancelPendingLocked(id)
	c.teardownLocked(id)
	c.applies.Add(1)

	hexMap, err := c.cfg.Labels.HexMap(ctx)
	if err != nil {
		return fmt.Errorf("controller: build label map: %w", err)
	}
	tuples, err := c.cfg.Labels.OrderedTuples(ctx)
	if err != nil {
		return fmt.Errorf("controller: build tuples: %w", err)
	}
	out, err := c.cfg.Injector.Inject(ctx, s, tuples)
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("controller: inject override: %w", err)
	}

	st := newWindowState(c, s, hexMap)
	st.pass(ctx)

	w, err := s.WatchSubtree(ctx, st.notify)
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("controller: watch subtree: %w", err)
	}
	st.watcher = w
	st.start(c.cfg.RescanInterval)
	st.cancelUnload = s.OnceUnload(context.Background(), func() {
		c.cfg.Logger.Debug("controller: surface unloaded", "surface", id)
		c.teardownState(st)
	})
	c.states[id] = st

	c.cfg.Logger.Debug("controller: applied",
		"surface", id, "labels", len(tuples), "override_replaced", out.Replaced)
	return nil
}

// pendingReady is a registered ready retry.
type pendingReady struct {
	claimed atomic.Bool
	cancel  func()
}

// deferApply registers a single ready hook per surface. The hook expires
// after ReadyTimeout.
func (c *Controller) deferApply(s surface.Surface) {
	id := s.ID()
	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		c.mu.Unlock()
		return
	}
	c.deferred.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReadyTimeout)
	p := &pendingReady{}
	fire := func() {
		if !p.claimed.CompareAndSwap(false, true) {
			return
		}
		cancel()
		c.mu.Lock()
		if c.pending[id] == p {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if err := c.Apply(context.Background(), s); err != nil {
			c.cfg.Logger.Error("controller: deferred apply failed", "surface", id, "error", err)
		}
	}
	cancelHook := s.OnceReady(ctx, fire)
	p.cancel = func() {
		p.claimed.Store(true)
		cancel()
		cancelHook()
	}
	c.pending[id] = p
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		cancelHook()
		if ctx.Err() != context.DeadlineExceeded || !p.claimed.CompareAndSwap(false, true) {
			return
		}
		c.mu.Lock()
		if c.pending[id] == p {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		c.cfg.Logger.Warn("controller: document never became ready", "surface", id, "timeout", c.cfg.ReadyTimeout)
	}()

	// The document may have become ready between the check and the hook.
	if ready, err := s.BodyReady(ctx); err == nil && ready {
		fire()
	}
}

func (c *Controller) cancelPendingLocked(id string) {
	if p, ok := c.pending[id]; ok {
		delete(c.pending, id)
		p.cancel()
	}
}

// Teardown removes the state for a surface id. It is a no-op when there is
// none.
func (c *Controller) Teardown(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked(id)
	c.teardownLocked(id)
}

// TeardownAll removes every state and pending ready hook.
func (c *Controller) TeardownAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.pending {
		c.cancelPendingLocked(id)
	}
	for id := range c.states {
		c.teardownLocked(id)
	}
}

func (c *Controller) teardownLocked(id string) {
	st, ok := c.states[id]
	if !ok {
		return
	}
	delete(c.states, id)
	st.stop()
}

// teardownState is the unload path: it only removes st if it is still the
// live state for its surface.
func (c *Controller) teardownState(st *windowState) {
	c.mu.Lock()
	if c.states[st.id] == st {
		delete(c.states, st.id)
	}
	c.mu.Unlock()
	st.stop()
}

// Active returns the ids of surfaces with live state.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.states))
	for id := range c.states {
		ids = append(ids, id)
	}
	return ids
}

// Pending reports whether a ready retry is registered for id.
func (c *Controller) Pending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	active := len(c.states)
	c.mu.Unlock()
	return Stats{
		Active:    active,
		Applies:   c.applies.Load(),
		Deferred:  c.deferred.Load(),
		Teardowns: c.teardowns.Load(),
		Passes:    c.passes.Load(),
		Written:   c.written.Load(),
		Errors:    c.errors.Load(),
	}
}
