// CLAUDE:SUMMARY Engine facade: resolves the active reader, applies the overlay through the controller, and exposes the preference-pane operations.
// Package overlay keeps user-defined labels on the colour swatches of a
// reader document. The Engine ties the preference store, the reader
// tracker, surface resolution and the per-surface controller together;
// HTTP routes, MCP tools and the CLI are thin adapters over it.
package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/readerlabels/overlay/internal/browser"
	"github.com/hazyhaar/readerlabels/overlay/internal/controller"
	"github.com/hazyhaar/readerlabels/overlay/internal/labels"
	"github.com/hazyhaar/readerlabels/overlay/internal/override"
	"github.com/hazyhaar/readerlabels/overlay/internal/palette"
	"github.com/hazyhaar/readerlabels/overlay/internal/prefs"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

// ReaderSource reports the reader the user is looking at.
type ReaderSource interface {
	ActiveReader(ctx context.Context) (surface.Handle, bool)
}

// ReaderFunc adapts a function to ReaderSource.
type ReaderFunc func(ctx context.Context) (surface.Handle, bool)

func (f ReaderFunc) ActiveReader(ctx context.Context) (surface.Handle, bool) { return f(ctx) }

// Config configures an Engine.
type Config struct {
	Prefs     prefs.Store
	Namespace string
	Readers   ReaderSource
	Locator   surface.Locator
	Override  override.Options

	RescanInterval time.Duration
	ReadyTimeout   time.Duration
	// ApplyTimeout bounds one apply triggered by an event. Default: 15s.
	ApplyTimeout time.Duration

	Logger *slog.Logger
}

// Engine applies labels to readers.
type Engine struct {
	cfg    Config
	labels *labels.Builder
	ctrl   *controller.Controller
	logger *slog.Logger

	refreshes   atomic.Int64
	failures    atomic.Int64
	sessionOpen atomic.Bool
	watcher     atomic.Pointer[prefs.Watcher]
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 15 * time.Second
	}
	lb := labels.New(cfg.Prefs, cfg.Namespace)
	return &Engine{
		cfg:    cfg,
		labels: lb,
		logger: cfg.Logger,
		ctrl: controller.New(controller.Config{
			Labels:         lb,
			Injector:       override.NewInstaller(cfg.Override, cfg.Logger),
			RescanInterval: cfg.RescanInterval,
			ReadyTimeout:   cfg.ReadyTimeout,
			Logger:         cfg.Logger,
		}),
	}
}

// Labels returns the label builder over the engine's store.
func (e *Engine) Labels() *labels.Builder { return e.labels }

// RefreshActiveReader applies the current labels to the active reader, if
// any. Failures are logged, never returned; calling it repeatedly is safe.
func (e *Engine) RefreshActiveReader(ctx context.Context) error {
	e.refreshes.Add(1)
	if e.cfg.Readers == nil {
		return nil
	}
	h, ok := e.cfg.Readers.ActiveReader(ctx)
	if !ok {
		e.logger.Debug("overlay: no active reader")
		return nil
	}
	e.ApplyToReader(ctx, h)
	return nil
}

// ApplyToReader resolves the reader's surface and applies the overlay. A
// reader whose view is not rendered yet is skipped silently.
func (e *Engine) ApplyToReader(ctx context.Context, h surface.Handle) {
	if e.cfg.Locator == nil {
		return
	}
	s, ok, err := e.cfg.Locator.Resolve(ctx, h)
	if err != nil {
		e.failures.Add(1)
		e.logger.Warn("overlay: resolve reader surface", "target", h.TargetID, "error", err)
		return
	}
	if !ok {
		e.logger.Debug("overlay: reader has no surface yet", "target", h.TargetID)
		return
	}
	if err := e.Apply(ctx, s); err != nil {
		e.failures.Add(1)
		e.logger.Error("overlay: apply", "target", h.TargetID, "surface", s.ID(), "error", err)
	}
}

// Apply applies the overlay to a resolved surface and returns any error.
func (e *Engine) Apply(ctx context.Context, s surface.Surface) error {
	return e.ctrl.Apply(ctx, s)
}

// HandleTabEvent reacts to host tab notifications. Only a select on a tab
// whose first id is a reader triggers an apply; closing a tab tears down
// every surface of that target.
func (e *Engine) HandleTabEvent(ctx context.Context, ev browser.TabEvent) {
	if ev.Type != "tab" || len(ev.IDs) == 0 || ev.IDs[0] == "" {
		return
	}
	id := ev.IDs[0]
	switch ev.Event {
	case "select":
		if ev.Extra[id].Type != "reader" {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, e.cfg.ApplyTimeout)
		defer cancel()
		e.ApplyToReader(ctx, surface.Handle{TargetID: id})
	case "close":
		e.TeardownTarget(id)
	}
}

// TeardownTarget removes the overlay state of every surface belonging to a
// target: the page itself and its frames.
func (e *Engine) TeardownTarget(targetID string) {
	for _, id := range e.ctrl.Active() {
		if id == targetID || strings.HasPrefix(id, targetID+"/") {
			e.ctrl.Teardown(id)
		}
	}
}

// Shutdown tears down every surface.
func (e *Engine) Shutdown() {
	e.ctrl.TeardownAll()
}

// ColorView is one palette colour as the preference pane shows it.
type ColorView struct {
	ID            string `json:"id"`
	Hex           string `json:"hex"`
	FallbackLabel string `json:"fallback_label"`
	Label         string `json:"label"`
	Display       string `json:"display"`
}

// ColorEntries lists the palette with stored labels, in palette order.
func (e *Engine) ColorEntries(ctx context.Context) ([]ColorView, error) {
	entries, err := e.labels.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ColorView, len(entries))
	for i, en := range entries {
		out[i] = ColorView{
			ID:            en.ID,
			Hex:           en.Hex,
			FallbackLabel: en.FallbackLabel,
			Label:         en.Label,
			Display:       en.Display(),
		}
	}
	return out, nil
}

// SetColorName persists a label without refreshing, as typing in the
// preference field does.
func (e *Engine) SetColorName(ctx context.Context, id, value string) error {
	return e.labels.SetColorName(ctx, id, value)
}

// CommitColorName persists a label and refreshes the active reader, as
// leaving the preference field does.
func (e *Engine) CommitColorName(ctx context.Context, id, value string) error {
	if err := e.labels.SetColorName(ctx, id, value); err != nil {
		return err
	}
	return e.RefreshActiveReader(ctx)
}

// ClearColorName resets a label to its fallback and refreshes. It reports
// false and does nothing when the label is already empty.
func (e *Engine) ClearColorName(ctx context.Context, id string) (bool, error) {
	if _, ok := palette.Lookup(id); !ok {
		return false, fmt.Errorf("%w: %s", labels.ErrUnknownColor, id)
	}
	cur, err := e.labels.ColorName(ctx, id)
	if err != nil {
		return false, err
	}
	if cur == "" {
		return false, nil
	}
	if err := e.labels.SetColorName(ctx, id, ""); err != nil {
		return false, err
	}
	return true, e.RefreshActiveReader(ctx)
}

// Stats is a snapshot of engine activity.
type Stats struct {
	Controller controller.Stats  `json:"controller"`
	Surfaces   []string          `json:"surfaces"`
	Refreshes  int64             `json:"refreshes"`
	Failures   int64             `json:"failures"`
	Prefs      *prefs.WatchStats `json:"prefs,omitempty"`
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	st := Stats{
		Controller: e.ctrl.Stats(),
		Surfaces:   e.ctrl.Active(),
		Refreshes:  e.refreshes.Load(),
		Failures:   e.failures.Load(),
	}
	sort.Strings(st.Surfaces)
	if w := e.watcher.Load(); w != nil {
		ws := w.Stats()
		st.Prefs = &ws
	}
	return st
}
