// CLAUDE:SUMMARY Discovers CDP page targets, classifies reader tabs by URL glob, relays focus via a binding, and emits select/tab events.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

// TabEvent is a host tab notification. A reader becoming active is
// Event "select", Type "tab", with Extra[IDs[0]].Type "reader".
type TabEvent struct {
	Event string              `json:"event"`
	Type  string              `json:"type"`
	IDs   []string            `json:"ids"`
	Extra map[string]TabExtra `json:"extra,omitempty"`
}

// TabExtra is per-id event data.
type TabExtra struct {
	Type string `json:"type"`
}

// SelectReader builds the event emitted when a reader tab becomes active.
func SelectReader(targetID string) TabEvent {
	return TabEvent{
		Event: "select",
		Type:  "tab",
		IDs:   []string{targetID},
		Extra: map[string]TabExtra{targetID: {Type: "reader"}},
	}
}

// CloseTab builds the event emitted when a reader tab goes away.
func CloseTab(targetID string) TabEvent {
	return TabEvent{Event: "close", Type: "tab", IDs: []string{targetID}}
}

// focusBinding is called by the page when it gains focus or visibility.
const focusBinding = "__readerlabels_focus"

const focusJS = `() => {
	if (window.__readerlabels_focus_installed) { return; }
	window.__readerlabels_focus_installed = true;
	const ping = () => {
		if (document.visibilityState === "visible") {
			try { window.__readerlabels_focus(""); } catch (e) {}
		}
	};
	window.addEventListener("focus", ping);
	document.addEventListener("visibilitychange", ping);
}`

// GlobPattern compiles a URL glob in which '*' matches any run of
// characters, '/' included.
func GlobPattern(glob string) (*regexp.Regexp, error) {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return nil, fmt.Errorf("browser: url pattern %q: %w", glob, err)
	}
	return re, nil
}

type readerTab struct {
	handle   surface.Handle
	selected time.Time
	cancel   context.CancelFunc
}

// Tracker follows the page targets of a browser and reports reader tabs.
type Tracker struct {
	patterns []*regexp.Regexp
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	readers map[string]*readerTab
	subs    map[int]func(TabEvent)
	nextSub int
}

// NewTracker creates a Tracker matching reader URLs against the globs.
func NewTracker(globs []string, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		logger:  logger,
		now:     time.Now,
		readers: make(map[string]*readerTab),
		subs:    make(map[int]func(TabEvent)),
	}
	for _, g := range globs {
		re, err := GlobPattern(g)
		if err != nil {
			return nil, err
		}
		t.patterns = append(t.patterns, re)
	}
	return t, nil
}

// IsReaderURL reports whether url matches a reader pattern.
func (t *Tracker) IsReaderURL(url string) bool {
	for _, re := range t.patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// Subscribe registers fn for tab events. fn runs on the tracker's event
// goroutine and must not block.
func (t *Tracker) Subscribe(fn func(TabEvent)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// ActiveReader returns the most recently selected reader.
func (t *Tracker) ActiveReader(_ context.Context) (surface.Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *readerTab
	for _, r := range t.readers {
		if best == nil || r.selected.After(best.selected) {
			best = r
		}
	}
	if best == nil {
		return surface.Handle{}, false
	}
	return best.handle, true
}

// Run discovers targets on b until ctx is done. Existing pages are
// reported first.
func (t *Tracker) Run(ctx context.Context, b *rod.Browser) error {
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		return fmt.Errorf("browser: discover targets: %w", err)
	}

	wait := b.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) { t.observe(ctx, b, e.TargetInfo) },
		func(e *proto.TargetTargetInfoChanged) { t.observe(ctx, b, e.TargetInfo) },
		func(e *proto.TargetTargetDestroyed) { t.forget(string(e.TargetID)) },
	)

	res, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		t.logger.Warn("browser: list targets failed", "error", err)
	} else {
		for _, info := range res.TargetInfos {
			t.observe(ctx, b, info)
		}
	}

	wait()
	t.mu.Lock()
	for id, r := range t.readers {
		if r.cancel != nil {
			r.cancel()
		}
		delete(t.readers, id)
	}
	t.mu.Unlock()
	return ctx.Err()
}

// observe handles a created or changed target. b may be nil in tests, in
// which case no focus binding is installed.
func (t *Tracker) observe(ctx context.Context, b *rod.Browser, info *proto.TargetTargetInfo) {
	if info == nil || info.Type != proto.TargetTargetInfoTypePage {
		return
	}
	id := string(info.TargetID)
	if !t.IsReaderURL(info.URL) {
		t.forget(id)
		return
	}

	t.mu.Lock()
	r, known := t.readers[id]
	if known && r.handle.URL == info.URL {
		r.handle.Title = info.Title
		t.mu.Unlock()
		return
	}
	if !known {
		r = &readerTab{}
		t.readers[id] = r
	}
	r.handle = surface.Handle{TargetID: id, URL: info.URL, Title: info.Title}
	r.selected = t.now()
	t.mu.Unlock()

	if !known && b != nil {
		fctx, cancel := context.WithCancel(ctx)
		t.mu.Lock()
		if cur, ok := t.readers[id]; ok && cur == r {
			r.cancel = cancel
		}
		t.mu.Unlock()
		go t.watchFocus(fctx, b, id)
	}

	t.logger.Info("browser: reader tab", "target", id, "url", info.URL, "new", !known)
	t.emit(SelectReader(id))
}

// focused marks a reader as the active one and re-announces it.
func (t *Tracker) focused(id string) {
	t.mu.Lock()
	r, ok := t.readers[id]
	if ok {
		r.selected = t.now()
	}
	t.mu.Unlock()
	if ok {
		t.emit(SelectReader(id))
	}
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	r, ok := t.readers[id]
	if ok {
		delete(t.readers, id)
		if r.cancel != nil {
			r.cancel()
		}
	}
	t.mu.Unlock()
	if ok {
		t.logger.Info("browser: reader tab gone", "target", id)
		t.emit(CloseTab(id))
	}
}

func (t *Tracker) emit(ev TabEvent) {
	t.mu.Lock()
	subs := make([]func(TabEvent), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// watchFocus installs the focus binding on a reader page and relays its
// calls until ctx is done.
func (t *Tracker) watchFocus(ctx context.Context, b *rod.Browser, id string) {
	page, err := b.Context(ctx).PageFromTarget(proto.TargetTargetID(id))
	if err != nil {
		t.logger.Debug("browser: attach reader page", "target", id, "error", err)
		return
	}
	if err := (proto.RuntimeAddBinding{Name: focusBinding}).Call(page); err != nil {
		t.logger.Debug("browser: addBinding failed (may already exist)", "target", id, "error", err)
	}
	wait := page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == focusBinding {
			t.focused(id)
		}
	})
	if _, err := page.EvalOnNewDocument("(" + focusJS + ")()"); err != nil {
		t.logger.Debug("browser: focus script on new document", "target", id, "error", err)
	}
	if _, err := page.Context(ctx).Eval(focusJS); err != nil {
		t.logger.Debug("browser: focus script", "target", id, "error", err)
	}
	wait()
}
