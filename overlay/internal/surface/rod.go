// CLAUDE:SUMMARY Rod-backed Surface using a CDP binding, an injected MutationObserver, and lifecycle/frame events for ready and unload.
package surface

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

//go:embed watch.js
var watchJS string

// disconnectTimeout bounds the page-side cleanup of a watcher.
const disconnectTimeout = 5 * time.Second

// bindingName is the CDP binding the injected observer calls. One binding
// serves every watcher on a target; the payload carries the watcher token.
const bindingName = "__readerlabels_notify"

// Rod is a Surface over a rod page: a top-level tab or an iframe obtained
// with Element.Frame.
type Rod struct {
	page    *rod.Page
	id      string
	frameID proto.PageFrameID
	logger  *slog.Logger
}

// NewRod wraps page. The surface ID combines the target and frame ids so a
// reader iframe and its host tab are distinct surfaces. The surface outlives
// the context page was obtained with: every call takes its own context.
func NewRod(page *rod.Page, logger *slog.Logger) *Rod {
	if logger == nil {
		logger = slog.Default()
	}
	page = page.Context(context.Background())
	id := string(page.TargetID)
	frameID := page.FrameID
	if frameID == "" {
		frameID = proto.PageFrameID(page.TargetID)
	}
	if string(frameID) != string(page.TargetID) {
		id += "/" + string(frameID)
	}
	return &Rod{page: page, id: id, frameID: frameID, logger: logger}
}

func (r *Rod) ID() string         { return r.id }
func (r *Rod) Document() Document { return rodDoc{r} }

func (r *Rod) BodyReady(ctx context.Context) (bool, error) {
	res, err := r.page.Context(ctx).Eval(`() => !!(document && document.body)`)
	if err != nil {
		return false, fmt.Errorf("surface: body ready: %w", err)
	}
	return res.Value.Bool(), nil
}

func (r *Rod) OnceReady(ctx context.Context, fn func()) func() {
	if err := (proto.PageSetLifecycleEventsEnabled{Enabled: true}).Call(r.page.Context(ctx)); err != nil {
		r.logger.Debug("surface: enable lifecycle events failed", "surface", r.id, "error", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	wait := r.page.Context(ctx).EachEvent(func(e *proto.PageLifecycleEvent) bool {
		if e.FrameID != r.frameID || e.Name != "DOMContentLoaded" {
			return false
		}
		fn()
		return true
	})
	go wait()
	return cancel
}

func (r *Rod) OnceUnload(ctx context.Context, fn func()) func() {
	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	fire := func() bool {
		once.Do(fn)
		return true
	}
	wait := r.page.Context(ctx).EachEvent(
		func(e *proto.PageFrameNavigated) bool {
			if e.Frame == nil || e.Frame.ID != r.frameID {
				return false
			}
			return fire()
		},
		func(e *proto.PageFrameDetached) bool {
			if e.FrameID != r.frameID {
				return false
			}
			return fire()
		},
	)
	go wait()
	return cancel
}

func (r *Rod) WatchSubtree(ctx context.Context, fn func()) (Watcher, error) {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(r.page.Context(ctx)); err != nil {
		r.logger.Debug("surface: addBinding failed (may already exist)", "surface", r.id, "error", err)
	}

	token := uuid.NewString()
	wctx, cancel := context.WithCancel(context.Background())
	wait := r.page.Context(wctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == bindingName && e.Payload == token {
			fn()
		}
	})
	go wait()

	res, err := r.page.Context(ctx).Eval(watchJS, bindingName, token)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("surface: inject watcher: %w", err)
	}
	if !res.Value.Bool() {
		cancel()
		return nil, fmt.Errorf("surface: inject watcher: %w", ErrDetached)
	}
	return &rodWatcher{r: r, token: token, stop: cancel}, nil
}

func (r *Rod) SetGlobal(ctx context.Context, name string, value any) error {
	_, err := r.page.Context(ctx).Eval(`(name, value) => { window[name] = value; }`, name, value)
	if err != nil {
		return fmt.Errorf("surface: set global %s: %w", name, err)
	}
	return nil
}

type rodWatcher struct {
	r     *Rod
	token string
	stop  context.CancelFunc
	once  sync.Once
	err   error
}

// Disconnect stops relaying binding calls and disconnects the in-page
// observer. After a navigation the page-side observer is already gone; the
// eval error is returned for logging only.
func (w *rodWatcher) Disconnect() error {
	w.once.Do(func() {
		w.stop()
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		_, err := w.r.page.Context(ctx).Eval(`(token) => {
			const r = window.__readerlabels_watchers;
			if (r && r[token]) { r[token](); }
		}`, w.token)
		if err != nil {
			w.err = fmt.Errorf("surface: disconnect watcher: %w", err)
		}
	})
	return w.err
}

// --- Document ---

type rodDoc struct{ r *Rod }

func (d rodDoc) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := d.r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("surface: query %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (d rodDoc) ElementByID(ctx context.Context, id string) (Element, bool, error) {
	has, el, err := d.r.page.Context(ctx).Has("#" + id)
	if err != nil {
		return nil, false, fmt.Errorf("surface: element #%s: %w", id, err)
	}
	if !has {
		return nil, false, nil
	}
	return &rodElement{el: el}, true, nil
}

func (d rodDoc) AppendScript(ctx context.Context, s Script) error {
	attrs := s.Attrs
	if attrs == nil {
		attrs = map[string]string{}
	}
	_, err := d.r.page.Context(ctx).Eval(`(id, type, attrs, source) => {
		const script = document.createElement("script");
		if (id) { script.id = id; }
		if (type) { script.type = type; }
		for (const [k, v] of Object.entries(attrs)) { script.setAttribute(k, v); }
		script.textContent = source;
		const target = document.head || document.documentElement || document.body;
		if (!target) { throw new Error("no append target"); }
		target.appendChild(script);
	}`, s.ID, s.Type, attrs, s.Source)
	if err != nil {
		return fmt.Errorf("surface: append script: %w", err)
	}
	return nil
}

// --- Element ---

type rodElement struct {
	el  *rod.Element
	key string
}

// Key is the backend node id, stable across queries for the same node.
func (e *rodElement) Key() string {
	if e.key != "" {
		return e.key
	}
	node, err := e.el.Describe(0, false)
	if err != nil || node == nil {
		e.key = "obj:" + string(e.el.Object.ObjectID)
		return e.key
	}
	e.key = "node:" + strconv.Itoa(int(node.BackendNodeID))
	return e.key
}

func (e *rodElement) Attr(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) SetAttr(name, value string) error {
	_, err := e.el.Eval(`function (n, v) { this.setAttribute(n, v); }`, name, value)
	return err
}

func (e *rodElement) InlineStyle(prop string) (string, error) {
	res, err := e.el.Eval(`function (p) { return this.style ? this.style.getPropertyValue(p) : ""; }`, prop)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *rodElement) ComputedStyle(prop string) (string, error) {
	res, err := e.el.Eval(`function (p) {
		const view = this.ownerDocument && this.ownerDocument.defaultView;
		if (!view || !view.getComputedStyle) { return ""; }
		return view.getComputedStyle(this).getPropertyValue(p);
	}`, prop)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *rodElement) Remove() error {
	return e.el.Remove()
}
