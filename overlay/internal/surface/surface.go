// CLAUDE:SUMMARY Surface/Document/Element abstraction over a reader rendering context (rod page, iframe, or static HTML).
// Package surface abstracts the rendering context of one reader instance:
// its document, readiness, unload signal, subtree mutations and script
// globals. The overlay engine only talks to these interfaces; the rod
// implementation drives a live Chrome page over CDP and the static
// implementation works on a parsed HTML snapshot.
package surface

import (
	"context"
	"errors"
)

// ErrDetached is returned when the underlying document is gone.
var ErrDetached = errors.New("surface: document detached")

// Surface is the rendering context (window + document) of one reader.
type Surface interface {
	// ID is stable for the lifetime of the rendering context.
	ID() string
	Document() Document
	// BodyReady reports whether the document body exists yet.
	BodyReady(ctx context.Context) (bool, error)
	// OnceReady calls fn once when the document finishes loading.
	OnceReady(ctx context.Context, fn func()) (cancel func())
	// OnceUnload calls fn once when the document is unloaded or replaced.
	OnceUnload(ctx context.Context, fn func()) (cancel func())
	// WatchSubtree calls fn after child-list mutations anywhere under the
	// body. Calls may be coalesced.
	WatchSubtree(ctx context.Context, fn func()) (Watcher, error)
	// SetGlobal assigns a JSON-encodable value to a window global.
	SetGlobal(ctx context.Context, name string, value any) error
}

// Watcher is an active subtree watcher.
type Watcher interface {
	Disconnect() error
}

// Document is the DOM of a surface.
type Document interface {
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	ElementByID(ctx context.Context, id string) (Element, bool, error)
	// AppendScript inserts a script element into head, falling back to
	// the document element and then the body.
	AppendScript(ctx context.Context, s Script) error
}

// Script describes an inline script element.
type Script struct {
	ID     string
	Type   string
	Attrs  map[string]string
	Source string
}

// Element is one DOM element.
type Element interface {
	// Key identifies the underlying node; two Elements for the same node
	// share a key.
	Key() string
	Attr(name string) (string, bool, error)
	SetAttr(name, value string) error
	InlineStyle(prop string) (string, error)
	ComputedStyle(prop string) (string, error)
	Remove() error
}
