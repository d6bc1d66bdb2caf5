// CLAUDE:SUMMARY In-memory Surface over a parsed HTML snapshot with selector queries, inline and class styles, mutation and unload hooks.
package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Static is a Surface over a parsed HTML document. It has no script
// engine: injected scripts are stored, globals are recorded as JSON, and
// computed styles are resolved from inline styles and the document's own
// <style> rules.
//
// Static is safe for concurrent use. Hooks are called outside the lock.
type Static struct {
	id string

	mu          sync.Mutex
	root        *html.Node
	loading     bool
	keys        map[*html.Node]string
	nextKey     int
	nextHook    int
	readyHooks  map[int]func()
	unloadHooks map[int]func()
	watchers    map[int]func()
	globals     map[string]json.RawMessage
	attrWrites  int
}

// NewStatic parses r into a Static surface.
func NewStatic(id string, r io.Reader) (*Static, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("surface: parse html: %w", err)
	}
	return &Static{
		id:          id,
		root:        root,
		keys:        make(map[*html.Node]string),
		readyHooks:  make(map[int]func()),
		unloadHooks: make(map[int]func()),
		watchers:    make(map[int]func()),
		globals:     make(map[string]json.RawMessage),
	}, nil
}

// ParseStatic is NewStatic over a string.
func ParseStatic(id, doc string) (*Static, error) {
	return NewStatic(id, strings.NewReader(doc))
}

func (s *Static) ID() string         { return s.id }
func (s *Static) Document() Document { return staticDoc{s} }

// SetLoading marks the document as still loading: BodyReady reports false
// until MarkReady is called.
func (s *Static) SetLoading() {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
}

// MarkReady ends loading and fires pending ready hooks.
func (s *Static) MarkReady() {
	s.mu.Lock()
	s.loading = false
	hooks := drain(s.readyHooks)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Unload fires pending unload hooks, as a window unload would.
func (s *Static) Unload() {
	s.mu.Lock()
	hooks := drain(s.unloadHooks)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (s *Static) BodyReady(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loading && findFirst(s.root, atom.Body) != nil, nil
}

func (s *Static) OnceReady(_ context.Context, fn func()) func() {
	return s.addHook(s.readyHooks, fn)
}

func (s *Static) OnceUnload(_ context.Context, fn func()) func() {
	return s.addHook(s.unloadHooks, fn)
}

func (s *Static) addHook(set map[int]func(), fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHook++
	id := s.nextHook
	set[id] = fn
	return func() {
		s.mu.Lock()
		delete(set, id)
		s.mu.Unlock()
	}
}

func (s *Static) WatchSubtree(_ context.Context, fn func()) (Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if findFirst(s.root, atom.Body) == nil {
		return nil, fmt.Errorf("surface: watch: %w", ErrDetached)
	}
	s.nextHook++
	id := s.nextHook
	s.watchers[id] = fn
	return &staticWatcher{s: s, id: id}, nil
}

func (s *Static) SetGlobal(_ context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("surface: set global %s: %w", name, err)
	}
	s.mu.Lock()
	s.globals[name] = data
	s.mu.Unlock()
	return nil
}

// Global returns the JSON value last assigned to a window global.
func (s *Static) Global(name string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.globals[name]
	return v, ok
}

// ActiveWatchers returns the number of connected subtree watchers.
func (s *Static) ActiveWatchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// PendingUnloadHooks returns the number of registered unload hooks.
func (s *Static) PendingUnloadHooks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unloadHooks)
}

// AttrWrites counts SetAttr calls that reached the document.
func (s *Static) AttrWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrWrites
}

// SetInnerHTML replaces the children of the first element matching
// selector with the parsed fragment and notifies subtree watchers.
func (s *Static) SetInnerHTML(selector, fragment string) error {
	s.mu.Lock()
	matches := parseSelector(selector).queryAll(s.root)
	if len(matches) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("surface: no element matches %q", selector)
	}
	parent := matches[0]
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("surface: parse fragment: %w", err)
	}
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	watchers := snapshot(s.watchers)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
	return nil
}

// Render writes the current document as HTML.
func (s *Static) Render(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return html.Render(w, s.root)
}

func (s *Static) keyOf(n *html.Node) string {
	if k, ok := s.keys[n]; ok {
		return k
	}
	s.nextKey++
	k := fmt.Sprintf("%s#%d", s.id, s.nextKey)
	s.keys[n] = k
	return k
}

type staticWatcher struct {
	s    *Static
	id   int
	once sync.Once
}

func (w *staticWatcher) Disconnect() error {
	w.once.Do(func() {
		w.s.mu.Lock()
		delete(w.s.watchers, w.id)
		w.s.mu.Unlock()
	})
	return nil
}

// --- Document ---

type staticDoc struct{ s *Static }

func (d staticDoc) QueryAll(_ context.Context, sel string) ([]Element, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var out []Element
	for _, n := range parseSelector(sel).queryAll(d.s.root) {
		out = append(out, &staticElement{s: d.s, n: n, key: d.s.keyOf(n)})
	}
	return out, nil
}

func (d staticDoc) ElementByID(_ context.Context, id string) (Element, bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var found *html.Node
	walk(d.s.root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && getAttr(n, "id") == id {
			found = n
		}
	})
	if found == nil {
		return nil, false, nil
	}
	return &staticElement{s: d.s, n: found, key: d.s.keyOf(found)}, true, nil
}

func (d staticDoc) AppendScript(_ context.Context, sc Script) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	target := findFirst(d.s.root, atom.Head)
	if target == nil {
		target = findFirst(d.s.root, atom.Html)
	}
	if target == nil {
		target = findFirst(d.s.root, atom.Body)
	}
	if target == nil {
		return fmt.Errorf("surface: append script: %w", ErrDetached)
	}

	n := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	if sc.ID != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: sc.ID})
	}
	if sc.Type != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "type", Val: sc.Type})
	}
	for k, v := range sc.Attrs {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: v})
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: sc.Source})
	target.AppendChild(n)
	return nil
}

// --- Element ---

type staticElement struct {
	s   *Static
	n   *html.Node
	key string
}

func (e *staticElement) Key() string { return e.key }

func (e *staticElement) Attr(name string) (string, bool, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	v, ok := lookupAttr(e.n, name)
	return v, ok, nil
}

func (e *staticElement) SetAttr(name, value string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.attrWrites++
	for i := range e.n.Attr {
		if e.n.Attr[i].Key == name {
			e.n.Attr[i].Val = value
			return nil
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

func (e *staticElement) InlineStyle(prop string) (string, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return parseDeclarations(getAttr(e.n, "style"))[strings.ToLower(prop)], nil
}

// ComputedStyle resolves prop from the inline style, then from the last
// matching rule of the document's <style> elements.
func (e *staticElement) ComputedStyle(prop string) (string, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	prop = strings.ToLower(prop)
	if v := parseDeclarations(getAttr(e.n, "style"))[prop]; v != "" {
		return v, nil
	}
	var css strings.Builder
	walk(e.s.root, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Style {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					css.WriteString(c.Data)
					css.WriteByte('\n')
				}
			}
		}
	})
	var val string
	for _, r := range parseStylesheet(css.String()) {
		if v, ok := r.decls[prop]; ok && r.sel.matches(e.n) {
			val = v
		}
	}
	return val, nil
}

func (e *staticElement) Remove() error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.n.Parent != nil {
		e.n.Parent.RemoveChild(e.n)
	}
	return nil
}

func findFirst(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.DataAtom == a {
			found = n
		}
	})
	return found
}

func drain(m map[int]func()) []func() {
	out := snapshot(m)
	for k := range m {
		delete(m, k)
	}
	return out
}

// snapshot returns the hooks in registration order.
func snapshot(m map[int]func()) []func() {
	last := 0
	for k := range m {
		if k > last {
			last = k
		}
	}
	out := make([]func(), 0, len(m))
	for i := 1; i <= last; i++ {
		if fn, ok := m[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
