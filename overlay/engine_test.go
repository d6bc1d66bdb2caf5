package overlay

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/readerlabels/overlay/internal/browser"
	"github.com/hazyhaar/readerlabels/overlay/internal/labels"
	"github.com/hazyhaar/readerlabels/overlay/internal/prefs"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

const readerPage = `<html><head><style>
.annotation-toolbar-color.yellow { background-color: rgb(255, 212, 0); }
</style></head><body>
<div class="toolbar">
  <button class="annotation-toolbar-color yellow" id="yellow"></button>
  <button data-color="#ff6666" id="red"></button>
</div>
</body></html>`

// fixture is an engine over a memory store with one static reader whose
// active state the test controls.
type fixture struct {
	e      *Engine
	store  prefs.Store
	reader *surface.Static

	mu     sync.Mutex
	active bool
}

func newFixture(t *testing.T, store prefs.Store) *fixture {
	t.Helper()
	if store == nil {
		store = prefs.NewMemory()
	}
	s, err := surface.ParseStatic("tab-1/frame-1", readerPage)
	require.NoError(t, err)

	f := &fixture{store: store, reader: s, active: true}
	f.e = New(Config{
		Prefs: store,
		Readers: ReaderFunc(func(context.Context) (surface.Handle, bool) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return surface.Handle{TargetID: "tab-1"}, f.active
		}),
		Locator: surface.LocatorFunc(func(_ context.Context, h surface.Handle) (surface.Surface, bool, error) {
			if h.TargetID != "tab-1" {
				return nil, false, nil
			}
			return s, true, nil
		}),
		RescanInterval: time.Hour,
	})
	t.Cleanup(f.e.Shutdown)
	return f
}

func (f *fixture) setActive(v bool) {
	f.mu.Lock()
	f.active = v
	f.mu.Unlock()
}

func (f *fixture) title(t *testing.T, id string) string {
	t.Helper()
	el, ok, err := f.reader.Document().ElementByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	v, _, err := el.Attr("title")
	require.NoError(t, err)
	return v
}

func TestRefreshActiveReader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.setActive(false)
	require.NoError(t, f.e.RefreshActiveReader(ctx))
	assert.Empty(t, f.e.Stats().Surfaces)

	f.setActive(true)
	require.NoError(t, f.e.RefreshActiveReader(ctx))
	require.NoError(t, f.e.RefreshActiveReader(ctx))
	assert.Equal(t, []string{"tab-1/frame-1"}, f.e.Stats().Surfaces)
	assert.Equal(t, "Yellow", f.title(t, "yellow"))
	assert.Equal(t, 1, f.reader.ActiveWatchers())
	assert.Equal(t, int64(3), f.e.Stats().Refreshes)
}

func TestRefreshActiveReader_SwallowsErrors(t *testing.T) {
	e := New(Config{
		Prefs: prefs.NewMemory(),
		Readers: ReaderFunc(func(context.Context) (surface.Handle, bool) {
			return surface.Handle{TargetID: "x"}, true
		}),
		Locator: surface.LocatorFunc(func(context.Context, surface.Handle) (surface.Surface, bool, error) {
			return nil, false, errors.New("target gone")
		}),
	})
	assert.NoError(t, e.RefreshActiveReader(context.Background()))
	assert.Equal(t, int64(1), e.Stats().Failures)
}

func TestHandleTabEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.e.HandleTabEvent(ctx, browser.TabEvent{Event: "add", Type: "tab", IDs: []string{"tab-1"},
		Extra: map[string]browser.TabExtra{"tab-1": {Type: "reader"}}})
	f.e.HandleTabEvent(ctx, browser.TabEvent{Event: "select", Type: "tab", IDs: []string{"tab-1"},
		Extra: map[string]browser.TabExtra{"tab-1": {Type: "library"}}})
	f.e.HandleTabEvent(ctx, browser.TabEvent{Event: "select", Type: "item", IDs: []string{"tab-1"}})
	f.e.HandleTabEvent(ctx, browser.TabEvent{Event: "select", Type: "tab"})
	assert.Empty(t, f.e.Stats().Surfaces, "non-reader events must be ignored")

	f.e.HandleTabEvent(ctx, browser.SelectReader("tab-1"))
	assert.Equal(t, []string{"tab-1/frame-1"}, f.e.Stats().Surfaces)

	f.e.HandleTabEvent(ctx, browser.CloseTab("tab-10"))
	assert.Len(t, f.e.Stats().Surfaces, 1, "close of another target")

	f.e.HandleTabEvent(ctx, browser.CloseTab("tab-1"))
	assert.Empty(t, f.e.Stats().Surfaces)
	assert.Equal(t, 0, f.reader.ActiveWatchers())
}

func TestPreferencePaneOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.e.RefreshActiveReader(ctx))

	// Typing persists without touching the reader.
	require.NoError(t, f.e.SetColorName(ctx, "general.yellow", "  Key Fin "))
	assert.Equal(t, "Yellow", f.title(t, "yellow"))
	got, err := f.e.Labels().ColorName(ctx, "general.yellow")
	require.NoError(t, err)
	assert.Equal(t, "Key Fin", got)

	// Leaving the field persists and refreshes.
	require.NoError(t, f.e.CommitColorName(ctx, "general.yellow", "Key Finding"))
	assert.Equal(t, "Key Finding", f.title(t, "yellow"))

	views, err := f.e.ColorEntries(ctx)
	require.NoError(t, err)
	require.Len(t, views, 8)
	assert.Equal(t, "general.yellow", views[0].ID)
	assert.Equal(t, "Key Finding", views[0].Display)
	assert.Equal(t, "Red", views[1].Display)

	cleared, err := f.e.ClearColorName(ctx, "general.yellow")
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.Equal(t, "Yellow", f.title(t, "yellow"))

	refreshes := f.e.Stats().Refreshes
	cleared, err = f.e.ClearColorName(ctx, "general.yellow")
	require.NoError(t, err)
	assert.False(t, cleared, "clearing an empty label is a no-op")
	assert.Equal(t, refreshes, f.e.Stats().Refreshes)

	_, err = f.e.ClearColorName(ctx, "general.teal")
	assert.ErrorIs(t, err, labels.ErrUnknownColor)
	assert.ErrorIs(t, f.e.CommitColorName(ctx, "general.teal", "x"), labels.ErrUnknownColor)
}

// fakeTabs is a TabSource the test drives directly.
type fakeTabs struct {
	mu   sync.Mutex
	subs map[int]func(browser.TabEvent)
	next int
}

func (f *fakeTabs) Subscribe(fn func(browser.TabEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = map[int]func(browser.TabEvent){}
	}
	f.next++
	id := f.next
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeTabs) emit(ev browser.TabEvent) {
	f.mu.Lock()
	subs := make([]func(browser.TabEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeTabs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func TestSession_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tabs := &fakeTabs{}

	sess, err := f.e.Start(ctx, SessionOptions{Tabs: tabs})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, tabs.count())

	_, err = f.e.Start(ctx, SessionOptions{})
	assert.ErrorIs(t, err, ErrSessionActive)

	tabs.emit(browser.SelectReader("tab-1"))
	require.Eventually(t, func() bool { return len(f.e.Stats().Surfaces) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Equal(t, 0, tabs.count())
	assert.Empty(t, f.e.Stats().Surfaces)
	assert.Equal(t, 0, f.reader.ActiveWatchers())
	assert.Equal(t, 0, f.reader.PendingUnloadHooks())

	again, err := f.e.Start(ctx, SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestSession_StartupRefresh(t *testing.T) {
	f := newFixture(t, nil)
	sess, err := f.e.Start(context.Background(), SessionOptions{StartupRefresh: true})
	require.NoError(t, err)
	defer sess.Close()

	require.Eventually(t, func() bool { return f.title(t, "yellow") == "Yellow" }, 2*time.Second, 10*time.Millisecond)
}

func TestSession_ExternalPrefsWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.db")
	store, err := prefs.Open(path)
	require.NoError(t, err)
	defer store.Close()
	other, err := prefs.Open(path)
	require.NoError(t, err)
	defer other.Close()

	f := newFixture(t, store)
	w := prefs.NewWatcher(store.DB, prefs.WatchOptions{Interval: 10 * time.Millisecond})
	sess, err := f.e.Start(ctx, SessionOptions{PrefsWatcher: w, StartupRefresh: true})
	require.NoError(t, err)
	defer sess.Close()

	require.Eventually(t, func() bool { return f.title(t, "yellow") == "Yellow" }, 2*time.Second, 10*time.Millisecond)
	// Let the watcher seed its version before the foreign write.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, labels.New(other, "").SetColorName(ctx, "general.yellow", "From Elsewhere"))
	require.Eventually(t, func() bool { return f.title(t, "yellow") == "From Elsewhere" }, 3*time.Second, 10*time.Millisecond)

	st := f.e.Stats()
	require.NotNil(t, st.Prefs)
	assert.GreaterOrEqual(t, st.Prefs.Fires, int64(1))
}

func TestAnnotateHTML(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemory()
	e := New(Config{Prefs: store})
	require.NoError(t, e.SetColorName(ctx, "general.yellow", "Key Finding"))

	var out strings.Builder
	st, err := AnnotateHTML(ctx, strings.NewReader(readerPage), &out, AnnotateOptions{Prefs: store})
	require.NoError(t, err)

	assert.Equal(t, int64(1), st.Controller.Applies)
	assert.Positive(t, st.Controller.Written)
	assert.Contains(t, out.String(), `title="Key Finding"`)
	assert.Contains(t, out.String(), `aria-label="Red"`)
	assert.Contains(t, out.String(), `id="__readerlabels_colors"`)
}
