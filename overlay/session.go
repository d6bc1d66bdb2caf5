package overlay

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hazyhaar/readerlabels/overlay/internal/browser"
	"github.com/hazyhaar/readerlabels/overlay/internal/prefs"
)

// ErrSessionActive is returned by Start while another session is open.
var ErrSessionActive = errors.New("overlay: session already started")

// TabSource delivers host tab events.
type TabSource interface {
	Subscribe(fn func(browser.TabEvent)) (unsubscribe func())
}

// SessionOptions wires an Engine to its event sources. Both are optional.
type SessionOptions struct {
	Tabs TabSource
	// PrefsWatcher refreshes the active reader when another process
	// writes the preference store.
	PrefsWatcher *prefs.Watcher
	// StartupRefresh applies to the active reader as soon as the session
	// starts.
	StartupRefresh bool
}

// Session is the lifetime of an Engine's subscriptions. Events and
// refreshes are handled one at a time on the session goroutine.
type Session struct {
	ID string

	e       *Engine
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	unsub   func()
	events  chan browser.TabEvent
	refresh chan struct{}
	once    sync.Once
}

// Start subscribes the engine to tab events and preference changes.
func (e *Engine) Start(ctx context.Context, opts SessionOptions) (*Session, error) {
	if !e.sessionOpen.CompareAndSwap(false, true) {
		return nil, ErrSessionActive
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:      uuid.Must(uuid.NewV7()).String(),
		e:       e,
		cancel:  cancel,
		events:  make(chan browser.TabEvent, 64),
		refresh: make(chan struct{}, 1),
	}

	if opts.Tabs != nil {
		s.unsub = opts.Tabs.Subscribe(func(ev browser.TabEvent) {
			select {
			case s.events <- ev:
			default:
				e.logger.Warn("overlay: tab event dropped", "event", ev.Event, "ids", ev.IDs)
			}
		})
	}

	s.wg.Add(1)
	go s.loop(ctx)

	if opts.PrefsWatcher != nil {
		e.watcher.Store(opts.PrefsWatcher)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			opts.PrefsWatcher.Run(ctx, func() error {
				s.Refresh()
				return nil
			})
		}()
	}
	if opts.StartupRefresh {
		s.Refresh()
	}

	e.logger.Info("overlay: session started", "session", s.ID)
	return s, nil
}

// Refresh queues a refresh of the active reader. Queued refreshes
// coalesce.
func (s *Session) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *Session) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.e.HandleTabEvent(ctx, ev)
		case <-s.refresh:
			rctx, cancel := context.WithTimeout(ctx, s.e.cfg.ApplyTimeout)
			_ = s.e.RefreshActiveReader(rctx)
			cancel()
		}
	}
}

// Close unsubscribes, stops the session goroutines and tears down every
// surface. Only the first call has an effect.
func (s *Session) Close() error {
	s.once.Do(func() {
		if s.unsub != nil {
			s.unsub()
		}
		s.cancel()
		s.wg.Wait()
		s.e.Shutdown()
		s.e.watcher.Store(nil)
		s.e.sessionOpen.Store(false)
		s.e.logger.Info("overlay: session closed", "session", s.ID)
	})
	return nil
}
