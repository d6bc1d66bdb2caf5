package controller

import (
	"context"
	"sync"
	"time"

	"github.com/hazyhaar/readerlabels/overlay/internal/labels"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
	"github.com/hazyhaar/readerlabels/overlay/internal/swatch"
)

// windowState is the live overlay on one surface: the subtree watcher, the
// annotation loop and the unload hook. Passes run on the loop goroutine
// only, except the first one which Apply runs inline.
type windowState struct {
	c       *Controller
	id      string
	surface surface.Surface
	hexMap  labels.HexMap

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	watcher      surface.Watcher
	cancelUnload func()
	started      bool
	stopOnce     sync.Once
}

func newWindowState(c *Controller, s surface.Surface, m labels.HexMap) *windowState {
	ctx, cancel := context.WithCancel(context.Background())
	return &windowState{
		c:       c,
		id:      s.ID(),
		surface: s,
		hexMap:  m,
		kick:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// notify schedules a pass. Notifications arriving while one is queued are
// coalesced.
func (st *windowState) notify() {
	select {
	case st.kick <- struct{}{}:
	default:
	}
}

func (st *windowState) start(interval time.Duration) {
	st.started = true
	go st.loop(interval)
}

func (st *windowState) loop(interval time.Duration) {
	defer close(st.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-st.ctx.Done():
			return
		case <-st.kick:
			st.pass(st.ctx)
		case <-ticker.C:
			st.pass(st.ctx)
		}
	}
}

func (st *windowState) pass(ctx context.Context) {
	res, err := swatch.Annotate(ctx, st.surface.Document(), st.hexMap)
	st.c.passes.Add(1)
	st.c.written.Add(int64(res.Written))
	if err != nil && ctx.Err() == nil {
		st.c.errors.Add(1)
		st.c.cfg.Logger.Debug("controller: annotation pass failed", "surface", st.id, "error", err)
	}
}

// stop disconnects the watcher, stops the loop and waits for it, and
// cancels the unload hook. Safe to call more than once.
func (st *windowState) stop() {
	st.stopOnce.Do(func() {
		st.cancel()
		if st.watcher != nil {
			if err := st.watcher.Disconnect(); err != nil {
				st.c.cfg.Logger.Debug("controller: disconnect watcher", "surface", st.id, "error", err)
			}
		}
		if st.started {
			<-st.done
		}
		if st.cancelUnload != nil {
			st.cancelUnload()
		}
		st.c.teardowns.Add(1)
	})
}
