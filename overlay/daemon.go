// CLAUDE:SUMMARY Daemon wires Chrome, the reader tab tracker, the SQLite preference store and the Engine into one long-running process.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/readerlabels/overlay/internal/browser"
	"github.com/hazyhaar/readerlabels/overlay/internal/prefs"
	"github.com/hazyhaar/readerlabels/overlay/internal/surface"
)

// Daemon is the top-level orchestrator: one browser, one preference
// database, one engine session.
type Daemon struct {
	cfg     *FileConfig
	mgr     *browser.Manager
	tracker *browser.Tracker
	db      *prefs.SQLite
	watchDB *prefs.SQLite
	version prefs.VersionFunc
	engine  *Engine
	logger  *slog.Logger

	mu         sync.Mutex
	session    *Session
	http       *http.Server
	trackerCtx context.CancelFunc
	wg         sync.WaitGroup
}

// NewDaemon opens the preference database and prepares the browser
// manager. Nothing is launched until Start.
func NewDaemon(cfg *FileConfig, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tracker, err := browser.NewTracker(cfg.Readers.URLPatterns, logger)
	if err != nil {
		return nil, err
	}
	version, err := prefs.VersionFuncByName(cfg.Prefs.Detector)
	if err != nil {
		return nil, err
	}
	db, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		return nil, err
	}
	watchDB := db
	if cfg.Prefs.Detector == "data_version" {
		// data_version counts commits from other connections, so the
		// watcher polls on its own single connection.
		watchDB, err = prefs.Open(cfg.Prefs.Path)
		if err != nil {
			db.Close()
			return nil, err
		}
		watchDB.DB.SetMaxOpenConns(1)
	}

	mode := browser.ModeHeadless
	if cfg.Browser.Mode == "headful" {
		mode = browser.ModeHeadful
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Mode:             mode,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})

	e := New(Config{
		Prefs:          db,
		Namespace:      cfg.Prefs.Namespace,
		Readers:        tracker,
		Locator:        surface.RodLocators(mgr, cfg.Readers.FrameSelectors, logger),
		Override:       cfg.Override,
		RescanInterval: cfg.Overlay.RescanInterval,
		ReadyTimeout:   cfg.Overlay.ReadyTimeout,
		ApplyTimeout:   cfg.Overlay.ApplyTimeout,
		Logger:         logger,
	})

	return &Daemon{
		cfg:     cfg,
		mgr:     mgr,
		tracker: tracker,
		db:      db,
		watchDB: watchDB,
		version: version,
		engine:  e,
		logger:  logger,
	}, nil
}

// Engine returns the daemon's engine.
func (d *Daemon) Engine() *Engine { return d.engine }

// Start launches or attaches to Chrome, follows reader tabs, opens the
// configured reader URLs and serves the HTTP API when an address is set.
func (d *Daemon) Start(ctx context.Context) error {
	b, err := d.mgr.Start(ctx)
	if err != nil {
		return fmt.Errorf("overlay: start browser: %w", err)
	}

	d.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: func() {
			d.stopTracker()
			d.engine.Shutdown()
		},
		AfterRecycle: func(b *rod.Browser) {
			d.runTracker(ctx, b)
			d.reopen(ctx)
		},
	})
	d.runTracker(ctx, b)

	watcher := prefs.NewWatcher(d.watchDB.DB, prefs.WatchOptions{
		Version:  d.version,
		Interval: d.cfg.Prefs.PollInterval,
		Debounce: d.cfg.Prefs.Debounce,
		Logger:   d.logger,
	})
	s, err := d.engine.Start(ctx, SessionOptions{
		Tabs:           d.tracker,
		PrefsWatcher:   watcher,
		StartupRefresh: true,
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.session = s
	d.mu.Unlock()

	d.reopen(ctx)

	if d.cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:              d.cfg.HTTP.Addr,
			Handler:           d.engine.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		d.mu.Lock()
		d.http = srv
		d.mu.Unlock()
		go func() {
			d.logger.Info("overlay: http listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error("overlay: http server", "error", err)
			}
		}()
	}
	return nil
}

func (d *Daemon) runTracker(ctx context.Context, b *rod.Browser) {
	tctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.trackerCtx = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.tracker.Run(tctx, b); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("overlay: tab tracker stopped", "error", err)
		}
	}()
}

func (d *Daemon) stopTracker() {
	d.mu.Lock()
	cancel := d.trackerCtx
	d.trackerCtx = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// reopen opens the configured reader URLs in new tabs. The tracker picks
// them up through target discovery.
func (d *Daemon) reopen(ctx context.Context) {
	for _, u := range d.cfg.Browser.Open {
		go func(u string) {
			if _, err := d.mgr.OpenReader(ctx, u); err != nil {
				d.logger.Error("overlay: open reader", "url", u, "error", err)
			}
		}(u)
	}
}

// Stop closes the session, the HTTP server, the browser and the database.
func (d *Daemon) Stop() {
	d.mu.Lock()
	s, srv := d.session, d.http
	d.session, d.http = nil, nil
	d.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(ctx)
		cancel()
	}
	if s != nil {
		s.Close()
	}
	d.stopTracker()
	d.mgr.Close()
	if d.watchDB != d.db {
		d.watchDB.Close()
	}
	if err := d.db.Close(); err != nil {
		d.logger.Warn("overlay: close prefs", "error", err)
	}
}
