package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// VersionFunc reads a change token from the database. Two calls returning
// different values mean the preference table may have changed.
type VersionFunc func(ctx context.Context, db *sql.DB) (int64, error)

// DataVersion uses PRAGMA data_version, which increments whenever another
// connection commits to the same database file.
func DataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// VersionFuncByName returns the detector for a configured name:
// "updated_at" (or empty) for MaxUpdatedAt, "data_version" for DataVersion.
// DataVersion is per connection; poll it on a handle limited to one.
func VersionFuncByName(name string) (VersionFunc, error) {
	switch name {
	case "", "updated_at":
		return MaxUpdatedAt, nil
	case "data_version":
		return DataVersion, nil
	}
	return nil, fmt.Errorf("prefs: unknown change detector %q", name)
}

// MaxUpdatedAt uses MAX(updated_at) of the prefs table. It also sees writes
// made on the watcher's own connection.
func MaxUpdatedAt(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(updated_at), 0) FROM prefs").Scan(&v)
	return v, err
}

// WatchOptions tunes the watcher.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// 0 fires immediately.
	Debounce time.Duration
	// Version overrides the default MaxUpdatedAt detector.
	Version VersionFunc
	Logger  *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Version == nil {
		o.Version = MaxUpdatedAt
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls the preference database and runs an action when it changes.
type Watcher struct {
	db   *sql.DB
	opts WatchOptions

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	fires   atomic.Int64
}

// WatchStats are point-in-time counters.
type WatchStats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Fires           int64 `json:"fires"`
}

// NewWatcher creates a Watcher over db. Call Run to start polling.
func NewWatcher(db *sql.DB, opts WatchOptions) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() WatchStats {
	return WatchStats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Fires:           w.fires.Load(),
	}
}

// Run blocks until ctx is cancelled. When the version token changes and the
// debounce window passes quietly, action is called. A failing action leaves
// the version unadvanced so the next poll retries it.
func (w *Watcher) Run(ctx context.Context, action func() error) {
	log := w.opts.Logger

	if v, err := w.opts.Version(ctx, w.db); err != nil {
		log.Warn("prefs: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Version(ctx, w.db)
			if err != nil {
				w.errors.Add(1)
				log.Warn("prefs: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(log, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(log, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(log *slog.Logger, action func() error, ver int64) {
	if err := action(); err != nil {
		w.errors.Add(1)
		log.Error("prefs: change action failed", "error", err, "version", ver)
		return
	}
	w.fires.Add(1)
	w.version.Store(ver)
	log.Debug("prefs: change applied", "version", ver)
}
