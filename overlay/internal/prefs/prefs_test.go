package prefs

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestSQLite_GetSet(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want unset", ok, err)
	}

	if err := s.Set(ctx, "a.colorNames.general.red", "Question"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "a.colorNames.general.red")
	if err != nil || !ok || v != "Question" {
		t.Fatalf("Get = (%q, %v, %v)", v, ok, err)
	}

	// Empty is stored distinctly from unset.
	if err := s.Set(ctx, "a.colorNames.general.red", ""); err != nil {
		t.Fatal(err)
	}
	v, ok, err = s.Get(ctx, "a.colorNames.general.red")
	if err != nil || !ok || v != "" {
		t.Fatalf("Get after clear = (%q, %v, %v)", v, ok, err)
	}
}

func TestSQLite_List(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	s.Set(ctx, "x.colorNames.general.red", "R")
	s.Set(ctx, "x.colorNames.general.blue", "B")
	s.Set(ctx, "y.other", "nope")

	pairs, err := s.List(ctx, "x.colorNames.")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 2 {
		t.Fatalf("List: got %d pairs, want 2", len(pairs))
	}
	if pairs[0].Key != "x.colorNames.general.blue" {
		t.Errorf("List order: first=%s", pairs[0].Key)
	}
}

func TestMemory_GetSetList(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("empty store reported key as set")
	}
	m.Set(ctx, "p.b", "2")
	m.Set(ctx, "p.a", "1")
	m.Set(ctx, "q.a", "3")

	pairs, _ := m.List(ctx, "p.")
	if len(pairs) != 2 || pairs[0].Key != "p.a" || pairs[1].Value != "2" {
		t.Fatalf("List = %+v", pairs)
	}
}

func TestWatcher_FiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	w := NewWatcher(s.DB, WatchOptions{Interval: 10 * time.Millisecond})

	var fired atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func() error {
		fired.Add(1)
		return nil
	})

	// Let the watcher seed its version before writing.
	time.Sleep(30 * time.Millisecond)
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatalf("action never fired; stats=%+v", w.Stats())
	}
}

func TestWatcher_RetriesFailedAction(t *testing.T) {
	s := OpenMemory(t)

	var calls atomic.Int64
	w := NewWatcher(s.DB, WatchOptions{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	// updated_at is in milliseconds; make sure the write lands on a new value.
	time.Sleep(2 * time.Millisecond)
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Fires == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	st := w.Stats()
	if st.Fires != 1 {
		t.Fatalf("Fires = %d, want 1 (stats=%+v)", st.Fires, st)
	}
	if calls.Load() < 2 {
		t.Errorf("action calls = %d, want >= 2", calls.Load())
	}
}

func TestWatcher_DataVersionSeesOtherConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	writer, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	watched, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer watched.Close()
	watched.DB.SetMaxOpenConns(1)

	version, err := VersionFuncByName("data_version")
	if err != nil {
		t.Fatal(err)
	}
	w := NewWatcher(watched.DB, WatchOptions{Interval: 10 * time.Millisecond, Version: version})

	var fired atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func() error {
		fired.Add(1)
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	if err := writer.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatalf("write from another connection not detected; stats=%+v", w.Stats())
	}
}

func TestVersionFuncByName(t *testing.T) {
	for _, name := range []string{"", "updated_at", "data_version"} {
		if _, err := VersionFuncByName(name); err != nil {
			t.Errorf("VersionFuncByName(%q): %v", name, err)
		}
	}
	if _, err := VersionFuncByName("mtime"); err == nil {
		t.Error("unknown detector accepted")
	}
}
