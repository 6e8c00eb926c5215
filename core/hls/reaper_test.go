package hls

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func makeEntry(t *testing.T, root, id string, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, PlaylistName), []byte("#EXTM3U\n"), 0644); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(dir, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", dir, err)
	}
	return dir
}

func TestReapOlderThan(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})
	maxAge := 24 * time.Hour

	stale := makeEntry(t, c.Root(), "stale", 25*time.Hour)
	fresh := makeEntry(t, c.Root(), "fresh", time.Hour)

	if err := c.ReapOlderThan(maxAge); err != nil {
		t.Fatalf("ReapOlderThan: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale entry survived the reap")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh entry was reaped: %v", err)
	}
}

func TestReapBoundary(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})
	maxAge := time.Hour

	// An entry aged exactly maxAge is eligible; one a second younger is
	// not.
	atLimit := makeEntry(t, c.Root(), "at-limit", maxAge+time.Second)
	justUnder := makeEntry(t, c.Root(), "just-under", maxAge-time.Minute)

	if err := c.ReapOlderThan(maxAge); err != nil {
		t.Fatalf("ReapOlderThan: %v", err)
	}

	if _, err := os.Stat(atLimit); !os.IsNotExist(err) {
		t.Errorf("entry past max age survived the reap")
	}
	if _, err := os.Stat(justUnder); err != nil {
		t.Errorf("entry under max age was reaped: %v", err)
	}
}

func TestReapContinuesPastEntryFailures(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})
	maxAge := time.Hour

	// ReadDir scans lexically, so the entries that fail come first.
	stuck := makeEntry(t, c.Root(), "a-stuck", 2*time.Hour)
	vanishing := makeEntry(t, c.Root(), "b-vanishing", 2*time.Hour)
	stale := makeEntry(t, c.Root(), "c-stale", 2*time.Hour)

	// One entry refuses to go; another vanishes between enumeration and
	// delete, as a concurrent sweep would make it.
	c.removeEntry = func(path string) error {
		switch filepath.Base(path) {
		case "a-stuck":
			return errors.New("device or resource busy")
		case "b-vanishing":
			if err := os.RemoveAll(path); err != nil {
				return err
			}
			return os.ErrNotExist
		}
		return os.RemoveAll(path)
	}

	if err := c.ReapOlderThan(maxAge); err != nil {
		t.Fatalf("ReapOlderThan with failing entries: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale entry survived a sweep with earlier failures")
	}
	if _, err := os.Stat(vanishing); !os.IsNotExist(err) {
		t.Errorf("vanished entry reappeared: %v", err)
	}
	if _, err := os.Stat(stuck); err != nil {
		t.Errorf("undeletable entry disappeared: %v", err)
	}
}

func TestReapMissingRoot(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})
	if err := os.RemoveAll(c.Root()); err != nil {
		t.Fatalf("remove root: %v", err)
	}
	if err := c.ReapOlderThan(time.Hour); err != nil {
		t.Fatalf("ReapOlderThan on missing root: %v", err)
	}
}

func TestStartReaperStops(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})

	stop := c.StartReaper(10*time.Millisecond, time.Hour)
	time.Sleep(30 * time.Millisecond)
	stop()
	stop() // idempotent

	// A stopped reaper must leave new entries alone.
	makeEntry(t, c.Root(), "after-stop", 2*time.Hour)
	time.Sleep(30 * time.Millisecond)
	if _, err := os.Stat(filepath.Join(c.Root(), "after-stop")); err != nil {
		t.Errorf("entry reaped after stop: %v", err)
	}
}
