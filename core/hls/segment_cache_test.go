package hls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeFetcher writes a placeholder source file and counts its calls.
type fakeFetcher struct {
	calls int32
	fail  bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) error {
	atomic.AddInt32(&f.calls, 1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.fail {
		return errors.New("connection refused")
	}
	return os.WriteFile(dest, []byte("source-audio"), 0644)
}

// fakeProcessor writes a playlist plus a couple of segments and counts its
// calls.
type fakeProcessor struct {
	calls int32
	fail  bool
	// partial writes the playlist before failing, to simulate ffmpeg dying
	// mid-run.
	partial bool
	delay   time.Duration
	// blockID holds transcodes whose input path contains it until release
	// is closed; started is closed once the held transcode begins.
	blockID string
	started chan struct{}
	release chan struct{}
}

func (p *fakeProcessor) ProcessToHLS(ctx context.Context, inputFile, outputM3U8, segmentPattern, audioBitrate, hlsSegmentTime string) (float32, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.blockID != "" && strings.Contains(inputFile, p.blockID) {
		close(p.started)
		<-p.release
	}
	if p.fail {
		if p.partial {
			os.WriteFile(outputM3U8, []byte("#EXTM3U\n"), 0644)
		}
		return 0, errors.New("ffmpeg exited with status 1")
	}

	dir := filepath.Dir(outputM3U8)
	for i := 0; i < 3; i++ {
		seg := filepath.Join(dir, fmt.Sprintf(filepath.Base(segmentPattern), i))
		if err := os.WriteFile(seg, []byte("ts-data"), 0644); err != nil {
			return 0, err
		}
	}
	playlist := "#EXTM3U\n#EXT-X-VERSION:3\nsegment000.ts\nsegment001.ts\nsegment002.ts\n#EXT-X-ENDLIST\n"
	if err := os.WriteFile(outputM3U8, []byte(playlist), 0644); err != nil {
		return 0, err
	}
	return 30, nil
}

func (p *fakeProcessor) GetAudioDuration(ctx context.Context, inputFile string) (float32, error) {
	return 30, nil
}

func newTestCache(t *testing.T, proc *fakeProcessor, fetch *fakeFetcher) *SegmentCache {
	t.Helper()
	c, err := NewSegmentCache(t.TempDir(), proc, fetch, "128k", "10")
	if err != nil {
		t.Fatalf("NewSegmentCache: %v", err)
	}
	return c
}

func TestEnsureSegmentedGeneratesOnce(t *testing.T) {
	proc := &fakeProcessor{}
	fetch := &fakeFetcher{}
	c := newTestCache(t, proc, fetch)

	entry, err := c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src")
	if err != nil {
		t.Fatalf("first EnsureSegmented: %v", err)
	}
	if _, err := os.Stat(entry.PlaylistPath); err != nil {
		t.Fatalf("playlist not on disk: %v", err)
	}

	// Second call must hit the fast path: no fetch, no transcode.
	again, err := c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src")
	if err != nil {
		t.Fatalf("second EnsureSegmented: %v", err)
	}
	if again.PlaylistPath != entry.PlaylistPath {
		t.Errorf("playlist path changed between calls: %q vs %q", again.PlaylistPath, entry.PlaylistPath)
	}
	if n := atomic.LoadInt32(&proc.calls); n != 1 {
		t.Errorf("processor ran %d times, want 1", n)
	}
	if n := atomic.LoadInt32(&fetch.calls); n != 1 {
		t.Errorf("fetcher ran %d times, want 1", n)
	}
}

func TestEnsureSegmentedRemovesTempAudio(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})

	entry, err := c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src")
	if err != nil {
		t.Fatalf("EnsureSegmented: %v", err)
	}

	temp := filepath.Join(entry.Dir, "temp_audio.mp3")
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Errorf("temp source still present after generation: %v", err)
	}
}

func TestEnsureSegmentedConcurrentSingleFlight(t *testing.T) {
	proc := &fakeProcessor{delay: 50 * time.Millisecond}
	fetch := &fakeFetcher{}
	c := newTestCache(t, proc, fetch)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&proc.calls); got != 1 {
		t.Errorf("processor ran %d times for one content ID, want 1", got)
	}
}

func TestEnsureSegmentedDistinctIDsProceedIndependently(t *testing.T) {
	proc := &fakeProcessor{
		blockID: "song-slow",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newTestCache(t, proc, &fakeFetcher{})

	slowDone := make(chan error, 1)
	go func() {
		_, err := c.EnsureSegmented(context.Background(), "song-slow", "http://media.test/src")
		slowDone <- err
	}()

	select {
	case <-proc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("held transcode never started")
	}

	// song-fast must finish while song-slow's transcode is still running.
	fastDone := make(chan error, 1)
	go func() {
		_, err := c.EnsureSegmented(context.Background(), "song-fast", "http://media.test/src")
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		if err != nil {
			t.Fatalf("EnsureSegmented(song-fast): %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("song-fast gated behind song-slow's generation")
	}

	select {
	case err := <-slowDone:
		t.Fatalf("song-slow finished before release: %v", err)
	default:
	}

	close(proc.release)
	if err := <-slowDone; err != nil {
		t.Fatalf("EnsureSegmented(song-slow): %v", err)
	}
	if got := atomic.LoadInt32(&proc.calls); got != 2 {
		t.Errorf("processor ran %d times for 2 content IDs, want 2", got)
	}
}

func TestEnsureSegmentedSurvivesCallerCancel(t *testing.T) {
	proc := &fakeProcessor{}
	c := newTestCache(t, proc, &fakeFetcher{})

	// The caller is gone before the generation starts; the shared pipeline
	// must still run to completion.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry, err := c.EnsureSegmented(ctx, "song-1", "http://media.test/src")
	if err != nil {
		t.Fatalf("EnsureSegmented with canceled caller: %v", err)
	}
	if _, err := os.Stat(entry.PlaylistPath); err != nil {
		t.Fatalf("playlist not on disk: %v", err)
	}
}

func TestEnsureSegmentedFetchFailure(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{fail: true})

	_, err := c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src")
	if !errors.Is(err, ErrSourceFetch) {
		t.Fatalf("error = %v, want ErrSourceFetch", err)
	}
	if _, serr := os.Stat(filepath.Join(c.Root(), "song-1", PlaylistName)); !os.IsNotExist(serr) {
		t.Errorf("playlist present after fetch failure")
	}
}

func TestEnsureSegmentedTranscodeFailureRemovesPartialPlaylist(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{fail: true, partial: true}, &fakeFetcher{})

	_, err := c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src")
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("error = %v, want ErrTranscode", err)
	}
	if _, serr := os.Stat(filepath.Join(c.Root(), "song-1", PlaylistName)); !os.IsNotExist(serr) {
		t.Errorf("partial playlist survived a failed transcode")
	}
}

func TestEnsureSegmentedRetryAfterFailure(t *testing.T) {
	proc := &fakeProcessor{fail: true}
	fetch := &fakeFetcher{}
	c := newTestCache(t, proc, fetch)

	if _, err := c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src"); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	proc.fail = false
	if _, err := c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestEnsureSegmentedInvalidContentID(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})

	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		if _, err := c.EnsureSegmented(context.Background(), id, "http://media.test/src"); !errors.Is(err, ErrInvalidContentID) {
			t.Errorf("EnsureSegmented(%q) error = %v, want ErrInvalidContentID", id, err)
		}
	}
}

func TestSegmentPath(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})
	if _, err := c.EnsureSegmented(context.Background(), "song-1", "http://media.test/src"); err != nil {
		t.Fatalf("EnsureSegmented: %v", err)
	}

	path, err := c.SegmentPath("song-1", "segment000.ts")
	if err != nil {
		t.Fatalf("SegmentPath: %v", err)
	}
	if filepath.Base(path) != "segment000.ts" {
		t.Errorf("unexpected segment path %q", path)
	}

	if _, err := c.SegmentPath("song-1", "segment999.ts"); !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("missing segment error = %v, want ErrSegmentNotFound", err)
	}
	if _, err := c.SegmentPath("no-such-id", "segment000.ts"); !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("missing entry error = %v, want ErrSegmentNotFound", err)
	}
}

func TestSegmentPathRejectsTraversal(t *testing.T) {
	c := newTestCache(t, &fakeProcessor{}, &fakeFetcher{})

	for _, name := range []string{"", "../secret", "sub/file.ts", ".hidden", ".."} {
		if _, err := c.SegmentPath("song-1", name); !errors.Is(err, ErrSegmentNotFound) {
			t.Errorf("SegmentPath(%q) error = %v, want ErrSegmentNotFound", name, err)
		}
	}
}
