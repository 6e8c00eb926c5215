package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"EchoFM/config"
	"EchoFM/core/audio"
	"EchoFM/core/auth"
	"EchoFM/core/hls"
	"EchoFM/core/stream"
	"EchoFM/model"
	"EchoFM/repository"
	"EchoFM/storage"
)

// fakeSongRepo serves songs from a map. Only the lookups the streaming
// endpoints touch are populated.
type fakeSongRepo struct {
	songs map[int64]*model.Song
}

func (r *fakeSongRepo) GetSongByID(id int64) (*model.Song, error) {
	return r.songs[id], nil
}

func (r *fakeSongRepo) CreateSong(song *model.Song) (int64, error)       { return 0, nil }
func (r *fakeSongRepo) GetSongsByIDs(ids []int64) ([]*model.Song, error) { return nil, nil }
func (r *fakeSongRepo) ListSongs(filter repository.SongFilter) ([]*model.Song, int64, error) {
	return nil, 0, nil
}
func (r *fakeSongRepo) UpdateSong(song *model.Song) error                  { return nil }
func (r *fakeSongRepo) DeleteSong(id int64) error                          { return nil }
func (r *fakeSongRepo) IncrementPlays(id int64) error                      { return nil }
func (r *fakeSongRepo) GetTrendingSongs(limit int) ([]*model.Song, error)  { return nil, nil }
func (r *fakeSongRepo) LikeSong(userID, songID int64) error                { return nil }
func (r *fakeSongRepo) UnlikeSong(userID, songID int64) error              { return nil }
func (r *fakeSongRepo) IsLiked(userID, songID int64) (bool, error)         { return false, nil }
func (r *fakeSongRepo) GetLikedGenres(userID int64) ([]string, error)      { return nil, nil }
func (r *fakeSongRepo) GetRecommendedSongs(userID int64, genres []string, limit int) ([]*model.Song, error) {
	return nil, nil
}

// fakeStore builds URLs off a configurable base, so tests can point the
// progressive proxy at an httptest upstream.
type fakeStore struct {
	base string
}

func (s *fakeStore) StreamURL(contentID, bitrate string) string {
	return s.base + "/audio/" + contentID + "/" + bitrate + ".mp3"
}

func (s *fakeStore) ManifestURL(contentID, bitrate string) string {
	return s.base + "/hls/" + contentID + "/" + bitrate + "/playlist.m3u8"
}

func (s *fakeStore) UploadAudio(ctx context.Context, r io.Reader, size int64, contentType string) (*storage.UploadResult, error) {
	return &storage.UploadResult{ContentID: "uploaded"}, nil
}

func (s *fakeStore) UploadImage(ctx context.Context, r io.Reader, size int64, contentType string) (*storage.UploadResult, error) {
	return &storage.UploadResult{ContentID: "cover"}, nil
}

func (s *fakeStore) DeleteAudio(ctx context.Context, contentID string) error { return nil }
func (s *fakeStore) DeleteImage(ctx context.Context, imageID string) error   { return nil }
func (s *fakeStore) PresignUpload(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	return s.base + "/presigned/" + objectKey, nil
}

// fakeFetcher writes a placeholder source file.
type fakeFetcher struct {
	fail bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) error {
	if f.fail {
		return errors.New("connection refused")
	}
	return os.WriteFile(dest, []byte("source"), 0644)
}

// fakeProcessor writes a playlist and three segments.
type fakeProcessor struct{}

func (fakeProcessor) ProcessToHLS(ctx context.Context, inputFile, outputM3U8, segmentPattern, audioBitrate, hlsSegmentTime string) (float32, error) {
	dir := filepath.Dir(outputM3U8)
	for i := 0; i < 3; i++ {
		seg := filepath.Join(dir, fmt.Sprintf(filepath.Base(segmentPattern), i))
		if err := os.WriteFile(seg, []byte("ts-data"), 0644); err != nil {
			return 0, err
		}
	}
	return 30, os.WriteFile(outputM3U8, []byte("#EXTM3U\nsegment000.ts\n#EXT-X-ENDLIST\n"), 0644)
}

func (fakeProcessor) GetAudioDuration(ctx context.Context, inputFile string) (float32, error) {
	return 30, nil
}

var _ audio.Processor = fakeProcessor{}

func newTestHandler(t *testing.T, store *fakeStore, fetcher *fakeFetcher) *APIHandler {
	t.Helper()

	segments, err := hls.NewSegmentCache(t.TempDir(), fakeProcessor{}, fetcher, "128k", "10")
	if err != nil {
		t.Fatalf("NewSegmentCache: %v", err)
	}

	cfg := &config.Config{
		HLSLocal:       true,
		HLSBitrate:     "128k",
		HLSSegmentTime: "10",
		MaxUploadBytes: 50 << 20,
	}

	songRepo := &fakeSongRepo{songs: map[int64]*model.Song{
		1: {ID: 1, UserID: 7, Title: "First", Artist: "Tester", ContentID: "content-1", IsPublic: true},
	}}

	return NewAPIHandler(
		nil, songRepo, nil,
		store,
		stream.NewResolver(store),
		segments,
		fakeProcessor{},
		auth.NewTokenIssuer("test-secret", time.Hour),
		cfg,
	)
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("error response Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("error body missing the error field")
	}
	return body["error"]
}

func TestStreamManifest(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/1/stream.m3u8", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Errorf("Content-Type = %q, want application/vnd.apple.mpegurl", ct)
	}
	if origin := resp.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", origin)
	}
	if !strings.HasPrefix(resp.Body.String(), "#EXTM3U") {
		t.Errorf("body does not look like an HLS playlist: %q", resp.Body.String())
	}
}

func TestStreamManifestSourceFetchFailure(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{fail: true})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/1/stream.m3u8", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
	decodeError(t, resp)
}

func TestStreamManifestUnknownSong(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/999/stream.m3u8", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
	decodeError(t, resp)
}

func TestSegmentServing(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	router := NewRouter(h)

	// Generate first.
	manifest := httptest.NewRequest(http.MethodGet, "/api/songs/1/stream.m3u8", nil)
	router.ServeHTTP(httptest.NewRecorder(), manifest)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/1/hls/segment000.ts", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "video/mp2t" {
		t.Errorf("Content-Type = %q, want video/mp2t", ct)
	}
	if origin := resp.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", origin)
	}
	if resp.Body.String() != "ts-data" {
		t.Errorf("segment body = %q", resp.Body.String())
	}
}

func TestSegmentNotFound(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/1/hls/segment999.ts", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
	decodeError(t, resp)
}

func TestResolveStreamQualityFallback(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/1/stream?quality=bogus", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", resp.Code, resp.Body.String())
	}

	var body struct {
		StreamURL string `json:"streamUrl"`
		Quality   string `json:"quality"`
		Format    string `json:"format"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	// Unknown tiers resolve as high.
	if body.Quality != "high" {
		t.Errorf("quality = %q, want high", body.Quality)
	}
	if body.Format != "progressive" {
		t.Errorf("format = %q, want progressive", body.Format)
	}
	if want := "http://media.test/audio/content-1/192k.mp3"; body.StreamURL != want {
		t.Errorf("streamUrl = %q, want %q", body.StreamURL, want)
	}
}

func TestAudioProxyMirrorsRangeResponse(t *testing.T) {
	const payload = "0123456789abcdef"

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "audio.mp3", time.Now(), strings.NewReader(payload))
	}))
	defer upstream.Close()

	h := newTestHandler(t, &fakeStore{base: upstream.URL}, &fakeFetcher{})
	router := NewRouter(h)

	// Full request mirrors a plain 200.
	req := httptest.NewRequest(http.MethodGet, "/api/songs/1/audio", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if resp.Header().Get("Accept-Ranges") != "bytes" {
		t.Errorf("Accept-Ranges = %q, want bytes", resp.Header().Get("Accept-Ranges"))
	}
	if resp.Body.String() != payload {
		t.Errorf("body = %q, want full payload", resp.Body.String())
	}

	// Ranged request mirrors 206 + Content-Range.
	req = httptest.NewRequest(http.MethodGet, "/api/songs/1/audio?quality=low", nil)
	req.Header.Set("Range", "bytes=4-7")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.Code)
	}
	if cr := resp.Header().Get("Content-Range"); cr != "bytes 4-7/16" {
		t.Errorf("Content-Range = %q, want bytes 4-7/16", cr)
	}
	if resp.Body.String() != "4567" {
		t.Errorf("body = %q, want %q", resp.Body.String(), "4567")
	}
}

func TestAudioProxyUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	h := newTestHandler(t, &fakeStore{base: upstream.URL}, &fakeFetcher{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/1/audio", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.Code)
	}
	decodeError(t, resp)
}

func TestPrivateSongHiddenFromAnonymous(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	h.songRepo.(*fakeSongRepo).songs[2] = &model.Song{
		ID: 2, UserID: 7, Title: "Hidden", ContentID: "content-2", IsPublic: false,
	}
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/2/stream.m3u8", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestPrivateSongOwnerCanStream(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	h.songRepo.(*fakeSongRepo).songs[2] = &model.Song{
		ID: 2, UserID: 7, Title: "Hidden", ContentID: "content-2", IsPublic: false,
	}
	router := NewRouter(h)

	ownerToken, err := h.tokens.GenerateToken(7, "owner")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/songs/2/stream.m3u8", nil)
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("owner status = %d, want 200; body %s", resp.Code, resp.Body.String())
	}
	if !strings.HasPrefix(resp.Body.String(), "#EXTM3U") {
		t.Errorf("body does not look like an HLS playlist: %q", resp.Body.String())
	}

	// A valid token for someone else still sees a 404.
	otherToken, err := h.tokens.GenerateToken(9, "other")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/songs/2/stream.m3u8", nil)
	req.Header.Set("Authorization", "Bearer "+otherToken)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("non-owner status = %d, want 404", resp.Code)
	}
}

func TestPublicRouteIgnoresBadToken(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/songs/1/stream.m3u8", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", resp.Code, resp.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t, &fakeStore{base: "http://media.test"}, &fakeFetcher{})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodOptions, "/api/songs/1/stream.m3u8", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", resp.Code)
	}
	if origin := resp.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", origin)
	}
}
