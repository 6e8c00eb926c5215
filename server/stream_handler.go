package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"EchoFM/cache"
	"EchoFM/core/hls"
	"EchoFM/core/stream"
	"EchoFM/logger"
)

// proxyClient serves the progressive range proxy. No client timeout; the
// server's write timeout bounds the transfer.
var proxyClient = &http.Client{}

func setStreamCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// StreamManifestHandler serves the locally generated HLS manifest for a
// song, generating the segmented representation on first request.
// URL: GET /api/songs/{id}/stream.m3u8
func (h *APIHandler) StreamManifestHandler(w http.ResponseWriter, r *http.Request) {
	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}

	if !h.cfg.HLSLocal {
		// Local generation disabled, hand the client the store-hosted
		// manifest instead.
		manifestURL, err := h.resolver.ResolveSegmented(song.ContentID, stream.QualityHigh)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to resolve manifest URL")
			return
		}
		http.Redirect(w, r, manifestURL, http.StatusFound)
		return
	}

	sourceURL := h.store.StreamURL(song.ContentID, stream.QualityHigh.Bitrate())
	entry, err := h.segments.EnsureSegmented(r.Context(), song.ContentID, sourceURL)
	if err != nil {
		switch {
		case errors.Is(err, hls.ErrInvalidContentID):
			writeError(w, http.StatusBadRequest, "Invalid content ID")
		case errors.Is(err, hls.ErrSourceFetch):
			logger.Error("Source fetch failed",
				logger.String("contentId", song.ContentID),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to fetch source audio")
		case errors.Is(err, hls.ErrTranscode):
			logger.Error("Transcode failed",
				logger.String("contentId", song.ContentID),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to generate stream")
		default:
			logger.Error("Stream generation failed",
				logger.String("contentId", song.ContentID),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to generate stream")
		}
		return
	}

	setStreamCORS(w)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, entry.PlaylistPath)
}

// SegmentHandler serves one media segment of a locally generated stream,
// consulting the Redis hot cache before disk.
// URL: GET /api/songs/{id}/hls/{segment}
func (h *APIHandler) SegmentHandler(w http.ResponseWriter, r *http.Request) {
	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}
	name := mux.Vars(r)["segment"]

	if cache.RedisClient != nil {
		if data, err := cache.GetSegmentCache(hls.SegmentKey(song.ContentID, name)); err == nil && data != nil {
			setStreamCORS(w)
			w.Header().Set("Content-Type", "video/mp2t")
			w.Header().Set("Cache-Control", "public, max-age=86400")
			w.Write(data)
			return
		}
	}

	path, err := h.segments.SegmentPath(song.ContentID, name)
	if err != nil {
		if errors.Is(err, hls.ErrInvalidContentID) {
			writeError(w, http.StatusBadRequest, "Invalid content ID")
			return
		}
		writeError(w, http.StatusNotFound, "Segment not found")
		return
	}

	setStreamCORS(w)
	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

// ResolveStreamHandler returns the delivery URL for a song at the
// requested quality without proxying any media.
// URL: GET /api/songs/{id}/stream?quality=<tier>&format=<progressive|segmented>
func (h *APIHandler) ResolveStreamHandler(w http.ResponseWriter, r *http.Request) {
	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}

	quality := stream.ParseQuality(r.URL.Query().Get("quality"))
	format := stream.Format(r.URL.Query().Get("format"))

	var streamURL string
	var err error
	switch format {
	case stream.FormatSegmented:
		if h.cfg.HLSLocal {
			streamURL = "/api/songs/" + mux.Vars(r)["id"] + "/stream.m3u8"
		} else {
			streamURL, err = h.resolver.ResolveSegmented(song.ContentID, quality)
		}
	default:
		format = stream.FormatProgressive
		streamURL, err = h.resolver.ResolveProgressive(song.ContentID, quality)
	}
	if err != nil {
		logger.Error("Failed to resolve stream URL",
			logger.String("contentId", song.ContentID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to resolve stream URL")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"streamUrl": streamURL,
		"quality":   quality,
		"format":    format,
		"song":      song,
	})
}

// AudioProxyHandler streams the progressive rendition through this server,
// forwarding the Range header and mirroring the upstream's partial-content
// response so seeking works.
// URL: GET /api/songs/{id}/audio?quality=<tier>
func (h *APIHandler) AudioProxyHandler(w http.ResponseWriter, r *http.Request) {
	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}

	quality := stream.ParseQuality(r.URL.Query().Get("quality"))
	upstream, err := h.resolver.ResolveProgressive(song.ContentID, quality)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve audio URL")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build upstream request")
		return
	}
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	start := time.Now()
	resp, err := proxyClient.Do(req)
	if err != nil {
		logger.Error("Upstream audio request failed",
			logger.String("contentId", song.ContentID),
			logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "Failed to fetch audio from media store")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		logger.Warn("Upstream audio request returned unexpected status",
			logger.String("contentId", song.ContentID),
			logger.Int("status", resp.StatusCode))
		writeError(w, http.StatusBadGateway, "Media store returned an error")
		return
	}

	setStreamCORS(w)
	w.Header().Set("Accept-Ranges", "bytes")
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "audio/mpeg")
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		w.Header().Set("Content-Range", cr)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Players abort ranged requests constantly; log at debug only.
		logger.Debug("Audio proxy copy ended early",
			logger.String("contentId", song.ContentID),
			logger.Duration("elapsed", time.Since(start)),
			logger.ErrorField(err))
	}
}
