package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"EchoFM/cache"
	"EchoFM/logger"
)

// PlaySongHandler records a playback: bumps the play counter and pushes
// the song onto the caller's recently-played list.
// URL: POST /api/songs/{id}/play
func (h *APIHandler) PlaySongHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}

	if err := h.songRepo.IncrementPlays(song.ID); err != nil {
		logger.Error("Failed to increment plays", logger.Int64("songId", song.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to record play")
		return
	}

	// Recently-played is best-effort; playback recording must not fail on
	// a cache hiccup.
	if cache.RedisClient != nil {
		if err := cache.PushRecentlyPlayed(r.Context(), userID, song.ID); err != nil {
			logger.Warn("Failed to push recently played",
				logger.Int64("userId", userID),
				logger.Int64("songId", song.ID),
				logger.ErrorField(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"songId": song.ID})
}

// RecentlyPlayedHandler returns the caller's recently played songs, most
// recent first, capped at the list limit.
// URL: GET /api/users/recently-played
func (h *APIHandler) RecentlyPlayedHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > cache.RecentlyPlayedLimit {
		limit = cache.RecentlyPlayedLimit
	}

	ids, err := cache.GetRecentlyPlayed(r.Context(), userID, limit)
	if err != nil {
		logger.Error("Failed to get recently played", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get recently played")
		return
	}

	songs, err := h.songRepo.GetSongsByIDs(ids)
	if err != nil {
		logger.Error("Failed to hydrate recently played", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get recently played")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"songs": songs})
}

// QueueHandler multiplexes the play-queue operations, mirroring how the
// queue is a single Redis-backed resource per user.
// URL: /api/queue
//   - GET: current queue
//   - POST {songId}: append
//   - DELETE ?songId= : remove one; ?clear=true : drop everything
//   - PUT {songIds: [...]} : reorder; ?shuffle=true : shuffle
func (h *APIHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		items, err := cache.GetQueue(ctx, userID)
		if err != nil {
			logger.Error("Failed to get queue", logger.Int64("userId", userID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to get queue")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"queue": items})

	case http.MethodPost:
		var req struct {
			SongID int64 `json:"songId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SongID == 0 {
			writeError(w, http.StatusBadRequest, "songId is required")
			return
		}

		song, err := h.songRepo.GetSongByID(req.SongID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get song")
			return
		}
		if song == nil {
			writeError(w, http.StatusNotFound, "Song not found")
			return
		}

		item := cache.QueueItem{
			SongID: song.ID,
			Title:  song.Title,
			Artist: song.Artist,
			Album:  song.Album,
			Cover:  song.CoverURL,
		}
		if err := cache.AddToQueue(ctx, userID, item); err != nil {
			logger.Error("Failed to add song to queue",
				logger.Int64("userId", userID),
				logger.Int64("songId", req.SongID),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to add song to queue")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"songId": req.SongID})

	case http.MethodDelete:
		if r.URL.Query().Get("clear") == "true" {
			if err := cache.ClearQueue(ctx, userID); err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to clear queue")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Queue cleared"})
			return
		}

		songID, err := strconv.ParseInt(r.URL.Query().Get("songId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "songId query parameter is required")
			return
		}
		if err := cache.RemoveFromQueue(ctx, userID, songID); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to remove song from queue")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"songId": songID})

	case http.MethodPut:
		if r.URL.Query().Get("shuffle") == "true" {
			if err := cache.ShuffleQueue(ctx, userID); err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to shuffle queue")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Queue shuffled"})
			return
		}

		var req struct {
			SongIDs []int64 `json:"songIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.SongIDs) == 0 {
			writeError(w, http.StatusBadRequest, "songIds list is required")
			return
		}
		if err := cache.UpdateQueueOrder(ctx, userID, req.SongIDs); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reorder queue")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Queue reordered"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
