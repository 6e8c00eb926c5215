package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"EchoFM/logger"
	"EchoFM/model"
	"EchoFM/repository"
)

// CreatePlaylistHandler creates a playlist owned by the caller.
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPublic    *bool  `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Playlist name is required")
		return
	}

	playlist := &model.Playlist{
		OwnerID:     userID,
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    true,
	}
	if req.IsPublic != nil {
		playlist.IsPublic = *req.IsPublic
	}

	if err := h.playlistRepo.Create(r.Context(), playlist); err != nil {
		logger.Error("Failed to create playlist", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create playlist")
		return
	}

	logger.Info("Playlist created",
		logger.Int64("playlistId", playlist.ID),
		logger.Int64("userId", userID))
	writeJSON(w, http.StatusCreated, playlist)
}

// ListPlaylistsHandler returns the caller's playlists.
func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlists, err := h.playlistRepo.ListByOwner(r.Context(), userID)
	if err != nil {
		logger.Error("Failed to list playlists", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list playlists")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"playlists": playlists})
}

// getVisiblePlaylist loads a playlist and enforces visibility: private
// playlists are only visible to their owner.
func (h *APIHandler) getVisiblePlaylist(w http.ResponseWriter, r *http.Request) *model.Playlist {
	playlistID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid playlist ID")
		return nil
	}

	playlist, err := h.playlistRepo.GetByID(r.Context(), playlistID)
	if err != nil {
		logger.Error("Failed to get playlist", logger.Int64("playlistId", playlistID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get playlist")
		return nil
	}
	if playlist == nil {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return nil
	}

	if !playlist.IsPublic {
		userID, err := GetUserIDFromContext(r.Context())
		if err != nil || userID != playlist.OwnerID {
			writeError(w, http.StatusNotFound, "Playlist not found")
			return nil
		}
	}
	return playlist
}

// GetPlaylistHandler returns one playlist with its songs hydrated from the
// song repository.
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	playlist := h.getVisiblePlaylist(w, r)
	if playlist == nil {
		return
	}

	ids := make([]int64, 0, len(playlist.Songs))
	for _, entry := range playlist.Songs {
		ids = append(ids, entry.SongID)
	}
	songs, err := h.songRepo.GetSongsByIDs(ids)
	if err != nil {
		logger.Error("Failed to hydrate playlist songs",
			logger.Int64("playlistId", playlist.ID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load playlist songs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"playlist": playlist,
		"songs":    songs,
	})
}

// requireOwnedPlaylist loads a playlist and rejects callers who do not own
// it.
func (h *APIHandler) requireOwnedPlaylist(w http.ResponseWriter, r *http.Request) *model.Playlist {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil
	}

	playlist := h.getVisiblePlaylist(w, r)
	if playlist == nil {
		return nil
	}
	if playlist.OwnerID != userID {
		writeError(w, http.StatusForbidden, "Only the owner can modify a playlist")
		return nil
	}
	return playlist
}

// UpdatePlaylistHandler edits playlist metadata. Owner only.
func (h *APIHandler) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	playlist := h.requireOwnedPlaylist(w, r)
	if playlist == nil {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		playlist.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		playlist.Description = *req.Description
	}
	if req.IsPublic != nil {
		playlist.IsPublic = *req.IsPublic
	}

	if err := h.playlistRepo.Update(r.Context(), playlist); err != nil {
		logger.Error("Failed to update playlist", logger.Int64("playlistId", playlist.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update playlist")
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// DeletePlaylistHandler removes a playlist and its entries. Owner only.
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	playlist := h.requireOwnedPlaylist(w, r)
	if playlist == nil {
		return
	}

	if err := h.playlistRepo.Delete(r.Context(), playlist.ID); err != nil {
		logger.Error("Failed to delete playlist", logger.Int64("playlistId", playlist.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete playlist")
		return
	}

	logger.Info("Playlist deleted", logger.Int64("playlistId", playlist.ID))
	w.WriteHeader(http.StatusNoContent)
}

// AddPlaylistSongHandler appends a song to a playlist. Owner only; adding
// a song that is already present is rejected.
func (h *APIHandler) AddPlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	playlist := h.requireOwnedPlaylist(w, r)
	if playlist == nil {
		return
	}

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

	if err := h.playlistRepo.AddSong(r.Context(), playlist.ID, req.SongID); err != nil {
		if errors.Is(err, repository.ErrDuplicatePlaylistSong) {
			writeError(w, http.StatusConflict, "Song is already in the playlist")
			return
		}
		logger.Error("Failed to add song to playlist",
			logger.Int64("playlistId", playlist.ID),
			logger.Int64("songId", req.SongID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to add song to playlist")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"playlistId": playlist.ID,
		"songId":     req.SongID,
	})
}

// RemovePlaylistSongHandler removes a song from a playlist. Owner only.
func (h *APIHandler) RemovePlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	playlist := h.requireOwnedPlaylist(w, r)
	if playlist == nil {
		return
	}

	songID, err := strconv.ParseInt(mux.Vars(r)["song_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid song ID")
		return
	}

	if err := h.playlistRepo.RemoveSong(r.Context(), playlist.ID, songID); err != nil {
		logger.Error("Failed to remove song from playlist",
			logger.Int64("playlistId", playlist.ID),
			logger.Int64("songId", songID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to remove song from playlist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
