package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"EchoFM/logger"
	"EchoFM/model"
	"EchoFM/repository"
	"EchoFM/storage"
)

// audioContentTypes maps accepted upload extensions to the content type
// stored alongside the object.
var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
}

type songResponse struct {
	*model.Song
	StreamUrls interface{} `json:"streamUrls,omitempty"`
	Liked      bool        `json:"liked,omitempty"`
}

// UploadSongHandler ingests an audio file plus metadata.
// Expected multipart form fields:
// - audioFile: the audio file (mp3, wav or flac)
// - title: song title (required)
// - artist, album, genre, isPublic: optional metadata
// - coverFile: cover art image (optional)
func (h *APIHandler) UploadSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse multipart form, file may exceed the upload limit")
		return
	}

	audioFile, audioHeader, err := r.FormFile("audioFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing 'audioFile' in form")
		return
	}
	defer audioFile.Close()

	ext := strings.ToLower(filepath.Ext(audioHeader.Filename))
	contentType, ok := audioContentTypes[ext]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unsupported audio format, expected mp3, wav or flac")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "Missing 'title' in form")
		return
	}
	artist := strings.TrimSpace(r.FormValue("artist"))
	if artist == "" {
		artist = "Unknown Artist"
	}
	album := strings.TrimSpace(r.FormValue("album"))
	if album == "" {
		album = "Single"
	}
	genre := r.FormValue("genre")
	if !model.ValidGenre(genre) {
		genre = "Other"
	}
	isPublic := true
	if v := r.FormValue("isPublic"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			isPublic = parsed
		}
	}

	// Spool to disk so ffprobe can read the duration before ingest.
	if err := os.MkdirAll(h.cfg.UploadDir, 0755); err != nil {
		logger.Error("Failed to create upload dir", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	tmp, err := os.CreateTemp(h.cfg.UploadDir, "ingest-*"+ext)
	if err != nil {
		logger.Error("Failed to create temp file", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, audioFile)
	if err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	if err := tmp.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	duration, err := h.processor.GetAudioDuration(r.Context(), tmpPath)
	if err != nil {
		logger.Warn("Failed to probe audio duration",
			logger.String("file", audioHeader.Filename),
			logger.ErrorField(err))
	}

	src, err := os.Open(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	defer src.Close()

	result, err := h.store.UploadAudio(r.Context(), src, size, contentType)
	if err != nil {
		logger.Error("Audio ingest failed",
			logger.String("title", title),
			logger.ErrorField(err))
		if errors.Is(err, storage.ErrUploadFailed) {
			writeError(w, http.StatusBadGateway, "Media store rejected the upload")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to store audio")
		return
	}

	song := &model.Song{
		UserID:    userID,
		Title:     title,
		Artist:    artist,
		Album:     album,
		Genre:     genre,
		ContentID: result.ContentID,
		Duration:  duration,
		IsPublic:  isPublic,
		FileSize:  size,
		Format:    strings.TrimPrefix(ext, "."),
	}

	// Cover art is optional and failure to store it is not fatal.
	if coverFile, coverHeader, err := r.FormFile("coverFile"); err == nil {
		defer coverFile.Close()
		coverType := coverHeader.Header.Get("Content-Type")
		if strings.HasPrefix(coverType, "image/") {
			cover, cerr := h.store.UploadImage(r.Context(), coverFile, coverHeader.Size, coverType)
			if cerr != nil {
				logger.Warn("Cover upload failed", logger.ErrorField(cerr))
			} else {
				song.CoverURL = cover.URL
				song.CoverID = cover.ContentID
			}
		}
	} else if err != http.ErrMissingFile {
		writeError(w, http.StatusBadRequest, "Error processing cover file")
		return
	}

	songID, err := h.songRepo.CreateSong(song)
	if err != nil {
		logger.Error("Failed to create song record",
			logger.String("contentId", song.ContentID),
			logger.ErrorField(err))
		// Keep the store consistent with the database.
		if derr := h.store.DeleteAudio(r.Context(), song.ContentID); derr != nil {
			logger.Warn("Failed to clean up ingested audio", logger.ErrorField(derr))
		}
		writeError(w, http.StatusInternalServerError, "Failed to create song")
		return
	}
	song.ID = songID

	logger.Info("Song uploaded",
		logger.Int64("songId", songID),
		logger.Int64("userId", userID),
		logger.String("contentId", song.ContentID),
		logger.String("title", title))

	urls, _ := h.resolver.ResolveAllTiers(song.ContentID)
	writeJSON(w, http.StatusCreated, songResponse{Song: song, StreamUrls: urls})
}

// ListSongsHandler returns a filtered, paginated song listing.
// Query params: search, genre, mine=true, page, pageSize.
func (h *APIHandler) ListSongsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	filter := repository.SongFilter{
		Search:     q.Get("search"),
		Genre:      q.Get("genre"),
		Page:       page,
		PageSize:   pageSize,
		PublicOnly: true,
	}
	if q.Get("mine") == "true" {
		filter.UserID = userID
		filter.PublicOnly = false
	}

	songs, total, err := h.songRepo.ListSongs(filter)
	if err != nil {
		logger.Error("Failed to list songs", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list songs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"songs": songs,
		"total": total,
	})
}

// getAccessibleSong loads a song and enforces visibility: private songs
// are only visible to their uploader.
func (h *APIHandler) getAccessibleSong(w http.ResponseWriter, r *http.Request) *model.Song {
	vars := mux.Vars(r)
	songID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid song ID")
		return nil
	}

	song, err := h.songRepo.GetSongByID(songID)
	if err != nil {
		logger.Error("Failed to get song", logger.Int64("songId", songID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get song")
		return nil
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "Song not found")
		return nil
	}

	if !song.IsPublic {
		userID, err := GetUserIDFromContext(r.Context())
		if err != nil || userID != song.UserID {
			writeError(w, http.StatusNotFound, "Song not found")
			return nil
		}
	}
	return song
}

// GetSongHandler returns one song with its per-tier streaming URLs.
func (h *APIHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}

	liked := false
	if userID, err := GetUserIDFromContext(r.Context()); err == nil {
		liked, _ = h.songRepo.IsLiked(userID, song.ID)
	}

	urls, err := h.resolver.ResolveAllTiers(song.ContentID)
	if err != nil {
		logger.Error("Failed to resolve stream URLs",
			logger.String("contentId", song.ContentID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to resolve stream URLs")
		return
	}

	writeJSON(w, http.StatusOK, songResponse{Song: song, StreamUrls: urls, Liked: liked})
}

// UpdateSongHandler edits song metadata. Owner only.
func (h *APIHandler) UpdateSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}
	if song.UserID != userID {
		writeError(w, http.StatusForbidden, "Only the uploader can edit a song")
		return
	}

	var req struct {
		Title    *string `json:"title"`
		Artist   *string `json:"artist"`
		Album    *string `json:"album"`
		Genre    *string `json:"genre"`
		IsPublic *bool   `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		song.Title = strings.TrimSpace(*req.Title)
	}
	if req.Artist != nil {
		song.Artist = strings.TrimSpace(*req.Artist)
	}
	if req.Album != nil {
		song.Album = strings.TrimSpace(*req.Album)
	}
	if req.Genre != nil && model.ValidGenre(*req.Genre) {
		song.Genre = *req.Genre
	}
	if req.IsPublic != nil {
		song.IsPublic = *req.IsPublic
	}

	if err := h.songRepo.UpdateSong(song); err != nil {
		logger.Error("Failed to update song", logger.Int64("songId", song.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update song")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// DeleteSongHandler removes a song, its stored objects and its cached
// segments. Owner only.
func (h *APIHandler) DeleteSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}
	if song.UserID != userID {
		writeError(w, http.StatusForbidden, "Only the uploader can delete a song")
		return
	}

	if err := h.store.DeleteAudio(r.Context(), song.ContentID); err != nil {
		logger.Error("Failed to delete stored audio",
			logger.String("contentId", song.ContentID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete stored audio")
		return
	}
	if song.CoverID != "" {
		if err := h.store.DeleteImage(r.Context(), song.CoverID); err != nil {
			logger.Warn("Failed to delete cover image",
				logger.String("coverId", song.CoverID),
				logger.ErrorField(err))
		}
	}

	// Drop the local cache entry so a re-upload under a recycled ID never
	// serves stale segments.
	if err := os.RemoveAll(filepath.Join(h.segments.Root(), song.ContentID)); err != nil {
		logger.Warn("Failed to remove cached segments",
			logger.String("contentId", song.ContentID),
			logger.ErrorField(err))
	}

	if err := h.songRepo.DeleteSong(song.ID); err != nil {
		logger.Error("Failed to delete song record", logger.Int64("songId", song.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete song")
		return
	}

	logger.Info("Song deleted",
		logger.Int64("songId", song.ID),
		logger.String("contentId", song.ContentID))
	w.WriteHeader(http.StatusNoContent)
}

// TrendingSongsHandler returns the most played public songs.
func (h *APIHandler) TrendingSongsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	songs, err := h.songRepo.GetTrendingSongs(limit)
	if err != nil {
		logger.Error("Failed to get trending songs", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get trending songs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"songs": songs})
}

// RecommendedSongsHandler suggests unheard public songs in the genres the
// user has liked.
func (h *APIHandler) RecommendedSongsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	genres, err := h.songRepo.GetLikedGenres(userID)
	if err != nil {
		logger.Error("Failed to get liked genres", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get recommendations")
		return
	}
	if len(genres) == 0 {
		// Nothing liked yet, fall back to trending.
		songs, terr := h.songRepo.GetTrendingSongs(10)
		if terr != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get recommendations")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"songs": songs})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	songs, err := h.songRepo.GetRecommendedSongs(userID, genres, limit)
	if err != nil {
		logger.Error("Failed to get recommended songs", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get recommendations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"songs": songs})
}

// LikeSongHandler toggles a like on or off depending on the method.
func (h *APIHandler) LikeSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	song := h.getAccessibleSong(w, r)
	if song == nil {
		return
	}

	if r.Method == http.MethodDelete {
		err = h.songRepo.UnlikeSong(userID, song.ID)
	} else {
		err = h.songRepo.LikeSong(userID, song.ID)
	}
	if err != nil {
		logger.Error("Failed to toggle like",
			logger.Int64("userId", userID),
			logger.Int64("songId", song.ID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update like")
		return
	}

	liked := r.Method != http.MethodDelete
	writeJSON(w, http.StatusOK, map[string]interface{}{"songId": song.ID, "liked": liked})
}
