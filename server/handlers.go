package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"EchoFM/config"
	"EchoFM/core/audio"
	"EchoFM/core/auth"
	"EchoFM/core/hls"
	"EchoFM/core/stream"
	"EchoFM/repository"
	"EchoFM/storage"
)

// APIHandler carries every dependency the HTTP layer needs.
type APIHandler struct {
	userRepo     repository.UserRepository
	songRepo     repository.SongRepository
	playlistRepo repository.PlaylistRepository
	store        storage.MediaStore
	resolver     *stream.Resolver
	segments     *hls.SegmentCache
	processor    audio.Processor
	tokens       *auth.TokenIssuer
	cfg          *config.Config
}

// NewAPIHandler creates the API handler with its dependencies.
func NewAPIHandler(
	userRepo repository.UserRepository,
	songRepo repository.SongRepository,
	playlistRepo repository.PlaylistRepository,
	store storage.MediaStore,
	resolver *stream.Resolver,
	segments *hls.SegmentCache,
	processor audio.Processor,
	tokens *auth.TokenIssuer,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:     userRepo,
		songRepo:     songRepo,
		playlistRepo: playlistRepo,
		store:        store,
		resolver:     resolver,
		segments:     segments,
		processor:    processor,
		tokens:       tokens,
		cfg:          cfg,
	}
}

type contextKey string

const (
	ctxUserID   contextKey = "userID"
	ctxUsername contextKey = "username"
)

// GetUserIDFromContext extracts the user ID set by AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(ctxUserID).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username set by AuthMiddleware.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(ctxUsername).(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// writeJSON writes v as an application/json response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body. Streaming clients parse these, so
// the shape is stable: {"error": "..."}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthHandler reports process liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
