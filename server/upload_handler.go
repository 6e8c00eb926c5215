package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"EchoFM/logger"
)

// presignExpiry bounds how long a signed direct-upload URL stays valid.
const presignExpiry = 15 * time.Minute

// SignUploadHandler hands the client a presigned URL it can PUT a file to
// directly, bypassing this server for large transfers.
// URL: POST /api/uploads/sign
func (h *APIHandler) SignUploadHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	if _, ok := audioContentTypes[ext]; !ok {
		writeError(w, http.StatusBadRequest, "Unsupported audio format, expected mp3, wav or flac")
		return
	}

	objectKey := "direct/" + uuid.NewString() + ext
	uploadURL, err := h.store.PresignUpload(r.Context(), objectKey, presignExpiry)
	if err != nil {
		logger.Error("Failed to presign upload",
			logger.Int64("userId", userID),
			logger.String("objectKey", objectKey),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to sign upload")
		return
	}

	logger.Info("Direct upload signed",
		logger.Int64("userId", userID),
		logger.String("objectKey", objectKey))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploadUrl": uploadURL,
		"objectKey": objectKey,
		"expiresIn": int(presignExpiry.Seconds()),
	})
}
