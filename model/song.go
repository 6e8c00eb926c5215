package model

import "time"

// Song represents an uploaded audio asset. ContentID is the identifier the
// media store assigned at ingest; every delivery URL is derived from it.
type Song struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album"`
	Genre        string    `json:"genre"`
	ContentID    string    `json:"contentId"`
	CoverURL     string    `json:"coverUrl,omitempty"`
	CoverID      string    `json:"-"` // media-store identifier of the cover, used on delete
	Duration     float32   `json:"duration"` // seconds
	Plays        int64     `json:"plays"`
	Likes        int64     `json:"likes"`
	IsPublic     bool      `json:"isPublic"`
	FileSize     int64     `json:"fileSize,omitempty"` // bytes
	Format       string    `json:"format,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Genres accepted on upload. Anything else is stored as "Other".
var Genres = []string{"Pop", "Rock", "Hip-Hop", "Jazz", "Classical", "Electronic", "Country", "R&B", "Other"}

// ValidGenre reports whether g is one of the accepted genres.
func ValidGenre(g string) bool {
	for _, known := range Genres {
		if g == known {
			return true
		}
	}
	return false
}
