package model

import "time"

// Playlist is a user-owned, ordered collection of songs. Persisted with
// GORM, unlike the raw-SQL user and song tables.
type Playlist struct {
	ID          int64          `json:"id" gorm:"primaryKey"`
	OwnerID     int64          `json:"ownerId" gorm:"index;not null"`
	Name        string         `json:"name" gorm:"size:100;not null"`
	Description string         `json:"description" gorm:"size:500"`
	CoverURL    string         `json:"coverUrl,omitempty"`
	CoverID     string         `json:"-"`
	IsPublic    bool           `json:"isPublic" gorm:"default:true"`
	Songs       []PlaylistSong `json:"songs,omitempty" gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// PlaylistSong is one entry in a playlist.
type PlaylistSong struct {
	ID         int64     `json:"-" gorm:"primaryKey"`
	PlaylistID int64     `json:"-" gorm:"uniqueIndex:uq_playlist_song;not null"`
	SongID     int64     `json:"songId" gorm:"uniqueIndex:uq_playlist_song;not null"`
	Position   int       `json:"position"`
	AddedAt    time.Time `json:"addedAt" gorm:"autoCreateTime"`
}
