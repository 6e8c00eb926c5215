package repository

import (
	"context"
	"errors"

	"EchoFM/model"

	"gorm.io/gorm"
)

// ErrDuplicatePlaylistSong is returned when a song is added to a playlist
// it already belongs to.
var ErrDuplicatePlaylistSong = errors.New("repository: song already in playlist")

// PlaylistRepository defines playlist data access. Backed by GORM, unlike
// the raw-SQL user and song repositories.
type PlaylistRepository interface {
	Create(ctx context.Context, playlist *model.Playlist) error
	GetByID(ctx context.Context, id int64) (*model.Playlist, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*model.Playlist, error)
	Update(ctx context.Context, playlist *model.Playlist) error
	Delete(ctx context.Context, id int64) error

	AddSong(ctx context.Context, playlistID, songID int64) error
	RemoveSong(ctx context.Context, playlistID, songID int64) error
	GetSongs(ctx context.Context, playlistID int64) ([]*model.PlaylistSong, error)
}

type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewGormPlaylistRepository creates a GORM-backed playlist repository.
func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

func (r *gormPlaylistRepository) Create(ctx context.Context, playlist *model.Playlist) error {
	return r.db.WithContext(ctx).Create(playlist).Error
}

func (r *gormPlaylistRepository) GetByID(ctx context.Context, id int64) (*model.Playlist, error) {
	var playlist model.Playlist
	err := r.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&playlist, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &playlist, nil
}

func (r *gormPlaylistRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Playlist, error) {
	var playlists []*model.Playlist
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&playlists).Error
	return playlists, err
}

func (r *gormPlaylistRepository) Update(ctx context.Context, playlist *model.Playlist) error {
	return r.db.WithContext(ctx).
		Model(&model.Playlist{}).
		Where("id = ?", playlist.ID).
		Updates(map[string]interface{}{
			"name":        playlist.Name,
			"description": playlist.Description,
			"cover_url":   playlist.CoverURL,
			"cover_id":    playlist.CoverID,
			"is_public":   playlist.IsPublic,
		}).Error
}

func (r *gormPlaylistRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(&model.PlaylistSong{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Playlist{}, id).Error
	})
}

// AddSong appends the song at the end of the playlist. Adding a song that
// is already present returns ErrDuplicatePlaylistSong.
func (r *gormPlaylistRepository) AddSong(ctx context.Context, playlistID, songID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.PlaylistSong{}).
			Where("playlist_id = ? AND song_id = ?", playlistID, songID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicatePlaylistSong
		}

		var maxPos int
		row := tx.Model(&model.PlaylistSong{}).
			Where("playlist_id = ?", playlistID).
			Select("COALESCE(MAX(position), 0)").Row()
		if err := row.Scan(&maxPos); err != nil {
			return err
		}

		return tx.Create(&model.PlaylistSong{
			PlaylistID: playlistID,
			SongID:     songID,
			Position:   maxPos + 1,
		}).Error
	})
}

func (r *gormPlaylistRepository) RemoveSong(ctx context.Context, playlistID, songID int64) error {
	return r.db.WithContext(ctx).
		Where("playlist_id = ? AND song_id = ?", playlistID, songID).
		Delete(&model.PlaylistSong{}).Error
}

func (r *gormPlaylistRepository) GetSongs(ctx context.Context, playlistID int64) ([]*model.PlaylistSong, error) {
	var entries []*model.PlaylistSong
	err := r.db.WithContext(ctx).
		Where("playlist_id = ?", playlistID).
		Order("position ASC").
		Find(&entries).Error
	return entries, err
}
