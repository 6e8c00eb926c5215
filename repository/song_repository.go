package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"EchoFM/model"
)

// SongRepository defines the interface for song data operations.
type SongRepository interface {
	CreateSong(song *model.Song) (int64, error)
	GetSongByID(id int64) (*model.Song, error)
	GetSongsByIDs(ids []int64) ([]*model.Song, error)
	ListSongs(filter SongFilter) ([]*model.Song, int64, error)
	UpdateSong(song *model.Song) error
	DeleteSong(id int64) error
	IncrementPlays(id int64) error
	GetTrendingSongs(limit int) ([]*model.Song, error)
	LikeSong(userID, songID int64) error
	UnlikeSong(userID, songID int64) error
	IsLiked(userID, songID int64) (bool, error)
	GetLikedGenres(userID int64) ([]string, error)
	GetRecommendedSongs(userID int64, genres []string, limit int) ([]*model.Song, error)
}

// SongFilter narrows and pages ListSongs results.
type SongFilter struct {
	Search   string
	Genre    string
	UserID   int64 // 0 means any uploader
	Page     int
	PageSize int
	// PublicOnly hides private songs; listing your own library sets it
	// false.
	PublicOnly bool
}

// mysqlSongRepository implements SongRepository for MySQL.
type mysqlSongRepository struct {
	db *sql.DB
}

// NewMySQLSongRepository creates a new mysqlSongRepository.
func NewMySQLSongRepository(db *sql.DB) SongRepository {
	return &mysqlSongRepository{db: db}
}

const songColumns = "id, user_id, title, artist, album, genre, content_id, cover_url, cover_id, duration, plays, likes, is_public, file_size, format, created_at, updated_at"

func scanSongRow(scanner interface{ Scan(...any) error }) (*model.Song, error) {
	song := &model.Song{}
	var coverURL, coverID, format sql.NullString
	var fileSize sql.NullInt64
	err := scanner.Scan(&song.ID, &song.UserID, &song.Title, &song.Artist, &song.Album, &song.Genre,
		&song.ContentID, &coverURL, &coverID, &song.Duration, &song.Plays, &song.Likes,
		&song.IsPublic, &fileSize, &format, &song.CreatedAt, &song.UpdatedAt)
	if err != nil {
		return nil, err
	}
	song.CoverURL = coverURL.String
	song.CoverID = coverID.String
	song.Format = format.String
	song.FileSize = fileSize.Int64
	return song, nil
}

// CreateSong adds a new song to the database.
func (r *mysqlSongRepository) CreateSong(song *model.Song) (int64, error) {
	query := `INSERT INTO songs (user_id, title, artist, album, genre, content_id, cover_url, cover_id, duration, is_public, file_size, format, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateSong: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(song.UserID, song.Title, song.Artist, song.Album, song.Genre,
		song.ContentID, song.CoverURL, song.CoverID, song.Duration, song.IsPublic,
		song.FileSize, song.Format, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateSong: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateSong: %w", err)
	}
	return id, nil
}

// GetSongByID retrieves a song by its ID.
func (r *mysqlSongRepository) GetSongByID(id int64) (*model.Song, error) {
	query := "SELECT " + songColumns + " FROM songs WHERE id = ?"
	song, err := scanSongRow(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Song not found
		}
		return nil, fmt.Errorf("failed to scan song by ID %d: %w", id, err)
	}
	return song, nil
}

// GetSongsByIDs retrieves multiple songs, preserving the order of ids.
func (r *mysqlSongRepository) GetSongsByIDs(ids []int64) ([]*model.Song, error) {
	if len(ids) == 0 {
		return []*model.Song{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := "SELECT " + songColumns + " FROM songs WHERE id IN (" + placeholders + ")"

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs by IDs: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*model.Song, len(ids))
	for rows.Next() {
		song, err := scanSongRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in GetSongsByIDs: %w", err)
		}
		byID[song.ID] = song
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetSongsByIDs: %w", err)
	}

	songs := make([]*model.Song, 0, len(ids))
	for _, id := range ids {
		if song, ok := byID[id]; ok {
			songs = append(songs, song)
		}
	}
	return songs, nil
}

// ListSongs returns a filtered page of songs plus the unpaged total.
func (r *mysqlSongRepository) ListSongs(filter SongFilter) ([]*model.Song, int64, error) {
	where := []string{"1=1"}
	args := []any{}

	if filter.PublicOnly {
		where = append(where, "is_public = TRUE")
	}
	if filter.Search != "" {
		where = append(where, "MATCH(title, artist, album) AGAINST (? IN NATURAL LANGUAGE MODE)")
		args = append(args, filter.Search)
	}
	if filter.Genre != "" {
		where = append(where, "genre = ?")
		args = append(args, filter.Genre)
	}
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM songs WHERE " + whereClause
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count songs: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := "SELECT " + songColumns + " FROM songs WHERE " + whereClause +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0)
	for rows.Next() {
		song, err := scanSongRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan song in ListSongs: %w", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error during rows iteration in ListSongs: %w", err)
	}
	return songs, total, nil
}

// UpdateSong persists editable song metadata.
func (r *mysqlSongRepository) UpdateSong(song *model.Song) error {
	query := `UPDATE songs SET title = ?, artist = ?, album = ?, genre = ?, cover_url = ?, cover_id = ?, is_public = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateSong: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(song.Title, song.Artist, song.Album, song.Genre, song.CoverURL, song.CoverID, song.IsPublic, time.Now(), song.ID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateSong for song ID %d: %w", song.ID, err)
	}
	return nil
}

// DeleteSong removes a song row. The remote objects are removed by the
// caller before this.
func (r *mysqlSongRepository) DeleteSong(id int64) error {
	stmt, err := r.db.Prepare("DELETE FROM songs WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement for DeleteSong: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(id); err != nil {
		return fmt.Errorf("failed to execute DeleteSong for song ID %d: %w", id, err)
	}
	return nil
}

// IncrementPlays bumps the play counter.
func (r *mysqlSongRepository) IncrementPlays(id int64) error {
	if _, err := r.db.Exec("UPDATE songs SET plays = plays + 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to increment plays for song ID %d: %w", id, err)
	}
	return nil
}

// GetTrendingSongs returns public songs by play count.
func (r *mysqlSongRepository) GetTrendingSongs(limit int) ([]*model.Song, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	query := "SELECT " + songColumns + " FROM songs WHERE is_public = TRUE ORDER BY plays DESC, created_at DESC LIMIT ?"
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending songs: %w", err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0, limit)
	for rows.Next() {
		song, err := scanSongRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in GetTrendingSongs: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// LikeSong records a like and bumps the counter. Liking twice is a no-op.
func (r *mysqlSongRepository) LikeSong(userID, songID int64) error {
	res, err := r.db.Exec("INSERT IGNORE INTO song_likes (user_id, song_id) VALUES (?, ?)", userID, songID)
	if err != nil {
		return fmt.Errorf("failed to like song %d: %w", songID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := r.db.Exec("UPDATE songs SET likes = likes + 1 WHERE id = ?", songID); err != nil {
			return fmt.Errorf("failed to bump like count for song %d: %w", songID, err)
		}
	}
	return nil
}

// UnlikeSong removes a like and decrements the counter.
func (r *mysqlSongRepository) UnlikeSong(userID, songID int64) error {
	res, err := r.db.Exec("DELETE FROM song_likes WHERE user_id = ? AND song_id = ?", userID, songID)
	if err != nil {
		return fmt.Errorf("failed to unlike song %d: %w", songID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := r.db.Exec("UPDATE songs SET likes = GREATEST(likes - 1, 0) WHERE id = ?", songID); err != nil {
			return fmt.Errorf("failed to drop like count for song %d: %w", songID, err)
		}
	}
	return nil
}

// IsLiked reports whether the user has liked the song.
func (r *mysqlSongRepository) IsLiked(userID, songID int64) (bool, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM song_likes WHERE user_id = ? AND song_id = ?", userID, songID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check like for song %d: %w", songID, err)
	}
	return n > 0, nil
}

// GetLikedGenres returns the distinct genres of songs the user liked.
func (r *mysqlSongRepository) GetLikedGenres(userID int64) ([]string, error) {
	query := `SELECT DISTINCT s.genre FROM song_likes l JOIN songs s ON s.id = l.song_id WHERE l.user_id = ?`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query liked genres: %w", err)
	}
	defer rows.Close()

	genres := make([]string, 0)
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// GetRecommendedSongs returns public songs in the given genres that the
// user has not liked, most played first.
func (r *mysqlSongRepository) GetRecommendedSongs(userID int64, genres []string, limit int) ([]*model.Song, error) {
	if len(genres) == 0 {
		return []*model.Song{}, nil
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(genres)), ",")
	query := "SELECT " + songColumns + ` FROM songs
		WHERE is_public = TRUE AND genre IN (` + placeholders + `)
		AND id NOT IN (SELECT song_id FROM song_likes WHERE user_id = ?)
		ORDER BY plays DESC LIMIT ?`

	args := make([]any, 0, len(genres)+2)
	for _, g := range genres {
		args = append(args, g)
	}
	args = append(args, userID, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommended songs: %w", err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0, limit)
	for rows.Next() {
		song, err := scanSongRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in GetRecommendedSongs: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}
