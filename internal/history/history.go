// Package history keeps a local record of the tracks a player has played.
package history

import (
	"context"
	"embed"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const defaultLimit = 20

// ErrNoTrack is returned by Record for a track without any identity.
var ErrNoTrack = errors.New("history: track has no id or title")

// gooseMu guards goose's package level base FS and dialect.
var gooseMu sync.Mutex

// Entry is one remembered track.
type Entry struct {
	ID          string  `db:"id" json:"id"`
	PlayerID    string  `db:"player_id" json:"playerId"`
	TrackID     string  `db:"track_id" json:"trackId"`
	Title       string  `db:"title" json:"title"`
	Artist      string  `db:"artist" json:"artist"`
	Album       string  `db:"album" json:"album"`
	Duration    float64 `db:"duration" json:"duration"`
	Remote      bool    `db:"remote" json:"remote"`
	PlayCount   int     `db:"play_count" json:"playCount"`
	FirstPlayed int64   `db:"first_played" json:"firstPlayed"`
	LastPlayed  int64   `db:"last_played" json:"lastPlayed"`
}

// LastPlayedAt returns LastPlayed as a time.
func (e Entry) LastPlayedAt() time.Time {
	return time.UnixMilli(e.LastPlayed)
}

// Store is a sqlite backed play history.
type Store struct {
	DB  *sqlx.DB
	now func() time.Time
}

// Open connects to the sqlite database at dsn and applies pending migrations.
// Use ":memory:" for a throwaway store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	s := &Store{DB: db, now: time.Now}
	if err := s.applyMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) applyMigrations() error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return err
	}
	return goose.Up(s.DB.DB, "migrations")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// EntryID identifies a track for a player. Local tracks are keyed by their
// library id, remote streams by their title and url.
func EntryID(playerID string, track lms.TrackInfo) string {
	var b strings.Builder
	b.WriteString(playerID)
	b.WriteByte('|')
	if track.ID != "" && !track.Remote {
		b.WriteString(track.ID)
	} else {
		b.WriteString(track.URL)
		b.WriteByte('|')
		b.WriteString(track.DisplayTitle())
		b.WriteByte('|')
		b.WriteString(track.Artist)
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// Record remembers that track started playing on the player. Playing the
// same track again bumps its play count.
func (s *Store) Record(ctx context.Context, playerID string, track lms.TrackInfo) (Entry, error) {
	if track.ID == "" && track.DisplayTitle() == "" && track.URL == "" {
		return Entry{}, ErrNoTrack
	}

	now := s.now().UnixMilli()
	id := EntryID(playerID, track)
	query := `
	INSERT INTO plays (id, player_id, track_id, title, artist, album, duration, remote, play_count, first_played, last_played)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
	title = excluded.title,
	artist = excluded.artist,
	album = excluded.album,
	duration = excluded.duration,
	play_count = plays.play_count + 1,
	last_played = excluded.last_played
	`
	_, err := s.DB.ExecContext(ctx, query,
		id,
		playerID,
		track.ID,
		track.DisplayTitle(),
		track.Artist,
		track.Album,
		track.Duration,
		track.Remote,
		now,
		now,
	)
	if err != nil {
		return Entry{}, err
	}
	return s.Get(ctx, id)
}

// Get returns the entry with the given id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	e := Entry{}
	err := s.DB.GetContext(ctx, &e, "SELECT * FROM plays WHERE id = ?", id)
	return e, err
}

// Recent returns up to limit entries, most recently played first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	entries := []Entry{}
	err := s.DB.SelectContext(ctx, &entries, "SELECT * FROM plays ORDER BY last_played DESC, rowid DESC LIMIT ?", limit)
	return entries, err
}

// Recorder records a track each time the current track of a player changes.
type Recorder struct {
	store    *Store
	playerID string

	mu   sync.Mutex
	last string
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store *Store, playerID string) *Recorder {
	return &Recorder{store: store, playerID: playerID}
}

// Observe records track unless it is the same one seen last time.
// It reports whether a new entry was written.
func (r *Recorder) Observe(ctx context.Context, track *lms.TrackInfo) (bool, error) {
	if track == nil {
		return false, nil
	}
	id := EntryID(r.playerID, *track)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.last {
		return false, nil
	}
	if _, err := r.store.Record(ctx, r.playerID, *track); err != nil {
		if errors.Is(err, ErrNoTrack) {
			return false, nil
		}
		return false, err
	}
	r.last = id
	return true, nil
}
