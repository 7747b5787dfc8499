// Package sqlite persists session snapshots in a SQLite database. Each
// snapshot is stored as one JSON document keyed by session id, alongside
// a few indexed columns for listing.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/copairhq/copair/model"
)

// Store is a SQLite-backed snapshot store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_snapshots (
			session_id TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL,
			taken_at   DATETIME NOT NULL,
			data       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at
			ON session_snapshots(taken_at);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the snapshot for a session.
func (s *Store) Save(snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO session_snapshots (session_id, name, status, created_at, taken_at, data)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			name = excluded.name, status = excluded.status,
			taken_at = excluded.taken_at, data = excluded.data`,
		snap.Session.ID, snap.Session.Name, snap.Session.Status,
		snap.Session.CreatedAt, snap.TakenAt, string(data),
	)
	return err
}

// Load returns the snapshot for a session id.
func (s *Store) Load(id string) (*model.Snapshot, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT data FROM session_snapshots WHERE session_id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

// List returns all snapshots, newest first.
func (s *Store) List() ([]*model.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT data FROM session_snapshots ORDER BY taken_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*model.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func decodeSnapshot(data string) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	if err := json.Unmarshal([]byte(data), snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}
