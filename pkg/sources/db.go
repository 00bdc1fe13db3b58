// CLAUDE:SUMMARY SQLite catalog of dashboard data sources (SECOP API, population workbooks) with availability checks and load history.
package sources

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Kinds of catalogued sources.
const (
	KindAPI        = "api"
	KindPopulation = "population"
)

// Definition is a source as declared in configuration.
type Definition struct {
	ID          string
	Kind        string
	Description string
	Location    string
	License     string
}

// Source represents a row from the data_sources table.
type Source struct {
	ID          string  `json:"source_id"`
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	License     string  `json:"license"`
	LastCheck   *int64  `json:"last_check,omitempty"`
	LastStatus  *int    `json:"last_status,omitempty"`
	LastError   *string `json:"last_error,omitempty"`
	UpdatedAt   int64   `json:"updated_at"`
}

// Load is one entry of the load history.
type Load struct {
	ID        int64   `json:"id"`
	SourceID  string  `json:"source_id"`
	StartedAt int64   `json:"started_at"`
	Rows      int     `json:"rows"`
	Error     *string `json:"error,omitempty"`
}

// DB manages the data_sources and loads SQLite tables.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the tables
// exist.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open source db: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS data_sources (
		source_id    TEXT PRIMARY KEY,
		kind         TEXT NOT NULL,
		description  TEXT NOT NULL,
		location     TEXT NOT NULL,
		license      TEXT NOT NULL DEFAULT '',
		last_check   INTEGER,
		last_status  INTEGER,
		last_error   TEXT,
		updated_at   INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loads (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id   TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		rows        INTEGER NOT NULL DEFAULT 0,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_loads_source ON loads(source_id, started_at)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the SQLite connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Seed inserts a row per definition. Existing rows are left untouched so
// that manual location overrides survive restarts.
func (s *DB) Seed(defs []Definition) error {
	const q = `INSERT OR IGNORE INTO data_sources
		(source_id, kind, description, location, license, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().Unix()
	for _, d := range defs {
		if _, err := s.db.Exec(q, d.ID, d.Kind, d.Description, d.Location, d.License, now); err != nil {
			return fmt.Errorf("seed %s: %w", d.ID, err)
		}
	}
	return nil
}

// Location returns the current location of a source.
func (s *DB) Location(id string) (string, error) {
	var loc string
	err := s.db.QueryRow(`SELECT location FROM data_sources WHERE source_id = ?`, id).Scan(&loc)
	if err != nil {
		return "", fmt.Errorf("get location for %s: %w", id, err)
	}
	return loc, nil
}

// SetLocation overrides the location of a source.
func (s *DB) SetLocation(id, location string) error {
	res, err := s.db.Exec(
		`UPDATE data_sources SET location = ?, updated_at = ? WHERE source_id = ?`,
		location, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("set location for %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("source %s not found in data_sources", id)
	}
	return nil
}

// UpdateCheck persists the result of an availability check.
func (s *DB) UpdateCheck(id string, status int, checkErr string) error {
	var errPtr *string
	if checkErr != "" {
		errPtr = &checkErr
	}
	_, err := s.db.Exec(
		`UPDATE data_sources SET last_check = ?, last_status = ?, last_error = ? WHERE source_id = ?`,
		time.Now().Unix(), status, errPtr, id,
	)
	if err != nil {
		return fmt.Errorf("update check for %s: %w", id, err)
	}
	return nil
}

// List returns all sources ordered by id.
func (s *DB) List() ([]Source, error) {
	rows, err := s.db.Query(`SELECT source_id, kind, description, location, license,
		last_check, last_status, last_error, updated_at
		FROM data_sources ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Kind, &src.Description, &src.Location,
			&src.License, &src.LastCheck, &src.LastStatus, &src.LastError, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// RecordLoad appends a load outcome to the history.
func (s *DB) RecordLoad(ctx context.Context, sourceID string, startedAt time.Time, rows int, loadErr error) error {
	var errPtr *string
	if loadErr != nil {
		msg := loadErr.Error()
		errPtr = &msg
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loads (source_id, started_at, rows, error) VALUES (?, ?, ?, ?)`,
		sourceID, startedAt.Unix(), rows, errPtr,
	)
	if err != nil {
		return fmt.Errorf("record load for %s: %w", sourceID, err)
	}
	return nil
}

// Loads returns the most recent loads of a source, newest first.
func (s *DB) Loads(ctx context.Context, sourceID string, limit int) ([]Load, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, started_at, rows, error FROM loads
		WHERE source_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		sourceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list loads: %w", err)
	}
	defer rows.Close()

	var out []Load
	for rows.Next() {
		var l Load
		if err := rows.Scan(&l.ID, &l.SourceID, &l.StartedAt, &l.Rows, &l.Error); err != nil {
			return nil, fmt.Errorf("scan load: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
