// Package store archives exported conversation transcripts in a local
// SQLite database so they can be listed and re-read from the CLI.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"briefly/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no transcript matches.
var ErrNotFound = errors.New("transcript not found")

// Transcript is one archived export.
type Transcript struct {
	ID           string
	SessionID    string
	DocumentName string
	FileName     string
	Content      string
	EntryCount   int
	CreatedAt    time.Time
}

// Store is the SQLite transcript archive.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// Open initializes the SQLite database at path, creating parent directories
// and the schema as needed. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	logging.Store("Opening transcript archive at %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.Get(logging.CategoryStore).Debug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	s := &Store{db: db, dbPath: path, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		document_name TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL,
		content TEXT NOT NULL,
		entry_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.dbPath }

// Save archives t. Empty ID and zero CreatedAt are filled in; the stored
// transcript is returned.
func (s *Store) Save(ctx context.Context, t Transcript) (Transcript, error) {
	if t.FileName == "" {
		return Transcript{}, fmt.Errorf("save transcript: file name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, session_id, document_name, file_name, content, entry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.DocumentName, t.FileName, t.Content, t.EntryCount, t.CreatedAt.UnixMilli())
	if err != nil {
		return Transcript{}, fmt.Errorf("save transcript: %w", err)
	}
	logging.Store("Archived transcript %s (%s, %d entries)", t.ID, t.FileName, t.EntryCount)
	return t, nil
}

// List returns archived transcripts newest first, without content.
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, session_id, document_name, file_name, entry_count, created_at
		FROM transcripts ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var t Transcript
		var created int64
		if err := rows.Scan(&t.ID, &t.SessionID, &t.DocumentName, &t.FileName, &t.EntryCount, &created); err != nil {
			return nil, fmt.Errorf("list transcripts: %w", err)
		}
		t.CreatedAt = time.UnixMilli(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get returns one transcript by id or by unique id prefix.
func (s *Store) Get(ctx context.Context, id string) (Transcript, error) {
	if id == "" {
		return Transcript{}, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, document_name, file_name, content, entry_count, created_at
		 FROM transcripts WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		id, id+"%", id)
	if err != nil {
		return Transcript{}, fmt.Errorf("get transcript: %w", err)
	}
	defer rows.Close()

	var found []Transcript
	for rows.Next() {
		var t Transcript
		var created int64
		if err := rows.Scan(&t.ID, &t.SessionID, &t.DocumentName, &t.FileName, &t.Content, &t.EntryCount, &created); err != nil {
			return Transcript{}, fmt.Errorf("get transcript: %w", err)
		}
		t.CreatedAt = time.UnixMilli(created)
		found = append(found, t)
	}
	if err := rows.Err(); err != nil {
		return Transcript{}, fmt.Errorf("get transcript: %w", err)
	}

	switch {
	case len(found) == 0:
		return Transcript{}, ErrNotFound
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return Transcript{}, fmt.Errorf("get transcript: prefix %q is ambiguous", id)
	}
}

// Count returns the number of archived transcripts.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transcripts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count transcripts: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
