package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLite stores delivered ids in a single-table SQLite database. It keeps
// the same fully-in-memory working set as File; the database is only the
// durable backing.
type SQLite struct {
	db *sql.DB

	mu  sync.Mutex
	ids map[string]struct{}
}

// NewSQLite opens (creating if needed) the store database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating state directory: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrUnavailable, dbPath, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %v", ErrUnavailable, err)
	}

	return &SQLite{db: db, ids: make(map[string]struct{})}, nil
}

func (s *SQLite) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sent_items")
	if err != nil {
		return fmt.Errorf("%w: reading sent items: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("%w: scanning sent item: %v", ErrUnavailable, err)
		}
		s.ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: reading sent items: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLite) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *SQLite) Record(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sent_items (id, sent_at) VALUES (?, ?)",
		id, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording sent item %q: %w", id, err)
	}
	s.ids[id] = struct{}{}
	return nil
}

func (s *SQLite) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
