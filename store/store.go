// Package store persists the set of feed entry ids that have already been
// delivered, so restarts never re-send old items.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnavailable reports that the backing medium exists but cannot be read
// or written. At startup this is fatal: without the sent-item set there is
// no way to guarantee no-duplicate delivery.
var ErrUnavailable = errors.New("sent-item store unavailable")

// Store is a durable, append-only set of delivered entry ids.
//
// The set grows monotonically; pruning is left to external compaction.
type Store interface {
	// Load reads all previously recorded ids into memory. A missing
	// backing medium is a first run and yields an empty set.
	Load(ctx context.Context) error
	// Contains reports whether id was already delivered.
	Contains(id string) bool
	// Record appends id durably and adds it to the in-memory set. The
	// durable write happens first: a crash mid-call may cause one
	// duplicate future send, never a lost record of earlier ids.
	Record(ctx context.Context, id string) error
	// Len returns the number of recorded ids.
	Len() int
	Close() error
}

// Open selects a backend by path: a ".db" suffix opens the SQLite store,
// anything else the plain-text file store.
func Open(path string) (Store, error) {
	if filepath.Ext(path) == ".db" {
		return NewSQLite(path)
	}
	return NewFile(path), nil
}

// File stores delivered ids as flat UTF-8 text, one id per line. Ids are
// opaque tokens, so no escaping is needed; blank lines are ignored on load.
type File struct {
	path string

	mu  sync.Mutex
	ids map[string]struct{}
	f   *os.File
}

// NewFile creates a file-backed store at path. Call Load before use.
func NewFile(path string) *File {
	return &File{path: path, ids: make(map[string]struct{})}
}

func (s *File) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dat, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run.
	case err != nil:
		return fmt.Errorf("%w: reading %s: %v", ErrUnavailable, s.path, err)
	default:
		for _, line := range strings.Split(string(dat), "\n") {
			id := strings.TrimSpace(line)
			if id == "" {
				continue
			}
			s.ids[id] = struct{}{}
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating state directory: %v", ErrUnavailable, err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrUnavailable, s.path, err)
	}
	s.f = f
	return nil
}

func (s *File) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *File) Record(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("%w: store not loaded", ErrUnavailable)
	}
	if _, ok := s.ids[id]; ok {
		return nil
	}
	// The file is opened O_APPEND and the id goes out in a single write,
	// so a crash leaves at worst an id that was written but not yet acted
	// upon, never a torn record of earlier ids.
	if _, err := s.f.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("recording sent item %q: %w", id, err)
	}
	s.ids[id] = struct{}{}
	return nil
}

func (s *File) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
