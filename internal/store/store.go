// Package store persists configuration trees as numbered revisions in
// SQLite. Every save creates a new version; old versions stay readable.
package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/kestreldns/kestrel/internal/data"
)

//go:embed schema.sql
var schemaSQL string

// ErrNoRevision is returned when the requested version does not exist,
// or by Latest on an empty store.
var ErrNoRevision = errors.New("no such config revision")

// Store wraps a SQLite database holding config revisions.
type Store struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Open opens or creates the revision database at the given path.
func Open(path string) (*Store, error) {
	// WAL mode keeps API reads from blocking saves
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open revision store: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize revision schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Save stores the tree as a new revision and returns its version number.
func (s *Store) Save(tree *data.Element) (int64, error) {
	blob, err := tree.ToWire(false)
	if err != nil {
		return 0, fmt.Errorf("failed to encode config tree: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.Exec(`INSERT INTO revisions (tree) VALUES (?)`, blob)
	if err != nil {
		return 0, fmt.Errorf("failed to save config revision: %w", err)
	}
	version, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read revision number: %w", err)
	}
	return version, nil
}

// Load returns the tree stored under the given version.
func (s *Store) Load(version int64) (*data.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob []byte
	err := s.conn.QueryRow(`SELECT tree FROM revisions WHERE version = ?`, version).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: version %d", ErrNoRevision, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config revision %d: %w", version, err)
	}

	tree, err := data.FromWire(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config revision %d: %w", version, err)
	}
	return tree, nil
}

// Latest returns the newest revision and its version number.
func (s *Store) Latest() (int64, *data.Element, error) {
	s.mu.Lock()
	version, blob, err := s.latestLocked()
	s.mu.Unlock()
	if err != nil {
		return 0, nil, err
	}

	tree, err := data.FromWire(blob)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to decode config revision %d: %w", version, err)
	}
	return version, tree, nil
}

func (s *Store) latestLocked() (int64, []byte, error) {
	var (
		version int64
		blob    []byte
	)
	err := s.conn.QueryRow(`SELECT version, tree FROM revisions ORDER BY version DESC LIMIT 1`).
		Scan(&version, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNoRevision
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load latest config revision: %w", err)
	}
	return version, blob, nil
}

// Versions lists all stored version numbers, oldest first.
func (s *Store) Versions() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(`SELECT version FROM revisions ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list config revisions: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan revision number: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list config revisions: %w", err)
	}
	return versions, nil
}
