// Package checkpoint implements the durable key/value ledger that records
// which pipeline stages have completed. Every mutation is committed before
// the call returns, so a crash never leaves a write pending: the only re-do
// window is between finishing guarded work and setting its flag.
package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

// Namespace scopes checkpoint entries.
type Namespace string

const (
	// Temporary entries belong to the current harvest cycle and are wiped
	// when the cycle's anchor day changes.
	Temporary Namespace = "temporary"
	// Permanent entries survive across cycles.
	Permanent Namespace = "permanent"
)

// timeLayout is the storage format for timestamp values.
const timeLayout = time.RFC3339Nano

// Stamp renders a task timestamp for embedding in checkpoint keys, so every
// per-cycle flag carries the cycle it belongs to.
func Stamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// Store is a sqlite-backed checkpoint ledger. It assumes a single process;
// concurrent goroutines are serialized on one connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint db %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent flag writes.
	db.SetMaxOpenConns(1)

	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = FULL;`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize checkpoint db: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Has reports whether the key exists in the namespace.
func (s *Store) Has(ns Namespace, key string) (bool, error) {
	_, ok, err := s.Get(ns, key)
	return ok, err
}

// Get returns the value stored under (ns, key).
func (s *Store) Get(ns Namespace, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM checkpoints WHERE namespace = ? AND key = ?`, string(ns), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read checkpoint %s/%s: %w", ns, key, err)
	}
	return value, true, nil
}

// Set records the key as a boolean flag.
func (s *Store) Set(ns Namespace, key string) error {
	return s.SetValue(ns, key, "1")
}

// SetValue stores value under (ns, key), overwriting any previous value.
func (s *Store) SetValue(ns Namespace, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO checkpoints (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
		string(ns), key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %s/%s: %w", ns, key, err)
	}
	return nil
}

// Remove deletes the key from the namespace.
func (s *Store) Remove(ns Namespace, key string) error {
	if _, err := s.db.Exec(
		`DELETE FROM checkpoints WHERE namespace = ? AND key = ?`, string(ns), key,
	); err != nil {
		return fmt.Errorf("failed to remove checkpoint %s/%s: %w", ns, key, err)
	}
	return nil
}

// Clear deletes every key in the namespace.
func (s *Store) Clear(ns Namespace) error {
	if _, err := s.db.Exec(
		`DELETE FROM checkpoints WHERE namespace = ?`, string(ns),
	); err != nil {
		return fmt.Errorf("failed to clear checkpoint namespace %s: %w", ns, err)
	}
	return nil
}

// SetTime stores a timestamp value under (ns, key).
func (s *Store) SetTime(ns Namespace, key string, t time.Time) error {
	return s.SetValue(ns, key, t.Format(timeLayout))
}

// GetTime reads a timestamp value stored with SetTime.
func (s *Store) GetTime(ns Namespace, key string) (time.Time, bool, error) {
	value, ok, err := s.Get(ns, key)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt timestamp checkpoint %s/%s: %w", ns, key, err)
	}
	return t, true, nil
}
