package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Persisted state keys
const (
	lastProjectKey = "lastActiveProject"
	lastSessionKey = "lastActiveSession"
)

// StateStore persists small keyed strings across runs, currently the last
// active project and session identifiers. Read once at startup, written on
// every successful switch.
type StateStore struct {
	db *sql.DB
}

// DefaultStatePath returns the default state database location
func DefaultStatePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "openspace-sync", "state.db"), nil
}

// OpenStateStore opens (creating if needed) the state database at path
func OpenStateStore(path string) (*StateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state database ping failed: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS openspace_kv (
		key TEXT PRIMARY KEY,
		value TEXT
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create state table: %w", err)
	}

	return &StateStore{db: db}, nil
}

// Close closes the underlying database
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or empty string if not set
func (s *StateStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM openspace_kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("state query failed: %w", err)
	}
	return value, nil
}

// Set stores a value for key
func (s *StateStore) Set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO openspace_kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("state write failed: %w", err)
	}
	return nil
}

// Delete removes a key
func (s *StateStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM openspace_kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("state delete failed: %w", err)
	}
	return nil
}

// LastProject returns the persisted last active project ID
func (s *StateStore) LastProject() (string, error) {
	return s.Get(lastProjectKey)
}

// SetLastProject persists the last active project ID
func (s *StateStore) SetLastProject(id string) error {
	return s.Set(lastProjectKey, id)
}

// ClearLastProject removes the persisted project ID
func (s *StateStore) ClearLastProject() error {
	return s.Delete(lastProjectKey)
}

// LastSession returns the persisted last active session ID
func (s *StateStore) LastSession() (string, error) {
	return s.Get(lastSessionKey)
}

// SetLastSession persists the last active session ID
func (s *StateStore) SetLastSession(id string) error {
	return s.Set(lastSessionKey, id)
}

// ClearLastSession removes the persisted session ID
func (s *StateStore) ClearLastSession() error {
	return s.Delete(lastSessionKey)
}
