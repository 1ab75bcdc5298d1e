// Package mapping persists the local_id → jira_key association across
// runs so the same local epic is never duplicated as multiple remote
// issues.
//
// The store is an embedded SQLite database opened in WAL mode. Rows are
// written immediately after each successful create and only removed by
// an explicit Forget; nothing drops a mapping silently.
package mapping

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection holding the sync mapping table.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the mapping database at path. The parent
// directory is created if needed. The caller must Close the store.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{conn: conn, path: path}

	// WAL keeps readers unblocked while a pass writes mappings.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mappings (
		local_id   TEXT PRIMARY KEY,
		jira_key   TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Get returns the jira key mapped to localID, if any.
func (s *Store) Get(localID string) (string, bool, error) {
	var key string
	err := s.conn.QueryRow(
		"SELECT jira_key FROM mappings WHERE local_id = ?", localID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up mapping %s: %w", localID, err)
	}
	return key, true, nil
}

// Put records localID → jiraKey, replacing any previous key for the
// same local id.
func (s *Store) Put(localID, jiraKey string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.conn.Exec(`
		INSERT INTO mappings (local_id, jira_key, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			jira_key = excluded.jira_key,
			updated_at = excluded.updated_at
	`, localID, jiraKey, now, now)
	if err != nil {
		return fmt.Errorf("storing mapping %s -> %s: %w", localID, jiraKey, err)
	}
	return nil
}

// Forget removes the mapping for localID. This is the only way a
// mapping leaves the store.
func (s *Store) Forget(localID string) error {
	if _, err := s.conn.Exec("DELETE FROM mappings WHERE local_id = ?", localID); err != nil {
		return fmt.Errorf("forgetting mapping %s: %w", localID, err)
	}
	return nil
}

// All returns every mapping keyed by local id.
func (s *Store) All() (map[string]string, error) {
	rows, err := s.conn.Query("SELECT local_id, jira_key FROM mappings ORDER BY local_id")
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	defer rows.Close()

	all := make(map[string]string)
	for rows.Next() {
		var localID, key string
		if err := rows.Scan(&localID, &key); err != nil {
			return nil, fmt.Errorf("scanning mapping row: %w", err)
		}
		all[localID] = key
	}
	return all, rows.Err()
}

// Count returns the number of stored mappings.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM mappings").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting mappings: %w", err)
	}
	return n, nil
}
