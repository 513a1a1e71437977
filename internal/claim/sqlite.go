package claim

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const claimsSchema = `
CREATE TABLE IF NOT EXISTS claims (
	key TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	claimed_at DATETIME NOT NULL
)`

// SQLite claims keys by inserting rows into a claims table. The primary key
// constraint plays the role of create-if-absent.
type SQLite struct {
	db    *sql.DB
	owner string
}

// OpenSQLiteDB opens (creating if needed) the claims database at path.
func OpenSQLiteDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create claims directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open claims database: %w", err)
	}
	if _, err := db.Exec(claimsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize claims schema: %w", err)
	}
	return db, nil
}

// NewSQLite returns a claimer over db with a fresh owner id. The schema must
// already exist; OpenSQLiteDB creates it.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, owner: uuid.NewString()}
}

// Owner returns the id recorded against claims taken by this claimer.
func (s *SQLite) Owner() string {
	return s.owner
}

func (s *SQLite) TryClaim(key string) (bool, error) {
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO claims (key, owner, claimed_at) VALUES (?, ?, ?)",
		key, s.owner, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n == 1, nil
}

// Release deletes the claim row for key if this claimer owns it.
func (s *SQLite) Release(key string) error {
	if _, err := s.db.Exec("DELETE FROM claims WHERE key = ? AND owner = ?", key, s.owner); err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	return nil
}

// Held reports whether any claimer currently holds key.
func (s *SQLite) Held(key string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM claims WHERE key = ?", key).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query claim: %w", err)
	}
	return n > 0, nil
}

// ClaimedBefore returns keys claimed before cutoff, oldest first.
func (s *SQLite) ClaimedBefore(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM claims WHERE claimed_at < ? ORDER BY claimed_at", cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ForceRelease deletes the claim row for key whatever its owner. It is meant
// for reconciling claims left by consumers that exited without releasing.
func (s *SQLite) ForceRelease(key string) error {
	if _, err := s.db.Exec("DELETE FROM claims WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	return nil
}
