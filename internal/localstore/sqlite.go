package localstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite is a file-backed Store. Each key holds exactly one row; Save is
// an upsert so the persisted session is always the latest full snapshot.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the store at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	// WAL mode keeps reads open while a timer goroutine writes.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local store: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_logs (
			storage_key TEXT PRIMARY KEY,
			payload     BLOB NOT NULL,
			updated_at  INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create session_logs table: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Save(key string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO session_logs (storage_key, payload, updated_at)
		VALUES (?, ?, unixepoch('subsec') * 1000)
		ON CONFLICT (storage_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, key, data)
	if err != nil {
		return fmt.Errorf("save session log %q: %w", key, err)
	}
	return nil
}

// Load returns nil data (and nil error) when the key has never been saved.
func (s *SQLite) Load(key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM session_logs WHERE storage_key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session log %q: %w", key, err)
	}
	return payload, nil
}

func (s *SQLite) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM session_logs WHERE storage_key = ?`, key); err != nil {
		return fmt.Errorf("delete session log %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
