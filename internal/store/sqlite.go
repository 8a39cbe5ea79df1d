package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite stores collections as JSON documents in a local SQLite file.
// It serves as the self-hosted alternative to the hosted realtime
// database backend.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite creates or opens a SQLite-backed store at the given path.
func OpenSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLite{conn: conn, path: dbPath}, nil
}

// ReadAll returns every document in a collection.
func (s *SQLite) ReadAll(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT key, value FROM documents WHERE collection = ?", collection,
	)
	if err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", collection, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning %s document: %w", collection, err)
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

// Update applies the batch inside a single transaction; nil values delete.
func (s *SQLite) Update(ctx context.Context, collection string, entries map[string]any) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update: %w", err)
	}

	for key, value := range entries {
		if value == nil {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND key = ?", collection, key,
			); err != nil {
				tx.Rollback()
				return fmt.Errorf("deleting %s/%s: %w", collection, key, err)
			}
			continue
		}

		raw, err := json.Marshal(value)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshaling %s/%s: %w", collection, key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, key, value) VALUES (?, ?, ?)
			ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value`,
			collection, key, string(raw),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("writing %s/%s: %w", collection, key, err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}
