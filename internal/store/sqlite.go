package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"bloomsync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists pending mutations in a single local SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pending_mutations (
            id TEXT PRIMARY KEY,
            position INTEGER NOT NULL,
            kind TEXT NOT NULL,
            operation TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            attempts INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            next_attempt_at DATETIME,
            dead_lettered BOOLEAN NOT NULL DEFAULT 0
        )`,
		`CREATE INDEX IF NOT EXISTS idx_pending_mutations_position ON pending_mutations(position)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// ReadAll returns all persisted mutations in enqueue order.
func (s *SQLiteStore) ReadAll(ctx context.Context) ([]models.PendingMutation, error) {
	query := `SELECT id, kind, operation, payload, created_at, attempts, last_error, next_attempt_at, dead_lettered
              FROM pending_mutations ORDER BY position ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending mutations: %w", err)
	}
	defer rows.Close()

	var items []models.PendingMutation
	for rows.Next() {
		var (
			m       models.PendingMutation
			payload string
		)
		err := rows.Scan(&m.ID, &m.Kind, &m.Operation, &payload, &m.CreatedAt, &m.Attempts, &m.LastError, &m.NextAttemptAt, &m.DeadLettered)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending mutation: %w", err)
		}
		m.Payload = []byte(payload)
		items = append(items, m)
	}
	return items, rows.Err()
}

// WriteAll replaces the table contents with items, preserving order.
func (s *SQLiteStore) WriteAll(ctx context.Context, items []models.PendingMutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_mutations`); err != nil {
		return fmt.Errorf("failed to clear pending mutations: %w", err)
	}

	insert := `INSERT INTO pending_mutations (id, position, kind, operation, payload, created_at, attempts, last_error, next_attempt_at, dead_lettered)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, m := range items {
		_, err := tx.ExecContext(ctx, insert,
			m.ID, i, m.Kind, m.Operation, string(m.Payload), m.CreatedAt, m.Attempts, m.LastError, m.NextAttemptAt, m.DeadLettered,
		)
		if err != nil {
			return fmt.Errorf("failed to insert pending mutation %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pending mutations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
