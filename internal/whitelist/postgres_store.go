package whitelist

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists whitelist entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed whitelist store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the whitelist_entries table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS whitelist_entries (
			id         VARCHAR(40) PRIMARY KEY,
			user_id    VARCHAR(64) NOT NULL DEFAULT '',
			pattern    TEXT NOT NULL CHECK (pattern <> ''),
			created_by VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_whitelist_user
			ON whitelist_entries (user_id);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, e *Entry) error {
	if e.Pattern == "" {
		return ErrEmptyPattern
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whitelist_entries (id, user_id, pattern, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.UserID, e.Pattern, e.CreatedBy, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create whitelist entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM whitelist_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, pattern, created_by, created_at
		FROM whitelist_entries
		WHERE user_id = $1 OR user_id = ''
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list whitelist entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanEntry(scan func(...interface{}) error) (*Entry, error) {
	var e Entry
	if err := scan(&e.ID, &e.UserID, &e.Pattern, &e.CreatedBy, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) Patterns(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern FROM whitelist_entries
		WHERE user_id = $1 OR user_id = ''
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load whitelist patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
