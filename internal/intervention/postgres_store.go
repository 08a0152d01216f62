package intervention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists intervention records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed intervention store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the interventions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS interventions (
			id              VARCHAR(40) PRIMARY KEY,
			transaction_id  VARCHAR(40) NOT NULL,
			user_id         VARCHAR(64) NOT NULL,
			alert           BOOLEAN NOT NULL,
			resolved        BOOLEAN NOT NULL DEFAULT FALSE,
			rationale       TEXT NOT NULL DEFAULT '',
			confidence      NUMERIC(4,3) NOT NULL DEFAULT 0,
			gambling_type   VARCHAR(20) NOT NULL DEFAULT '',
			primary_trigger VARCHAR(20) NOT NULL DEFAULT '',
			relapse_risk    NUMERIC(4,3) NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_interventions_user
			ON interventions (user_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_interventions_alerts
			ON interventions (created_at DESC) WHERE alert;
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interventions
			(id, transaction_id, user_id, alert, resolved, rationale,
			 confidence, gambling_type, primary_trigger, relapse_risk, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		r.ID, r.TransactionID, r.UserID, r.Alert, r.Resolved, r.Rationale,
		r.Confidence, string(r.GamblingType), string(r.PrimaryTrigger),
		r.RelapseRisk, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store intervention: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, user_id, alert, resolved, rationale,
		       confidence, gambling_type, primary_trigger, relapse_risk, created_at
		FROM interventions WHERE id = $1
	`, id)

	var r Record
	err := row.Scan(
		&r.ID, &r.TransactionID, &r.UserID, &r.Alert, &r.Resolved, &r.Rationale,
		&r.Confidence, &r.GamblingType, &r.PrimaryTrigger, &r.RelapseRisk, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intervention: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, user_id, alert, resolved, rationale,
		       confidence, gambling_type, primary_trigger, relapse_risk, created_at
		FROM interventions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interventions: %w", err)
	}
	return scanRecords(rows)
}

func (s *PostgresStore) ListAlerts(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, user_id, alert, resolved, rationale,
		       confidence, gambling_type, primary_trigger, relapse_risk, created_at
		FROM interventions
		WHERE alert
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.TransactionID, &r.UserID, &r.Alert, &r.Resolved, &r.Rationale,
			&r.Confidence, &r.GamblingType, &r.PrimaryTrigger, &r.RelapseRisk, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan intervention: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}
