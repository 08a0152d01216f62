package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists user profiles and baselines in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed history store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the user_profiles and user_baselines tables if they
// don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id               VARCHAR(64) PRIMARY KEY,
			commitment_started_at TIMESTAMPTZ,
			guardian_contact      TEXT NOT NULL DEFAULT '',
			payday_day_of_month   INT NOT NULL DEFAULT 0,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS user_baselines (
			user_id          VARCHAR(64) PRIMARY KEY,
			pattern_strength DOUBLE PRECISION NOT NULL,
			sample_count     INT NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *Profile) error {
	var commitment sql.NullTime
	if !p.CommitmentStartedAt.IsZero() {
		commitment = sql.NullTime{Time: p.CommitmentStartedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles
			(user_id, commitment_started_at, guardian_contact, payday_day_of_month, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			commitment_started_at = EXCLUDED.commitment_started_at,
			guardian_contact      = EXCLUDED.guardian_contact,
			payday_day_of_month   = EXCLUDED.payday_day_of_month,
			updated_at            = NOW()
	`, p.UserID, commitment, p.GuardianContact, p.PaydayDayOfMonth)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	var commitment sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, commitment_started_at, guardian_contact, payday_day_of_month,
		       created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &commitment, &p.GuardianContact, &p.PaydayDayOfMonth,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if commitment.Valid {
		p.CommitmentStartedAt = commitment.Time
	}
	return &p, nil
}

// SaveBaselines upserts a batch inside one transaction so a partial write
// never leaves the table mixing old and new computation runs.
func (s *PostgresStore) SaveBaselines(ctx context.Context, batch []*Baseline) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin baseline batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, b := range batch {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_baselines (user_id, pattern_strength, sample_count, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE SET
				pattern_strength = EXCLUDED.pattern_strength,
				sample_count     = EXCLUDED.sample_count,
				updated_at       = EXCLUDED.updated_at
		`, b.UserID, b.PatternStrength, b.SampleCount, b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save baseline for %s: %w", b.UserID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetBaseline(ctx context.Context, userID string) (*Baseline, error) {
	var b Baseline
	var updated time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, pattern_strength, sample_count, updated_at
		FROM user_baselines
		WHERE user_id = $1
	`, userID).Scan(&b.UserID, &b.PatternStrength, &b.SampleCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	b.UpdatedAt = updated
	return &b, nil
}
