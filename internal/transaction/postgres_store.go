package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id             VARCHAR(40) PRIMARY KEY,
			provider_tx_id VARCHAR(128) NOT NULL,
			user_id        VARCHAR(64) NOT NULL,
			amount_cents   BIGINT NOT NULL,
			currency       VARCHAR(3) NOT NULL DEFAULT 'AUD',
			payee          TEXT NOT NULL,
			raw_text       TEXT NOT NULL DEFAULT '',
			balance_cents  BIGINT NOT NULL DEFAULT 0,
			ts             TIMESTAMPTZ NOT NULL,
			whitelisted    BOOLEAN NOT NULL DEFAULT FALSE,
			classification JSONB,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_provider_tx_id
			ON transactions (provider_tx_id);

		CREATE INDEX IF NOT EXISTS idx_transactions_user_ts
			ON transactions (user_id, ts DESC);
	`)
	return err
}

// Create inserts a transaction. The unique index on provider_tx_id plus
// ON CONFLICT DO NOTHING makes concurrent duplicate deliveries safe: exactly
// one row is stored and the losing writer gets ErrDuplicate.
func (s *PostgresStore) Create(ctx context.Context, t *Transaction) error {
	var resultJSON []byte
	if t.Result != nil {
		var err error
		resultJSON, err = json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal classification: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, provider_tx_id, user_id, amount_cents, currency, payee,
			 raw_text, balance_cents, ts, whitelisted, classification, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (provider_tx_id) DO NOTHING
	`,
		t.ID,
		t.ProviderTxID,
		t.UserID,
		t.AmountCents,
		t.Currency,
		t.Payee,
		t.RawText,
		t.BalanceCents,
		t.Timestamp,
		t.Whitelisted,
		nullableJSON(resultJSON),
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store transaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.queryOne(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetByProviderID(ctx context.Context, providerTxID string) (*Transaction, error) {
	return s.queryOne(ctx, `WHERE provider_tx_id = $1`, providerTxID)
}

func (s *PostgresStore) queryOne(ctx context.Context, where string, arg interface{}) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_tx_id, user_id, amount_cents, currency, payee,
		       raw_text, balance_cents, ts, whitelisted, classification, created_at
		FROM transactions `+where, arg)

	t, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_tx_id, user_id, amount_cents, currency, payee,
		       raw_text, balance_cents, ts, whitelisted, classification, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectRows(rows)
}

func (s *PostgresStore) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_tx_id, user_id, amount_cents, currency, payee,
		       raw_text, balance_cents, ts, whitelisted, classification, created_at
		FROM transactions
		WHERE user_id = $1 AND ts >= $2
		ORDER BY ts DESC
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectRows(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_tx_id, user_id, amount_cents, currency, payee,
		       raw_text, balance_cents, ts, whitelisted, classification, created_at
		FROM transactions
		ORDER BY ts DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectRows(rows)
}

func (s *PostgresStore) ListRecentBefore(ctx context.Context, before time.Time, beforeID string, limit int) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_tx_id, user_id, amount_cents, currency, payee,
		       raw_text, balance_cents, ts, whitelisted, classification, created_at
		FROM transactions
		WHERE (ts, id) < ($1, $2)
		ORDER BY ts DESC, id DESC
		LIMIT $3
	`, before, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectRows(rows)
}

func (s *PostgresStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM transactions WHERE ts >= $1 ORDER BY user_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func collectRows(rows *sql.Rows) ([]*Transaction, error) {
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func scanTransaction(scan func(...interface{}) error) (*Transaction, error) {
	var t Transaction
	var resultJSON []byte

	err := scan(
		&t.ID, &t.ProviderTxID, &t.UserID, &t.AmountCents, &t.Currency,
		&t.Payee, &t.RawText, &t.BalanceCents, &t.Timestamp, &t.Whitelisted,
		&resultJSON, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(resultJSON) > 0 {
		var c Classification
		if err := json.Unmarshal(resultJSON, &c); err != nil {
			return nil, fmt.Errorf("corrupt classification for %s: %w", t.ID, err)
		}
		t.Result = &c
	}
	return &t, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
