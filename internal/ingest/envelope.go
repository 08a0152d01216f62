package ingest

import (
	"errors"
	"math"
	"time"

	"github.com/betguard/betguard/internal/idgen"
	"github.com/betguard/betguard/internal/transaction"
	"github.com/betguard/betguard/internal/validation"
)

// EventTransactionCreated is the only event kind the pipeline processes.
// Other event types are acknowledged and ignored so the provider does not
// retry them.
const EventTransactionCreated = "transaction.created"

// defaultPayee substitutes a missing payee description.
const defaultPayee = "Unknown"

var (
	// ErrMissingTransactionID rejects an envelope with no idempotency key.
	ErrMissingTransactionID = errors.New("envelope missing transaction id")
	// ErrMissingUserID rejects an envelope that cannot be correlated to a user.
	ErrMissingUserID = errors.New("envelope missing valid user id")
)

// Envelope is the bank provider's webhook payload. Amounts are signed
// dollars; spends are negative. Most fields are optional and substituted
// with documented defaults, but the transaction and user identifiers are
// required correlations.
type Envelope struct {
	Event         string    `json:"event"`
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Amount        *float64  `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Payee         string    `json:"payee,omitempty"`
	RawText       string    `json:"rawText,omitempty"`
	Balance       *float64  `json:"balance,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// Transaction normalizes the envelope into a transaction record, applying
// defaults for missing optional fields: amount 0, payee "Unknown",
// currency AUD, timestamp now.
func (e *Envelope) Transaction(now time.Time) (*transaction.Transaction, error) {
	if e.TransactionID == "" {
		return nil, ErrMissingTransactionID
	}
	if !validation.IsValidUserID(e.UserID) {
		return nil, ErrMissingUserID
	}

	tx := &transaction.Transaction{
		ID:           idgen.WithPrefix("txn_"),
		ProviderTxID: e.TransactionID,
		UserID:       e.UserID,
		AmountCents:  dollarsToCents(e.Amount),
		Currency:     e.Currency,
		Payee:        validation.SanitizeString(e.Payee, 256),
		RawText:      validation.SanitizeString(e.RawText, 1024),
		BalanceCents: dollarsToCents(e.Balance),
		Timestamp:    e.Timestamp,
		CreatedAt:    now,
	}
	if tx.Payee == "" {
		tx.Payee = defaultPayee
	}
	if !validation.IsValidCurrency(tx.Currency) {
		tx.Currency = "AUD"
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = now
	}
	return tx, nil
}

func dollarsToCents(v *float64) int64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return int64(math.Round(*v * 100))
}
