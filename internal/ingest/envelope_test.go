package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestEnvelopeTransaction(t *testing.T) {
	now := time.Now().UTC()
	ts := now.Add(-time.Minute)

	env := &Envelope{
		Event:         EventTransactionCreated,
		TransactionID: "prov-123",
		UserID:        "user-1",
		Amount:        floatPtr(-50.00),
		Currency:      "AUD",
		Payee:         "  Sportsbet  ",
		RawText:       "SPORTSBET MELBOURNE AUS",
		Balance:       floatPtr(1200.50),
		Timestamp:     ts,
	}

	tx, err := env.Transaction(now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tx.ID, "txn_"))
	assert.Equal(t, "prov-123", tx.ProviderTxID)
	assert.Equal(t, int64(-5000), tx.AmountCents)
	assert.Equal(t, int64(120050), tx.BalanceCents)
	assert.Equal(t, "Sportsbet", tx.Payee, "payee trimmed")
	assert.Equal(t, ts, tx.Timestamp)
	assert.Equal(t, now, tx.CreatedAt)
}

func TestEnvelopeDefaults(t *testing.T) {
	now := time.Now().UTC()
	env := &Envelope{
		Event:         EventTransactionCreated,
		TransactionID: "prov-124",
		UserID:        "user-1",
	}

	tx, err := env.Transaction(now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tx.AmountCents, "missing amount defaults to zero")
	assert.Equal(t, "Unknown", tx.Payee, "missing payee defaults to Unknown")
	assert.Equal(t, "AUD", tx.Currency)
	assert.Equal(t, now, tx.Timestamp, "missing timestamp defaults to receipt time")
}

func TestEnvelopeRejectsMissingCorrelation(t *testing.T) {
	now := time.Now().UTC()

	_, err := (&Envelope{Event: EventTransactionCreated, UserID: "u1"}).Transaction(now)
	assert.ErrorIs(t, err, ErrMissingTransactionID)

	_, err = (&Envelope{Event: EventTransactionCreated, TransactionID: "prov-1"}).Transaction(now)
	assert.ErrorIs(t, err, ErrMissingUserID)

	_, err = (&Envelope{
		Event: EventTransactionCreated, TransactionID: "prov-1", UserID: "not a valid user!!",
	}).Transaction(now)
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestEnvelopeInvalidCurrencyFallsBack(t *testing.T) {
	env := &Envelope{
		Event:         EventTransactionCreated,
		TransactionID: "prov-125",
		UserID:        "user-1",
		Currency:      "dollars",
	}
	tx, err := env.Transaction(time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "AUD", tx.Currency)
}

func TestDollarsToCentsRounding(t *testing.T) {
	assert.Equal(t, int64(-5000), dollarsToCents(floatPtr(-50.0)))
	assert.Equal(t, int64(1999), dollarsToCents(floatPtr(19.99)))
	assert.Equal(t, int64(0), dollarsToCents(nil))
}
