package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betguard/betguard/internal/transaction"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedTx(t *testing.T, store transaction.Store, id, userID, payee string, amountCents int64, ts time.Time, result *transaction.Classification) {
	t.Helper()
	err := store.Create(context.Background(), &transaction.Transaction{
		ID:           id,
		ProviderTxID: "prov-" + id,
		UserID:       userID,
		AmountCents:  amountCents,
		Currency:     "AUD",
		Payee:        payee,
		Timestamp:    ts,
		Result:       result,
		CreatedAt:    ts,
	})
	require.NoError(t, err)
}

func gamblingResult(trigger transaction.Trigger) *transaction.Classification {
	return &transaction.Classification{
		IsGambling:         true,
		GamblingConfidence: 0.9,
		GamblingType:       transaction.TypeSportsBetting,
		PrimaryTrigger:     trigger,
	}
}

func TestContextForEmptyHistory(t *testing.T) {
	agg := NewAggregator(transaction.NewMemoryStore(), NewMemoryStore(), nil, discardLogger())

	hctx := agg.ContextFor(context.Background(), &transaction.Transaction{
		UserID:    "fresh-user",
		Payee:     "Sportsbet",
		Timestamp: time.Now(),
	})

	require.NotNil(t, hctx)
	assert.Equal(t, 0, hctx.TotalTxCount)
	assert.Equal(t, -1.0, hctx.DaysSinceLastGambling)
	assert.True(t, hctx.LastTxAt.IsZero())
	assert.Equal(t, 0.5, hctx.CohortSimilarity, "no population stats yet")
}

func TestContextForAggregates(t *testing.T) {
	txs := transaction.NewMemoryStore()
	profiles := NewMemoryStore()
	now := time.Date(2025, 6, 20, 22, 0, 0, 0, time.UTC)

	// Clean spending plus two gambling events 10 days apart, the last one
	// 4 days before the current transaction.
	seedTx(t, txs, "t1", "u1", "Woolworths", -8000, now.Add(-20*24*time.Hour), nil)
	seedTx(t, txs, "t2", "u1", "Sportsbet", -5000, now.Add(-14*24*time.Hour), gamblingResult(transaction.TriggerPayday))
	seedTx(t, txs, "t3", "u1", "Coles", -6000, now.Add(-10*24*time.Hour), nil)
	seedTx(t, txs, "t4", "u1", "Sportsbet", -5000, now.Add(-4*24*time.Hour), gamblingResult(transaction.TriggerPayday))
	seedTx(t, txs, "t5", "u1", "Sportsbet", -4000, now.Add(-30*time.Minute), nil)

	agg := NewAggregator(txs, profiles, nil, discardLogger())
	agg.SetPopulationStats(6000, 2000)

	hctx := agg.ContextFor(context.Background(), &transaction.Transaction{
		UserID:    "u1",
		Payee:     "Sportsbet",
		AmountCents: -5000,
		Timestamp: now,
	})

	assert.Equal(t, 5, hctx.TotalTxCount)
	assert.Equal(t, 2, hctx.GamblingTxCount)
	assert.Equal(t, 3, hctx.MerchantTxCount, "prior Sportsbet transactions")
	assert.Equal(t, 1, hctx.TxCountLastHour)
	assert.InDelta(t, 4.0, hctx.DaysSinceLastGambling, 0.01)
	assert.InDelta(t, 4.0, hctx.CurrentCleanStreakDays, 0.01)
	assert.InDelta(t, 10.0, hctx.LongestCleanStreakDays, 0.01)
	assert.Equal(t, 1, hctx.RelapseCount, "10-day gap counts as relapse")
	assert.InDelta(t, 10.0, hctx.AvgRelapseIntervalDays, 0.01)
	assert.Equal(t, transaction.TriggerPayday, hctx.PrimaryPastTrigger)
	assert.Equal(t, now.Add(-30*time.Minute), hctx.LastTxAt)
	assert.InDelta(t, 5600, hctx.PersonalMeanCents, 1)
	assert.Len(t, hctx.RecentAmountsCents, 5)

	// Same merchant, same amount, same late-evening hour as past gambling.
	assert.Greater(t, hctx.HistoricalSimilarity, 0.5)
	assert.InDelta(t, 1/(1+0.5), hctx.CohortSimilarity, 0.01)
}

func TestContextForExcludesCurrentAndLater(t *testing.T) {
	txs := transaction.NewMemoryStore()
	now := time.Now()
	seedTx(t, txs, "t1", "u1", "Coles", -2000, now.Add(-time.Hour), nil)
	seedTx(t, txs, "t2", "u1", "Sportsbet", -5000, now, nil)
	seedTx(t, txs, "t3", "u1", "Sportsbet", -5000, now.Add(time.Hour), nil)

	agg := NewAggregator(txs, NewMemoryStore(), nil, discardLogger())
	hctx := agg.ContextFor(context.Background(), &transaction.Transaction{
		UserID: "u1", Payee: "Sportsbet", AmountCents: -5000, Timestamp: now,
	})

	assert.Equal(t, 1, hctx.TotalTxCount, "only strictly earlier transactions count")
	assert.Equal(t, 0, hctx.MerchantTxCount)
}

func TestContextForRecentVenueFlags(t *testing.T) {
	txs := transaction.NewMemoryStore()
	now := time.Now()
	seedTx(t, txs, "t1", "u1", "ATM Withdrawal CBD", -20000, now.Add(-time.Hour), nil)
	seedTx(t, txs, "t2", "u1", "The Star Hotel Bar", -4500, now.Add(-2*time.Hour), nil)
	seedTx(t, txs, "t3", "u1", "Royal Hotel Bottle Shop", -3000, now.Add(-48*time.Hour), nil)

	agg := NewAggregator(txs, NewMemoryStore(), nil, discardLogger())
	hctx := agg.ContextFor(context.Background(), &transaction.Transaction{
		UserID: "u1", Payee: "Sportsbet", AmountCents: -5000, Timestamp: now,
	})

	assert.True(t, hctx.RecentATMWithdrawal)
	assert.True(t, hctx.RecentDrinkingVenue)
}

func TestContextForProfileAndBaseline(t *testing.T) {
	txs := transaction.NewMemoryStore()
	profiles := NewMemoryStore()
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

	require.NoError(t, profiles.UpsertProfile(context.Background(), &Profile{
		UserID:              "u1",
		CommitmentStartedAt: now.Add(-10 * 24 * time.Hour),
		GuardianContact:     "guardian@example.com",
		PaydayDayOfMonth:    15,
	}))
	require.NoError(t, profiles.SaveBaselines(context.Background(), []*Baseline{
		{UserID: "u1", PatternStrength: 0.7, SampleCount: 12, UpdatedAt: now},
	}))

	agg := NewAggregator(txs, profiles, nil, discardLogger())
	hctx := agg.ContextFor(context.Background(), &transaction.Transaction{
		UserID: "u1", Payee: "Coles", AmountCents: -2000, Timestamp: now,
	})

	assert.True(t, hctx.ActiveCommitment)
	assert.InDelta(t, 10.0, hctx.DaysIntoCommitment, 0.01)
	assert.True(t, hctx.GuardianContact)
	assert.Equal(t, 0.7, hctx.PatternStrength)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), hctx.LastPaydayAt)
}

func TestContextForNoGuardianConfigured(t *testing.T) {
	profiles := NewMemoryStore()
	require.NoError(t, profiles.UpsertProfile(context.Background(), &Profile{
		UserID:           "u2",
		GuardianContact:  "",
		PaydayDayOfMonth: 1,
	}))

	agg := NewAggregator(transaction.NewMemoryStore(), profiles, nil, discardLogger())
	hctx := agg.ContextFor(context.Background(), &transaction.Transaction{
		UserID: "u2", Payee: "Coles", AmountCents: -2000,
		Timestamp: time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC),
	})

	assert.False(t, hctx.GuardianContact)
}

type failingTxStore struct {
	transaction.Store
}

func (f *failingTxStore) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*transaction.Transaction, error) {
	return nil, errors.New("db down")
}

func TestContextForFailSafe(t *testing.T) {
	agg := NewAggregator(&failingTxStore{}, NewMemoryStore(), nil, discardLogger())

	hctx := agg.ContextFor(context.Background(), &transaction.Transaction{
		UserID: "u1", Payee: "Sportsbet", AmountCents: -5000, Timestamp: time.Now(),
	})

	require.NotNil(t, hctx, "store failure degrades to neutral context")
	assert.Equal(t, 0, hctx.TotalTxCount)
	assert.Equal(t, -1.0, hctx.DaysSinceLastGambling)
}

func TestLastPaydayBefore(t *testing.T) {
	loc := time.UTC

	tests := []struct {
		name string
		day  int
		now  time.Time
		want time.Time
	}{
		{"same month", 15, time.Date(2025, 6, 20, 0, 0, 0, 0, loc), time.Date(2025, 6, 15, 0, 0, 0, 0, loc)},
		{"previous month", 15, time.Date(2025, 6, 10, 0, 0, 0, 0, loc), time.Date(2025, 5, 15, 0, 0, 0, 0, loc)},
		{"short month skipped", 31, time.Date(2025, 3, 5, 0, 0, 0, 0, loc), time.Date(2025, 1, 31, 0, 0, 0, 0, loc)},
		{"non-leap february skipped", 29, time.Date(2025, 3, 1, 0, 0, 0, 0, loc), time.Date(2025, 1, 29, 0, 0, 0, 0, loc)},
		{"year boundary", 31, time.Date(2026, 2, 10, 0, 0, 0, 0, loc), time.Date(2026, 1, 31, 0, 0, 0, 0, loc)},
		{"on the day", 15, time.Date(2025, 6, 15, 0, 0, 0, 0, loc), time.Date(2025, 6, 15, 0, 0, 0, 0, loc)},
		{"unknown", 0, time.Date(2025, 6, 20, 0, 0, 0, 0, loc), time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{UserID: "u1", PaydayDayOfMonth: tt.day}
			assert.Equal(t, tt.want, p.LastPaydayBefore(tt.now))
		})
	}
}
