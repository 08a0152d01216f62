//go:build integration

package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/betguard/betguard/internal/testutil"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	db, cleanup := testutil.PGTest(t, "user_profiles", "user_baselines")
	store := NewPostgresStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		cleanup()
		t.Fatalf("Failed to migrate: %v", err)
	}
	return store, cleanup
}

func TestPostgresProfileUpsert(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Microsecond).Add(-72 * time.Hour)

	if err := store.UpsertProfile(ctx, &Profile{
		UserID:              "u1",
		CommitmentStartedAt: started,
		GuardianContact:     "guardian@example.com",
		PaydayDayOfMonth:    15,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CommitmentStartedAt.Equal(started) || got.GuardianContact != "guardian@example.com" || got.PaydayDayOfMonth != 15 {
		t.Errorf("unexpected profile: %+v", got)
	}

	// Second upsert replaces fields, keeping the row.
	if err := store.UpsertProfile(ctx, &Profile{UserID: "u1", PaydayDayOfMonth: 1}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.PaydayDayOfMonth != 1 || got.GuardianContact != "" || !got.CommitmentStartedAt.IsZero() {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestPostgresProfileNotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := store.GetProfile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresBaselineBatch(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	batch := []*Baseline{
		{UserID: "u1", PatternStrength: 0.6, SampleCount: 8, UpdatedAt: now},
		{UserID: "u2", PatternStrength: 0.3, SampleCount: 4, UpdatedAt: now},
	}
	if err := store.SaveBaselines(ctx, batch); err != nil {
		t.Fatalf("save batch: %v", err)
	}

	got, err := store.GetBaseline(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PatternStrength != 0.6 || got.SampleCount != 8 {
		t.Errorf("unexpected baseline: %+v", got)
	}

	// Re-saving upserts.
	batch[0].PatternStrength = 0.9
	if err := store.SaveBaselines(ctx, batch[:1]); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = store.GetBaseline(ctx, "u1")
	if err != nil {
		t.Fatalf("get after resave: %v", err)
	}
	if got.PatternStrength != 0.9 {
		t.Errorf("upsert not applied: %+v", got)
	}

	if _, err := store.GetBaseline(ctx, "u3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
