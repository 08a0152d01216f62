package transaction

import (
	"context"
	"errors"
	"testing"
	"time"
)

func sampleTx(id, providerID, userID string, ts time.Time) *Transaction {
	return &Transaction{
		ID:           id,
		ProviderTxID: providerID,
		UserID:       userID,
		AmountCents:  -5000,
		Currency:     "AUD",
		Payee:        "Sportsbet",
		Timestamp:    ts,
		CreatedAt:    ts,
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	tx := sampleTx("txn_1", "prov-1", "u1", now)
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "txn_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Payee != "Sportsbet" || got.AmountCents != -5000 {
		t.Errorf("unexpected transaction: %+v", got)
	}

	byProv, err := store.GetByProviderID(ctx, "prov-1")
	if err != nil {
		t.Fatalf("get by provider id: %v", err)
	}
	if byProv.ID != "txn_1" {
		t.Errorf("expected txn_1, got %s", byProv.ID)
	}
}

func TestMemoryDuplicateProviderID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, sampleTx("txn_1", "prov-1", "u1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Create(ctx, sampleTx("txn_2", "prov-1", "u1", now))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Still exactly one row.
	txs, err := store.ListByUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(txs))
	}
}

func TestMemoryGetNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "txn_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByProviderID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListByUserOrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		tx := sampleTx(
			"txn_"+string(rune('a'+i)),
			"prov-"+string(rune('a'+i)),
			"u1",
			base.Add(time.Duration(i)*time.Minute),
		)
		if err := store.Create(ctx, tx); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	txs, err := store.ListByUser(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3, got %d", len(txs))
	}
	for i := 1; i < len(txs); i++ {
		if txs[i].Timestamp.After(txs[i-1].Timestamp) {
			t.Error("expected newest-first ordering")
		}
	}
}

func TestMemoryListByUserSince(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	_ = store.Create(ctx, sampleTx("txn_old", "prov-old", "u1", base.Add(-48*time.Hour)))
	_ = store.Create(ctx, sampleTx("txn_new", "prov-new", "u1", base))

	txs, err := store.ListByUserSince(ctx, "u1", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "txn_new" {
		t.Errorf("expected only txn_new, got %+v", txs)
	}
}

func TestMemoryActiveUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	_ = store.Create(ctx, sampleTx("txn_1", "prov-1", "u2", base))
	_ = store.Create(ctx, sampleTx("txn_2", "prov-2", "u1", base.Add(-time.Minute)))
	_ = store.Create(ctx, sampleTx("txn_3", "prov-3", "u1", base))
	_ = store.Create(ctx, sampleTx("txn_4", "prov-4", "u3", base.Add(-72*time.Hour)))

	users, err := store.ActiveUsers(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("active users: %v", err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Errorf("expected [u1 u2], got %v", users)
	}
}

func TestMemoryCopySemantics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tx := sampleTx("txn_1", "prov-1", "u1", time.Now().UTC())
	_ = store.Create(ctx, tx)

	got, _ := store.Get(ctx, "txn_1")
	got.Payee = "mutated"

	again, _ := store.Get(ctx, "txn_1")
	if again.Payee != "Sportsbet" {
		t.Error("store should not expose internal state to mutation")
	}
}
