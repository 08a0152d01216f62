package whitelist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	patterns := []string{"Woolworths", "coles express"}

	cases := []struct {
		payee string
		want  bool
	}{
		{"Woolworths Metro Sydney", true},
		{"WOOLWORTHS 1234", true},
		{"Coles Express Fuel", true},
		{"Sportsbet", false},
		{"", false},
		{"  ", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Matches(c.payee, patterns), "payee %q", c.payee)
	}
}

func TestMatchesIgnoresEmptyPatterns(t *testing.T) {
	assert.False(t, Matches("anything", []string{"", "  "}))
}

func TestCheckerWhitelisted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Entry{
		ID: "wl_1", UserID: "u1", Pattern: "Woolworths", CreatedAt: time.Now(),
	}))

	checker := NewChecker(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, checker.IsWhitelisted(ctx, "u1", "WOOLWORTHS METRO"))
	assert.False(t, checker.IsWhitelisted(ctx, "u1", "Sportsbet"))
}

func TestCheckerGlobalEntriesApplyToAllUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Entry{
		ID: "wl_g", Pattern: "Medicare", CreatedAt: time.Now(),
	}))

	checker := NewChecker(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, checker.IsWhitelisted(ctx, "u1", "Medicare Refund"))
	assert.True(t, checker.IsWhitelisted(ctx, "u2", "medicare refund"))
}

type failingStore struct{}

func (failingStore) Create(ctx context.Context, e *Entry) error { return errors.New("db down") }
func (failingStore) Delete(ctx context.Context, id string) error {
	return errors.New("db down")
}
func (failingStore) List(ctx context.Context, userID string) ([]*Entry, error) {
	return nil, errors.New("db down")
}
func (failingStore) Patterns(ctx context.Context, userID string) ([]string, error) {
	return nil, errors.New("db down")
}

func TestCheckerFailsSafeToFalse(t *testing.T) {
	checker := NewChecker(failingStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Store failure must never suppress an alert.
	assert.False(t, checker.IsWhitelisted(context.Background(), "u1", "Woolworths"))
}

func TestMemoryStoreCRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.ErrorIs(t, store.Create(ctx, &Entry{ID: "wl_x"}), ErrEmptyPattern)

	require.NoError(t, store.Create(ctx, &Entry{
		ID: "wl_1", UserID: "u1", Pattern: "Woolworths", CreatedAt: time.Now(),
	}))

	entries, err := store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.Delete(ctx, "wl_1"))
	require.ErrorIs(t, store.Delete(ctx, "wl_1"), ErrNotFound)
}
