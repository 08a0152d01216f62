// Package whitelist manages payee patterns exempted from gambling
// classification. Entries are curated by users and guardians and consulted
// read-only by the detection pipeline.
package whitelist

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Entry marks a payee pattern as categorically non-gambling.
// Matching is a case-insensitive substring test of Pattern against the
// transaction payee. An empty UserID makes the entry global.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Pattern   string    `json:"pattern"`
	CreatedBy string    `json:"createdBy,omitempty"` // user or guardian identifier
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// ErrNotFound is returned when a whitelist entry does not exist.
	ErrNotFound = errors.New("whitelist entry not found")
	// ErrEmptyPattern is returned when an entry has no pattern.
	ErrEmptyPattern = errors.New("whitelist pattern must not be empty")
)

// Store persists whitelist entries.
type Store interface {
	Create(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string) ([]*Entry, error)
	// Patterns returns all patterns applicable to a user (their own plus global).
	Patterns(ctx context.Context, userID string) ([]string, error)
}

// Checker answers "is this payee whitelisted" for the pipeline.
// Lookup infrastructure failures fail safe to false: showing an alert for a
// safe payee beats silently suppressing one for a gambling payee.
type Checker struct {
	store  Store
	logger *slog.Logger
}

// NewChecker creates a whitelist checker backed by the given store.
func NewChecker(store Store, logger *slog.Logger) *Checker {
	return &Checker{store: store, logger: logger}
}

// IsWhitelisted reports whether payee matches any whitelist pattern for the
// user. Returns false on any store error.
func (c *Checker) IsWhitelisted(ctx context.Context, userID, payee string) bool {
	patterns, err := c.store.Patterns(ctx, userID)
	if err != nil {
		c.logger.Warn("whitelist lookup failed, treating payee as not whitelisted",
			"user_id", userID, "error", err)
		return false
	}
	return Matches(payee, patterns)
}

// Matches reports whether payee contains any pattern, case-insensitively.
func Matches(payee string, patterns []string) bool {
	p := strings.ToLower(strings.TrimSpace(payee))
	if p == "" {
		return false
	}
	for _, pattern := range patterns {
		needle := strings.ToLower(strings.TrimSpace(pattern))
		if needle != "" && strings.Contains(p, needle) {
			return true
		}
	}
	return false
}
