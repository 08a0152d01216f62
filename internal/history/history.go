// Package history derives per-user behavioral context from stored
// transactions. The aggregator turns raw transaction history into the
// features.Context consumed by extraction; a background worker recomputes
// slow-moving per-user baselines on a fixed interval.
package history

import (
	"context"
	"errors"
	"time"
)

// Profile holds the support context a guardian or the user configures:
// commitment periods, guardian contact, and the user's payday schedule.
type Profile struct {
	UserID string `json:"userId"`
	// CommitmentStartedAt is zero when no abstinence commitment is active.
	CommitmentStartedAt time.Time `json:"commitmentStartedAt,omitempty"`
	// GuardianContact is the guardian's notification address; empty when
	// no guardian is configured. The extractor only sees the presence flag.
	GuardianContact string `json:"guardianContact,omitempty"`
	// PaydayDayOfMonth is 0 when unknown; the extractor then falls back to
	// its day-of-month heuristic.
	PaydayDayOfMonth int       `json:"paydayDayOfMonth,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Baseline is a slow-moving per-user aggregate recomputed by the worker
// rather than on every webhook.
type Baseline struct {
	UserID          string    `json:"userId"`
	PatternStrength float64   `json:"patternStrength"` // [0,1]
	SampleCount     int       `json:"sampleCount"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when no profile or baseline exists for a user.
var ErrNotFound = errors.New("history record not found")

// Store persists user profiles and computed baselines.
type Store interface {
	UpsertProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	SaveBaselines(ctx context.Context, batch []*Baseline) error
	GetBaseline(ctx context.Context, userID string) (*Baseline, error)
}

// LastPaydayBefore returns the most recent occurrence of the profile's
// payday on or before now, or the zero time when the payday is unknown.
// Months too short for the configured day are skipped (payday 31 never
// falls in February), so the walk is over months, not normalized dates.
func (p *Profile) LastPaydayBefore(now time.Time) time.Time {
	if p == nil || p.PaydayDayOfMonth < 1 || p.PaydayDayOfMonth > 31 {
		return time.Time{}
	}
	year, month, _ := now.Date()
	// Day 29 exists in every 12-month window (leap February aside, at
	// least eleven months qualify), so a one-year walk always finds a
	// candidate. The bound keeps a pathological clock from looping.
	for i := 0; i < 14; i++ {
		payday := time.Date(year, month, p.PaydayDayOfMonth, 0, 0, 0, 0, now.Location())
		// A month too short for the day normalizes forward; skip it.
		if payday.Day() == p.PaydayDayOfMonth && !payday.After(now) {
			return payday
		}
		month--
		if month < time.January {
			month = time.December
			year--
		}
	}
	return time.Time{}
}
