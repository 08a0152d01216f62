// Package transaction defines bank transactions and their classification
// outcomes, with durable idempotent persistence.
//
// A transaction is immutable once stored. It is created on webhook receipt,
// never mutated, and annotated with the classification computed for it.
package transaction

import (
	"context"
	"errors"
	"time"
)

// GamblingType identifies the category of a gambling transaction.
type GamblingType string

const (
	TypeSportsBetting GamblingType = "sports_betting"
	TypeCasino        GamblingType = "casino"
	TypePoker         GamblingType = "poker"
	TypeLottery       GamblingType = "lottery"
)

// GamblingTypes lists all classifier type labels in head output order.
var GamblingTypes = []GamblingType{TypeSportsBetting, TypeCasino, TypePoker, TypeLottery}

// Trigger is a contextual factor hypothesized to precede a gambling event.
type Trigger string

const (
	TriggerPayday        Trigger = "payday"
	TriggerLateNight     Trigger = "late_night"
	TriggerWeekend       Trigger = "weekend"
	TriggerStress        Trigger = "stress"
	TriggerAlcohol       Trigger = "alcohol"
	TriggerBoredom       Trigger = "boredom"
	TriggerChasingLosses Trigger = "chasing_losses"
	TriggerSocial        Trigger = "social"
)

// Triggers lists all classifier trigger labels in head output order.
var Triggers = []Trigger{
	TriggerPayday, TriggerLateNight, TriggerWeekend, TriggerStress,
	TriggerAlcohol, TriggerBoredom, TriggerChasingLosses, TriggerSocial,
}

// TriggerScore pairs a trigger with its predicted confidence.
type TriggerScore struct {
	Trigger    Trigger `json:"trigger"`
	Confidence float64 `json:"confidence"`
}

// Classification holds the four predictions computed for one transaction.
type Classification struct {
	IsGambling         bool           `json:"isGambling"`
	GamblingConfidence float64        `json:"gamblingConfidence"`
	GamblingType       GamblingType   `json:"gamblingType,omitempty"` // set only when IsGambling
	TypeConfidence     float64        `json:"typeConfidence"`
	PrimaryTrigger     Trigger        `json:"primaryTrigger"`
	TriggerConfidence  float64        `json:"triggerConfidence"`
	RelapseRisk        float64        `json:"relapseRisk"`
	TopTriggers        []TriggerScore `json:"topTriggers"`
}

// Transaction is a bank transaction received from the provider webhook.
// Amounts are signed and in currency minor units (cents); spends are negative.
type Transaction struct {
	ID           string          `json:"id"`
	ProviderTxID string          `json:"providerTxId"` // idempotency key
	UserID       string          `json:"userId"`
	AmountCents  int64           `json:"amountCents"`
	Currency     string          `json:"currency"`
	Payee        string          `json:"payee"`
	RawText      string          `json:"rawText,omitempty"`
	BalanceCents int64           `json:"balanceCents"`
	Timestamp    time.Time       `json:"timestamp"`
	Whitelisted  bool            `json:"whitelisted"`
	Result       *Classification `json:"classification,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

var (
	// ErrDuplicate is returned when a provider transaction id was already stored.
	ErrDuplicate = errors.New("transaction already recorded")
	// ErrNotFound is returned when a transaction does not exist.
	ErrNotFound = errors.New("transaction not found")
)

// Store persists transactions. Create must be idempotent on ProviderTxID:
// a concurrent duplicate delivery stores exactly one row and the second
// writer gets ErrDuplicate.
type Store interface {
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByProviderID(ctx context.Context, providerTxID string) (*Transaction, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]*Transaction, error)
	ListRecent(ctx context.Context, limit int) ([]*Transaction, error)
	// ListRecentBefore returns transactions strictly older than the
	// (before, beforeID) position, newest first. Used for cursor pagination.
	ListRecentBefore(ctx context.Context, before time.Time, beforeID string, limit int) ([]*Transaction, error)
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}
