// Package intervention converts classification results into alert-or-not
// decisions and dispatches guardian notifications for alerts.
package intervention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/betguard/betguard/internal/transaction"
)

// Record is the outcome of the intervention decision for one transaction.
// It carries the classification enrichment downstream consumers need
// (guardian notification, counselor reports) without performing delivery.
type Record struct {
	ID             string                   `json:"id"`
	TransactionID  string                   `json:"transactionId"`
	UserID         string                   `json:"userId"`
	Alert          bool                     `json:"alert"`
	Resolved       bool                     `json:"resolved"` // whitelisted, treated as closed
	Rationale      string                   `json:"rationale"`
	Confidence     float64                  `json:"confidence"`
	GamblingType   transaction.GamblingType `json:"gamblingType,omitempty"`
	PrimaryTrigger transaction.Trigger      `json:"primaryTrigger,omitempty"`
	RelapseRisk    float64                  `json:"relapseRisk"`
	CreatedAt      time.Time                `json:"createdAt"`
}

// ErrNotFound is returned when an intervention record does not exist.
var ErrNotFound = errors.New("intervention record not found")

// Store persists intervention records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error)
	ListAlerts(ctx context.Context, limit int) ([]*Record, error)
}

// Decide applies the intervention rule. Pure: same inputs, same decision.
//
// Whitelisted transactions resolve without an alert regardless of the
// classification. A nil result means inference failed; the rule fails safe
// toward alerting because a missed alert is worse than a spurious one.
// Otherwise an alert fires iff the transaction is gambling with confidence
// above the threshold.
func Decide(tx *transaction.Transaction, result *transaction.Classification, whitelisted bool, threshold float64, now time.Time) *Record {
	r := &Record{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		CreatedAt:     now,
	}

	switch {
	case whitelisted:
		r.Resolved = true
		r.Rationale = "payee whitelisted, resolved without alert"

	case result == nil:
		r.Alert = true
		r.Rationale = "classification unavailable, precautionary alert"

	case result.IsGambling && result.GamblingConfidence > threshold:
		r.Alert = true
		r.Confidence = result.GamblingConfidence
		r.GamblingType = result.GamblingType
		r.PrimaryTrigger = result.PrimaryTrigger
		r.RelapseRisk = result.RelapseRisk
		r.Rationale = fmt.Sprintf("gambling transaction detected (%s, confidence %.2f)",
			result.GamblingType, result.GamblingConfidence)

	case result.IsGambling:
		r.Confidence = result.GamblingConfidence
		r.GamblingType = result.GamblingType
		r.PrimaryTrigger = result.PrimaryTrigger
		r.RelapseRisk = result.RelapseRisk
		r.Rationale = fmt.Sprintf("gambling suspected but confidence %.2f below threshold %.2f",
			result.GamblingConfidence, threshold)

	default:
		r.Confidence = result.GamblingConfidence
		r.PrimaryTrigger = result.PrimaryTrigger
		r.RelapseRisk = result.RelapseRisk
		r.Rationale = "no gambling indicators"
	}

	return r
}
