package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/betguard/betguard/internal/classifier"
	"github.com/betguard/betguard/internal/features"
	"github.com/betguard/betguard/internal/idgen"
	"github.com/betguard/betguard/internal/intervention"
	"github.com/betguard/betguard/internal/metrics"
	"github.com/betguard/betguard/internal/realtime"
	"github.com/betguard/betguard/internal/traces"
	"github.com/betguard/betguard/internal/transaction"
	"github.com/betguard/betguard/internal/whitelist"
)

// Outcome describes how a webhook event was handled.
type Outcome string

const (
	OutcomeProcessed   Outcome = "processed"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeWhitelisted Outcome = "whitelisted"
	OutcomeIgnored     Outcome = "ignored"
)

// notifyTimeout bounds the async guardian notification, which includes the
// notifier's own retries.
const notifyTimeout = 30 * time.Second

// ContextProvider supplies the historical context for feature extraction.
type ContextProvider interface {
	ContextFor(ctx context.Context, tx *transaction.Transaction) *features.Context
}

// Service runs one webhook event through the detection pipeline:
// idempotency and whitelist checks, feature extraction, classification,
// persistence, then the intervention decision and alert dispatch.
//
// Alert delivery happens strictly after the transaction write succeeds, so
// a failed write (500, provider retries) can never have produced an alert
// for a record that was not durably stored.
type Service struct {
	txs           transaction.Store
	interventions intervention.Store
	checker       *whitelist.Checker
	contexts      ContextProvider
	extractor     *features.Extractor
	model         *classifier.Handle
	notifier      *intervention.Notifier
	hub           *realtime.Hub
	threshold     float64
	logger        *slog.Logger
}

// NewService wires the pipeline. notifier and hub may be nil to disable
// guardian notification and the operator stream.
func NewService(
	txs transaction.Store,
	interventions intervention.Store,
	checker *whitelist.Checker,
	contexts ContextProvider,
	extractor *features.Extractor,
	model *classifier.Handle,
	notifier *intervention.Notifier,
	hub *realtime.Hub,
	threshold float64,
	logger *slog.Logger,
) *Service {
	return &Service{
		txs:           txs,
		interventions: interventions,
		checker:       checker,
		contexts:      contexts,
		extractor:     extractor,
		model:         model,
		notifier:      notifier,
		hub:           hub,
		threshold:     threshold,
		logger:        logger,
	}
}

// Process handles one authenticated, parsed envelope. Returned errors mean
// the provider should retry the delivery; every other path acknowledges.
func (s *Service) Process(ctx context.Context, env *Envelope) (Outcome, error) {
	if env.Event != EventTransactionCreated {
		s.logger.Debug("ignoring webhook event", "event", env.Event)
		return OutcomeIgnored, nil
	}

	now := time.Now().UTC()
	tx, err := env.Transaction(now)
	if err != nil {
		return "", err
	}

	ctx, span := traces.StartSpan(ctx, "webhook.process",
		traces.TransactionID(tx.ID),
		traces.UserID(tx.UserID),
		traces.Merchant(tx.Payee),
	)
	defer span.End()

	// Fast duplicate path. The unique index on provider_tx_id still
	// catches the concurrent-delivery race at Create below.
	if _, err := s.txs.GetByProviderID(ctx, tx.ProviderTxID); err == nil {
		s.logger.Info("duplicate webhook delivery skipped",
			"provider_tx_id", tx.ProviderTxID)
		return OutcomeDuplicate, nil
	}

	tx.Whitelisted = s.checker.IsWhitelisted(ctx, tx.UserID, tx.Payee)
	tx.Result = s.classify(ctx, tx)

	if err := s.txs.Create(ctx, tx); err != nil {
		if errors.Is(err, transaction.ErrDuplicate) {
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("failed to store transaction: %w", err)
	}

	rec := intervention.Decide(tx, tx.Result, tx.Whitelisted, s.threshold, now)
	rec.ID = idgen.WithPrefix("ivn_")
	if err := s.interventions.Create(ctx, rec); err != nil {
		// The transaction is durable and a provider retry would
		// short-circuit as a duplicate, so losing the alert to a 500
		// here would be permanent. Deliver it anyway.
		s.logger.Error("failed to store intervention record",
			"intervention_id", rec.ID, "transaction_id", tx.ID, "error", err)
	}

	s.dispatch(tx, rec)

	if tx.Whitelisted {
		return OutcomeWhitelisted, nil
	}
	return OutcomeProcessed, nil
}

// classify extracts features and runs inference. A nil return means
// inference failed; the intervention rule then fails safe toward alerting.
func (s *Service) classify(ctx context.Context, tx *transaction.Transaction) *transaction.Classification {
	ctx, span := traces.StartSpan(ctx, "webhook.classify")
	defer span.End()

	start := time.Now()
	vec := s.extractor.Extract(tx, s.contexts.ContextFor(ctx, tx))
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())

	result, err := s.model.Predict(vec)
	if err != nil {
		metrics.ClassificationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("classification failed",
			"transaction_id", tx.ID, "error", err)
		return nil
	}
	if result.IsGambling {
		metrics.ClassificationsTotal.WithLabelValues("gambling").Inc()
		span.SetAttributes(traces.Verdict("gambling"), traces.GamblingType(string(result.GamblingType)))
	} else {
		metrics.ClassificationsTotal.WithLabelValues("clean").Inc()
		span.SetAttributes(traces.Verdict("clean"))
	}
	return result
}

// dispatch fans the decision out to the guardian notifier and the operator
// stream. Delivery is asynchronous and best-effort; the webhook response
// does not wait on it.
func (s *Service) dispatch(tx *transaction.Transaction, rec *intervention.Record) {
	if s.hub != nil {
		event := map[string]interface{}{
			"transactionId": tx.ID,
			"userId":        tx.UserID,
			"payee":         tx.Payee,
			"whitelisted":   tx.Whitelisted,
		}
		if tx.Result != nil {
			event["isGambling"] = tx.Result.IsGambling
			event["confidence"] = tx.Result.GamblingConfidence
		}
		s.hub.BroadcastClassification(event)
	}

	if !rec.Alert {
		return
	}

	gamblingType := string(rec.GamblingType)
	if gamblingType == "" {
		gamblingType = "unspecified"
	}
	metrics.AlertsTotal.WithLabelValues(gamblingType).Inc()

	if s.hub != nil {
		s.hub.BroadcastAlert(map[string]interface{}{
			"alertId":       rec.ID,
			"transactionId": rec.TransactionID,
			"userId":        rec.UserID,
			"payee":         tx.Payee,
			"amountCents":   tx.AmountCents,
			"gamblingType":  gamblingType,
			"confidence":    rec.Confidence,
			"relapseRisk":   rec.RelapseRisk,
			"rationale":     rec.Rationale,
		})
	}

	if s.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := s.notifier.Notify(nctx, rec); err != nil {
				s.logger.Error("guardian notification failed",
					"intervention_id", rec.ID, "error", err)
			}
		}()
	}
}
