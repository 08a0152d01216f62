package intervention

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/betguard/betguard/internal/circuitbreaker"
	"github.com/betguard/betguard/internal/metrics"
	"github.com/betguard/betguard/internal/retry"
)

// breakerKey identifies the single guardian endpoint in the circuit breaker.
const breakerKey = "guardian-notify"

// Notifier delivers alert records to the guardian-notification collaborator
// as signed webhooks. Delivery mechanics beyond this HTTP contract (push,
// SMS, email fan-out) belong to that collaborator.
type Notifier struct {
	url     string
	secret  string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewNotifier creates a notifier. An empty url disables delivery.
func NewNotifier(url, secret string, logger *slog.Logger) *Notifier {
	return &Notifier{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
	}
}

// Notify delivers an alert record. Transient failures are retried with
// backoff; sustained failure trips the circuit breaker so a dead guardian
// endpoint cannot stall the pipeline. Errors are reported to the caller for
// logging but never block webhook acknowledgment.
func (n *Notifier) Notify(ctx context.Context, r *Record) error {
	if n.url == "" {
		metrics.NotifierDeliveriesTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if !n.breaker.Allow(breakerKey) {
		metrics.NotifierDeliveriesTotal.WithLabelValues("breaker_open").Inc()
		return fmt.Errorf("guardian notification skipped: circuit open")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	err = retry.DoNotify(ctx, 3, 500*time.Millisecond, func() error {
		return n.post(ctx, payload)
	}, func(attempt int, err error) {
		n.logger.Warn("guardian notification retry",
			"alert_id", r.ID, "attempt", attempt, "error", err)
	})

	if err != nil {
		n.breaker.RecordFailure(breakerKey)
		metrics.NotifierDeliveriesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("guardian notification failed: %w", err)
	}

	n.breaker.RecordSuccess(breakerKey)
	metrics.NotifierDeliveriesTotal.WithLabelValues("delivered").Inc()
	return nil
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BetGuard-Event", "intervention.alert")
	req.Header.Set("X-BetGuard-Signature", Sign(payload, n.secret))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// The collaborator rejected the payload; retrying cannot help.
		return retry.Permanent(fmt.Errorf("guardian endpoint returned %d", resp.StatusCode))
	}
	return fmt.Errorf("guardian endpoint returned %d", resp.StatusCode)
}

// Sign computes the hex HMAC-SHA256 signature for an outbound payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
