package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betguard/betguard/internal/metrics"
)

// Handler is the inbound webhook endpoint. The server mounts it outside
// the rate limiter and enables HandleMethodNotAllowed so non-POST requests
// get the 405 the provider contract requires.
type Handler struct {
	svc     *Service
	secret  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewHandler creates the webhook handler. timeout bounds processing of a
// single delivery; expiry surfaces as a 500 so the provider retries.
func NewHandler(svc *Service, secret string, timeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, secret: secret, timeout: timeout, logger: logger}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhooks/bank", h.Receive)
}

// Receive authenticates and processes one webhook delivery. Signature
// validation runs against the exact raw body, strictly before parsing or
// any business logic.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "failed to read request body",
		})
		return
	}

	if !ValidateSignature(body, c.GetHeader(SignatureHeader), h.secret) {
		metrics.SignatureFailuresTotal.Inc()
		metrics.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		h.logger.Warn("webhook signature rejected", "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "missing or invalid signature",
		})
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "malformed event payload",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	outcome, err := h.svc.Process(ctx, &env)
	switch {
	case errors.Is(err, ErrMissingTransactionID) || errors.Is(err, ErrMissingUserID):
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": err.Error(),
		})
	case err != nil:
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		h.logger.Error("webhook processing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "event processing failed",
		})
	default:
		metrics.WebhookEventsTotal.WithLabelValues(string(outcome)).Inc()
		c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
	}
}
