package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betguard/betguard/internal/classifier"
	"github.com/betguard/betguard/internal/history"
	"github.com/betguard/betguard/internal/intervention"
	"github.com/betguard/betguard/internal/logging"
	"github.com/betguard/betguard/internal/metrics"
	"github.com/betguard/betguard/internal/pagination"
	"github.com/betguard/betguard/internal/transaction"
	"github.com/betguard/betguard/internal/validation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// minTrainingExamples is the floor below which a retrain is refused
	// rather than producing a model that memorized a handful of rows.
	minTrainingExamples = 10

	retrainFetchLimit = 5000
)

func listLimit(c *gin.Context) int {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

func (s *Server) listTransactions(c *gin.Context) {
	limit := listLimit(c)

	if userID := c.Query("userId"); userID != "" {
		if !validation.IsValidUserID(userID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_user_id",
				"message": "userId must be 1-64 alphanumeric, dash, or underscore characters",
			})
			return
		}
		txs, err := s.txs.ListByUser(c.Request.Context(), userID, limit)
		if err != nil {
			logging.L(c.Request.Context()).Error("failed to list transactions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to list transactions",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": txs,
			"count":        len(txs),
		})
		return
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is malformed",
		})
		return
	}

	// Fetch one extra row to know whether another page exists.
	var txs []*transaction.Transaction
	if cursor != nil {
		txs, err = s.txs.ListRecentBefore(c.Request.Context(), cursor.CreatedAt, cursor.ID, limit+1)
	} else {
		txs, err = s.txs.ListRecent(c.Request.Context(), limit+1)
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transactions",
		})
		return
	}

	txs, next, hasMore := pagination.ComputePage(txs, limit, func(t *transaction.Transaction) (time.Time, string) {
		return t.Timestamp, t.ID
	})

	resp := gin.H{
		"transactions": txs,
		"count":        len(txs),
		"hasMore":      hasMore,
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getTransaction(c *gin.Context) {
	tx, err := s.txs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Transaction not found",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to get transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get transaction",
		})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// -----------------------------------------------------------------------------
// Interventions
// -----------------------------------------------------------------------------

func (s *Server) listInterventions(c *gin.Context) {
	limit := listLimit(c)

	var (
		recs []*intervention.Record
		err  error
	)
	if userID := c.Query("userId"); userID != "" {
		if !validation.IsValidUserID(userID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_user_id",
				"message": "userId must be 1-64 alphanumeric, dash, or underscore characters",
			})
			return
		}
		recs, err = s.interventions.ListByUser(c.Request.Context(), userID, limit)
	} else {
		recs, err = s.interventions.ListAlerts(c.Request.Context(), limit)
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list interventions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list interventions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interventions": recs,
		"count":         len(recs),
	})
}

func (s *Server) listUserAlerts(c *gin.Context) {
	userID := c.Param("userID")
	limit := listLimit(c)

	recs, err := s.interventions.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list alerts", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list alerts",
		})
		return
	}

	alerts := make([]*intervention.Record, 0, len(recs))
	for _, r := range recs {
		if r.Alert {
			alerts = append(alerts, r)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"userId": userID,
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// -----------------------------------------------------------------------------
// User profiles
// -----------------------------------------------------------------------------

func (s *Server) getProfile(c *gin.Context) {
	userID := c.Param("userID")

	p, err := s.profiles.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No profile for this user",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to get profile", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get profile",
		})
		return
	}
	c.JSON(http.StatusOK, p)
}

type profileRequest struct {
	CommitmentStartedAt *time.Time `json:"commitmentStartedAt"`
	GuardianContact     string     `json:"guardianContact"`
	PaydayDayOfMonth    int        `json:"paydayDayOfMonth"`
}

func (s *Server) putProfile(c *gin.Context) {
	userID := c.Param("userID")

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body",
		})
		return
	}

	if req.PaydayDayOfMonth < 0 || req.PaydayDayOfMonth > 31 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "paydayDayOfMonth must be between 0 and 31",
		})
		return
	}
	if len(req.GuardianContact) > 256 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "guardianContact exceeds maximum length",
		})
		return
	}

	p := &history.Profile{
		UserID:           userID,
		GuardianContact:  validation.SanitizeString(req.GuardianContact, 256),
		PaydayDayOfMonth: req.PaydayDayOfMonth,
	}
	if req.CommitmentStartedAt != nil {
		p.CommitmentStartedAt = req.CommitmentStartedAt.UTC()
	}

	if err := s.profiles.UpsertProfile(c.Request.Context(), p); err != nil {
		logging.L(c.Request.Context()).Error("failed to upsert profile", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to save profile",
		})
		return
	}

	saved, err := s.profiles.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusOK, p)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// -----------------------------------------------------------------------------
// Model
// -----------------------------------------------------------------------------

func (s *Server) modelInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.model.Info())
}

func (s *Server) streamStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Stats())
}

// retrainHandler kicks off an asynchronous training run over the stored
// labeled transactions and publishes the result atomically on success.
// In-flight requests keep classifying against the previous model throughout.
func (s *Server) retrainHandler(c *gin.Context) {
	if !s.training.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "training_in_progress",
			"message": "A training run is already in progress",
		})
		return
	}

	s.logger.Info("retrain requested", "request_id", logging.EventID(c.Request.Context()))

	go func() {
		defer s.training.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := s.retrain(ctx); err != nil {
			metrics.ModelTrainingsTotal.WithLabelValues("failure").Inc()
			s.logger.Error("retrain failed", "error", err)
			return
		}
		metrics.ModelTrainingsTotal.WithLabelValues("success").Inc()
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "training_started",
		"message": "Training run started; poll /v1/model for the published version",
	})
}

func (s *Server) retrain(ctx context.Context) error {
	txs, err := s.txs.ListRecent(ctx, retrainFetchLimit)
	if err != nil {
		return err
	}

	examples := make([]classifier.Example, 0, len(txs))
	for _, tx := range txs {
		if tx.Result == nil {
			continue
		}
		hctx := s.aggregator.ContextFor(ctx, tx)
		examples = append(examples, classifier.Example{
			Features:     s.extractor.Extract(tx, hctx),
			IsGambling:   tx.Result.IsGambling,
			GamblingType: tx.Result.GamblingType,
			Trigger:      tx.Result.PrimaryTrigger,
			RelapseRisk:  tx.Result.RelapseRisk,
		})
	}
	if len(examples) < minTrainingExamples {
		return errors.New("not enough labeled transactions to train")
	}

	n := classifier.NewNetwork(time.Now().UnixNano())
	hist, err := n.Train(examples, classifier.DefaultOptions())
	if err != nil {
		return err
	}

	version := time.Now().UTC().Format("20060102-150405")
	art := classifier.NewArtifact(n, version, hist.FinalAccuracy, hist.Examples)
	if err := art.Save(s.cfg.ModelPath); err != nil {
		return err
	}
	s.model.Publish(art)

	s.logger.Info("retrain complete",
		"version", version,
		"examples", hist.Examples,
		"accuracy", hist.FinalAccuracy,
		"duration_ms", hist.Duration.Milliseconds(),
	)

	s.hub.BroadcastModelEvent(map[string]interface{}{
		"version":  version,
		"examples": hist.Examples,
		"accuracy": hist.FinalAccuracy,
	})
	return nil
}

// adminSecretEqual compares in constant time to avoid leaking the secret
// through timing.
func adminSecretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
