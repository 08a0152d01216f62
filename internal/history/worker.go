package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/betguard/betguard/internal/transaction"
)

const (
	// patternWindow is how far back the worker looks when scoring habits.
	patternWindow = 28 * 24 * time.Hour
	// minPatternSamples is the minimum gambling events before a baseline
	// is worth persisting.
	minPatternSamples = 3
	// populationSample bounds the recent-transaction scan used for the
	// population spend statistics.
	populationSample = 1000
)

// Worker periodically recomputes per-user pattern baselines and the
// population spend statistics cached on the aggregator.
type Worker struct {
	txs      transaction.Store
	profiles Store
	agg      *Aggregator
	logger   *slog.Logger
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
}

// NewWorker creates an hourly baseline recomputation worker.
func NewWorker(txs transaction.Store, profiles Store, agg *Aggregator, logger *slog.Logger) *Worker {
	return &Worker{
		txs:      txs,
		profiles: profiles,
		agg:      agg,
		logger:   logger,
		interval: 1 * time.Hour,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the worker loop is active.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start refreshes everything once, then recomputes on the interval until
// the context is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	w.safeDoWork(ctx, w.refreshPopulationStats)
	w.safeDoWork(ctx, w.compute)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.safeDoWork(ctx, w.refreshPopulationStats)
			w.safeDoWork(ctx, w.compute)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

func (w *Worker) safeDoWork(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in history worker", "panic", fmt.Sprint(r))
		}
	}()
	fn(ctx)
}

// refreshPopulationStats recomputes mean and stddev of absolute spend
// amounts over the most recent transactions across all users.
func (w *Worker) refreshPopulationStats(ctx context.Context) {
	recent, err := w.txs.ListRecent(ctx, populationSample)
	if err != nil {
		w.logger.Error("failed to load recent transactions for population stats", "error", err)
		return
	}

	var amounts []float64
	for _, t := range recent {
		if t.AmountCents < 0 {
			amounts = append(amounts, float64(-t.AmountCents))
		}
	}
	if len(amounts) == 0 {
		return
	}
	mean, std := meanStddev(amounts)
	w.agg.SetPopulationStats(mean, std)
	w.logger.Info("population spend stats refreshed",
		"sample", len(amounts), "mean_cents", mean, "stddev_cents", std)
}

// compute rescores the gambling pattern strength of every user active in
// the pattern window and saves the batch.
func (w *Worker) compute(ctx context.Context) {
	since := time.Now().Add(-patternWindow)
	users, err := w.txs.ActiveUsers(ctx, since)
	if err != nil {
		w.logger.Error("baseline compute: failed to list active users", "error", err)
		return
	}

	var batch []*Baseline
	for _, userID := range users {
		txs, err := w.txs.ListByUserSince(ctx, userID, since)
		if err != nil {
			w.logger.Warn("baseline compute: failed to load history",
				"user_id", userID, "error", err)
			continue
		}

		strength, samples := patternStrength(txs)
		if samples < minPatternSamples {
			continue
		}
		batch = append(batch, &Baseline{
			UserID:          userID,
			PatternStrength: strength,
			SampleCount:     samples,
			UpdatedAt:       time.Now(),
		})
	}

	if len(batch) == 0 {
		return
	}
	if err := w.profiles.SaveBaselines(ctx, batch); err != nil {
		w.logger.Error("baseline compute: failed to save batch", "error", err)
		return
	}
	w.logger.Info("baselines recomputed", "users", len(batch))
}

// patternStrength scores how entrenched a user's gambling habit is in
// [0,1]: half from event frequency, half from how concentrated the events
// are in a particular six-hour block of the day. A habitual late-night
// gambler scores higher than the same count spread evenly.
func patternStrength(txs []*transaction.Transaction) (strength float64, samples int) {
	var buckets [4]int
	for _, t := range txs {
		if t.Result == nil || !t.Result.IsGambling {
			continue
		}
		samples++
		buckets[t.Timestamp.Hour()/6]++
	}
	if samples == 0 {
		return 0, 0
	}

	frequency := math.Min(1, float64(samples)/20)
	maxBucket := 0
	for _, n := range buckets {
		if n > maxBucket {
			maxBucket = n
		}
	}
	concentration := float64(maxBucket) / float64(samples)
	return 0.5*frequency + 0.5*concentration, samples
}
