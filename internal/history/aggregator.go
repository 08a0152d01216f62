package history

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/betguard/betguard/internal/features"
	"github.com/betguard/betguard/internal/transaction"
	"github.com/betguard/betguard/internal/validation"
)

const (
	// historyWindow bounds how far back the aggregator reads per user.
	historyWindow = 180 * 24 * time.Hour
	// recentEventWindow is the lookback for ATM and drinking-venue flags.
	recentEventWindow = 3 * time.Hour
	// relapseGapDays is the clean gap after which a gambling event counts
	// as a relapse rather than continued activity.
	relapseGapDays = 7.0
	// maxRecentAmounts caps the percentile sample handed to extraction.
	maxRecentAmounts = 100
)

// Aggregator builds the extraction context for a transaction from the
// user's stored history, their profile, and the worker's baselines.
//
// It is fail-safe: store errors degrade to neutral defaults rather than
// blocking classification, so a database hiccup never drops a webhook.
type Aggregator struct {
	txs      transaction.Store
	profiles Store
	lex      *features.Lexicon
	logger   *slog.Logger

	mu      sync.RWMutex
	popMean float64
	popStd  float64
}

// NewAggregator creates an aggregator. A nil lexicon uses the defaults.
func NewAggregator(txs transaction.Store, profiles Store, lex *features.Lexicon, logger *slog.Logger) *Aggregator {
	if lex == nil {
		lex = features.DefaultLexicon()
	}
	return &Aggregator{txs: txs, profiles: profiles, lex: lex, logger: logger}
}

// SetPopulationStats replaces the cached population spend statistics.
func (a *Aggregator) SetPopulationStats(meanCents, stdCents float64) {
	a.mu.Lock()
	a.popMean = meanCents
	a.popStd = stdCents
	a.mu.Unlock()
}

// PopulationStats returns the cached population mean and stddev in cents.
func (a *Aggregator) PopulationStats() (meanCents, stdCents float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.popMean, a.popStd
}

// ContextFor assembles the historical context for tx. The transaction's own
// timestamp is the reference "now", so replayed deliveries produce the same
// vector. Always returns a usable context.
func (a *Aggregator) ContextFor(ctx context.Context, tx *transaction.Transaction) *features.Context {
	now := tx.Timestamp
	hctx := &features.Context{}
	hctx.PopulationMeanCents, hctx.PopulationStdCents = a.PopulationStats()

	prior, err := a.txs.ListByUserSince(ctx, tx.UserID, now.Add(-historyWindow))
	if err != nil {
		a.logger.Warn("history lookup failed, using neutral context",
			"user_id", tx.UserID, "error", err)
		prior = nil
	}
	// ListByUserSince is newest first; drop anything at or after the
	// transaction itself so redeliveries see only genuine priors.
	prior = before(prior, now)

	a.fillSpendStats(hctx, prior)
	a.fillSequence(hctx, prior, now)
	a.fillMerchant(hctx, prior, tx)
	a.fillGamblingHistory(hctx, prior, now)
	a.fillSimilarity(hctx, prior, tx)

	if b, err := a.profiles.GetBaseline(ctx, tx.UserID); err == nil {
		hctx.PatternStrength = clamp01(b.PatternStrength)
	} else if !errors.Is(err, ErrNotFound) {
		a.logger.Warn("baseline lookup failed", "user_id", tx.UserID, "error", err)
	}

	if p, err := a.profiles.GetProfile(ctx, tx.UserID); err == nil {
		if !p.CommitmentStartedAt.IsZero() && !p.CommitmentStartedAt.After(now) {
			hctx.ActiveCommitment = true
			hctx.DaysIntoCommitment = now.Sub(p.CommitmentStartedAt).Hours() / 24
		}
		hctx.GuardianContact = p.GuardianContact != ""
		hctx.LastPaydayAt = p.LastPaydayBefore(now)
	} else if !errors.Is(err, ErrNotFound) {
		a.logger.Warn("profile lookup failed", "user_id", tx.UserID, "error", err)
	}

	return hctx
}

func (a *Aggregator) fillSpendStats(hctx *features.Context, prior []*transaction.Transaction) {
	var amounts []float64
	for _, t := range prior {
		if t.AmountCents < 0 {
			amounts = append(amounts, float64(-t.AmountCents))
		}
	}
	if len(amounts) == 0 {
		return
	}
	hctx.PersonalMeanCents, hctx.PersonalStdCents = meanStddev(amounts)
	if len(amounts) > maxRecentAmounts {
		amounts = amounts[:maxRecentAmounts]
	}
	hctx.RecentAmountsCents = amounts
}

func (a *Aggregator) fillSequence(hctx *features.Context, prior []*transaction.Transaction, now time.Time) {
	if len(prior) == 0 {
		return
	}
	hctx.LastTxAt = prior[0].Timestamp

	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)
	eventCutoff := now.Add(-recentEventWindow)
	for _, t := range prior {
		if !t.Timestamp.Before(hourAgo) {
			hctx.TxCountLastHour++
		}
		if !t.Timestamp.Before(dayAgo) {
			hctx.TxCountLastDay++
		}
		if !t.Timestamp.Before(eventCutoff) {
			if a.lex.IsATM(t.Payee, t.RawText) {
				hctx.RecentATMWithdrawal = true
			}
			if a.lex.IsDrinkingVenue(t.Payee, t.RawText) {
				hctx.RecentDrinkingVenue = true
			}
		}
	}
}

func (a *Aggregator) fillMerchant(hctx *features.Context, prior []*transaction.Transaction, tx *transaction.Transaction) {
	hctx.TotalTxCount = len(prior)
	payee := validation.NormalizeMerchant(tx.Payee)
	for _, t := range prior {
		if validation.NormalizeMerchant(t.Payee) == payee {
			hctx.MerchantTxCount++
		}
	}
}

func (a *Aggregator) fillGamblingHistory(hctx *features.Context, prior []*transaction.Transaction, now time.Time) {
	// Oldest first for streak and relapse gaps.
	var gambling []*transaction.Transaction
	for i := len(prior) - 1; i >= 0; i-- {
		t := prior[i]
		if t.Result != nil && t.Result.IsGambling {
			gambling = append(gambling, t)
		}
	}
	hctx.GamblingTxCount = len(gambling)

	if len(gambling) == 0 {
		hctx.DaysSinceLastGambling = -1
		if len(prior) > 0 {
			clean := now.Sub(prior[len(prior)-1].Timestamp).Hours() / 24
			hctx.CurrentCleanStreakDays = clean
			hctx.LongestCleanStreakDays = clean
		}
		return
	}

	last := gambling[len(gambling)-1].Timestamp
	hctx.DaysSinceLastGambling = now.Sub(last).Hours() / 24
	hctx.CurrentCleanStreakDays = hctx.DaysSinceLastGambling

	longest := hctx.CurrentCleanStreakDays
	var relapseGaps []float64
	triggerCounts := make(map[transaction.Trigger]int)
	for i, g := range gambling {
		if g.Result.PrimaryTrigger != "" {
			triggerCounts[g.Result.PrimaryTrigger]++
		}
		if i == 0 {
			continue
		}
		gap := g.Timestamp.Sub(gambling[i-1].Timestamp).Hours() / 24
		if gap > longest {
			longest = gap
		}
		if gap >= relapseGapDays {
			relapseGaps = append(relapseGaps, gap)
		}
	}
	hctx.LongestCleanStreakDays = longest
	hctx.RelapseCount = len(relapseGaps)
	if len(relapseGaps) > 0 {
		var sum float64
		for _, g := range relapseGaps {
			sum += g
		}
		hctx.AvgRelapseIntervalDays = sum / float64(len(relapseGaps))
	}

	best := 0
	for trig, n := range triggerCounts {
		if n > best {
			best = n
			hctx.PrimaryPastTrigger = trig
		}
	}
}

// fillSimilarity scores how much tx resembles the user's past gambling
// pattern (hour of day and amount) and how typical the amount is for the
// population at large.
func (a *Aggregator) fillSimilarity(hctx *features.Context, prior []*transaction.Transaction, tx *transaction.Transaction) {
	amount := math.Abs(float64(tx.AmountCents))
	hour := float64(tx.Timestamp.Hour())

	var sum float64
	var n int
	for _, t := range prior {
		if t.Result == nil || !t.Result.IsGambling {
			continue
		}
		sum += 0.5*hourCloseness(hour, float64(t.Timestamp.Hour())) +
			0.5*amountCloseness(amount, math.Abs(float64(t.AmountCents)))
		n++
	}
	if n > 0 {
		hctx.HistoricalSimilarity = clamp01(sum / float64(n))
	}

	if hctx.PopulationStdCents > 0 {
		z := math.Abs(amount-hctx.PopulationMeanCents) / hctx.PopulationStdCents
		hctx.CohortSimilarity = 1 / (1 + z)
	} else {
		hctx.CohortSimilarity = 0.5
	}
}

func before(txs []*transaction.Transaction, cutoff time.Time) []*transaction.Transaction {
	out := txs[:0]
	for _, t := range txs {
		if t.Timestamp.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func hourCloseness(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 12 {
		d = 24 - d
	}
	return 1 - d/12
}

func amountCloseness(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	max := a
	if b > max {
		max = b
	}
	return 1 - math.Abs(a-b)/max
}

func meanStddev(xs []float64) (mean, stddev float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / n
	var varSum float64
	for _, x := range xs {
		d := x - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / n)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
