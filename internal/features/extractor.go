package features

import (
	"math"
	"sort"
	"time"

	"github.com/betguard/betguard/internal/transaction"
)

// Extractor turns transactions into feature vectors using a merchant lexicon.
// Extract is a pure function of its inputs: same transaction and context
// always produce the same vector.
type Extractor struct {
	lex *Lexicon
}

// NewExtractor creates an extractor with the given lexicon. A nil lexicon
// falls back to the compiled-in default.
func NewExtractor(lex *Lexicon) *Extractor {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Extractor{lex: lex}
}

// Lexicon returns the extractor's merchant lexicon.
func (e *Extractor) Lexicon() *Lexicon { return e.lex }

// Extract computes the feature vector for a transaction. hctx may be nil,
// in which case neutral defaults apply. Out-of-range inputs are clamped,
// never propagated as NaN or Inf.
func (e *Extractor) Extract(tx *transaction.Transaction, hctx *Context) Vector {
	if hctx == nil {
		hctx = &Context{}
	}

	v := NewVector()
	amountCents := math.Abs(float64(tx.AmountCents))
	ts := tx.Timestamp.UTC()

	e.amountBand(v, amountCents, hctx)
	e.timeBand(v, ts, hctx)
	e.merchantBand(v, tx, hctx)
	e.sequenceBand(v, ts, hctx)
	e.historicalBand(v, hctx)
	e.contextBand(v, tx, hctx)

	v[idxSimHistorical] = unit(hctx.HistoricalSimilarity)
	v[idxSimCohort] = unit(hctx.CohortSimilarity)

	return v
}

func (e *Extractor) amountBand(v Vector, amountCents float64, hctx *Context) {
	v[idxAmountZScore] = clamp(zScore(amountCents, hctx.PopulationMeanCents, hctx.PopulationStdCents), -3, 3)
	v[idxAmountPercentile] = percentileRank(amountCents, hctx.RecentAmountsCents)
	v[idxAmountPersonalZ] = clamp(zScore(amountCents, hctx.PersonalMeanCents, hctx.PersonalStdCents), -3, 3)
	v[idxAmountAboveAvg] = flag(hctx.PersonalMeanCents > 0 && amountCents > hctx.PersonalMeanCents)
	v[idxAmountRoundNumber] = flag(isRoundAmount(amountCents))
}

func (e *Extractor) timeBand(v Vector, ts time.Time, hctx *Context) {
	hour := float64(ts.Hour())
	dow := float64(ts.Weekday()) // Sunday = 0
	dom := ts.Day()

	v[idxTimeHourFrac] = hour / 24.0
	v[idxTimeHourSin] = math.Sin(2 * math.Pi * hour / 24.0)
	v[idxTimeHourCos] = math.Cos(2 * math.Pi * hour / 24.0)
	v[idxTimeDowFrac] = dow / 7.0
	v[idxTimeDowSin] = math.Sin(2 * math.Pi * dow / 7.0)
	v[idxTimeDowCos] = math.Cos(2 * math.Pi * dow / 7.0)
	v[idxTimeWeekend] = flag(ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday)
	v[idxTimePaydayWindow] = flag(inPaydayWindow(ts, hctx.LastPaydayAt))
	v[idxTimeLateNight] = flag(hour >= 22 || hour < 2)
	v[idxTimeEarlyMorning] = flag(hour >= 2 && hour < 6)
	v[idxTimeDomFrac] = float64(dom-1) / 30.0
	v[idxTimeMonthStart] = flag(dom <= 3)
}

func (e *Extractor) merchantBand(v Vector, tx *transaction.Transaction, hctx *Context) {
	cat := e.lex.Classify(tx.Payee, tx.RawText)

	v[idxMerchantCategory] = e.lex.OrdinalScale(cat)
	v[idxMerchantRisk] = unit(cat.Risk)
	if hctx.TotalTxCount > 0 {
		v[idxMerchantFreqRatio] = unit(float64(hctx.MerchantTxCount) / float64(hctx.TotalTxCount))
	}
	v[idxMerchantFirstTime] = flag(hctx.MerchantTxCount == 0)
	v[idxMerchantGambling] = flag(cat.Name == CategoryGambling)
}

func (e *Extractor) sequenceBand(v Vector, ts time.Time, hctx *Context) {
	if !hctx.LastTxAt.IsZero() {
		elapsed := ts.Sub(hctx.LastTxAt)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > time.Hour {
			elapsed = time.Hour
		}
		// 1.0 = immediately after the previous transaction.
		v[idxSeqRecency] = 1 - elapsed.Seconds()/3600.0
	}
	v[idxSeqCountLastHour] = unit(float64(hctx.TxCountLastHour) / 20.0)
	v[idxSeqCountLastDay] = unit(float64(hctx.TxCountLastDay) / 100.0)
	v[idxSeqRecentATM] = flag(hctx.RecentATMWithdrawal)
	v[idxSeqRecentDrink] = flag(hctx.RecentDrinkingVenue)
	v[idxSeqBurst] = flag(hctx.TxCountLastHour >= burstThreshold)
}

func (e *Extractor) historicalBand(v Vector, hctx *Context) {
	v[idxHistGamblingCount] = unit(float64(hctx.GamblingTxCount) / 100.0)
	if hctx.DaysSinceLastGambling < 0 {
		// Never gambled: maximum distance.
		v[idxHistDaysSinceGamble] = 1
	} else {
		v[idxHistDaysSinceGamble] = unit(hctx.DaysSinceLastGambling / 365.0)
	}
	v[idxHistCleanStreak] = unit(hctx.CurrentCleanStreakDays / 365.0)
	v[idxHistLongestStreak] = unit(hctx.LongestCleanStreakDays / 365.0)
	v[idxHistRelapseCount] = unit(float64(hctx.RelapseCount) / 20.0)
	v[idxHistRelapseInterval] = unit(hctx.AvgRelapseIntervalDays / 180.0)
	v[idxHistPatternStrength] = unit(hctx.PatternStrength)
	v[idxHistPrimaryTrigger] = encodeTrigger(hctx.PrimaryPastTrigger)
}

func (e *Extractor) contextBand(v Vector, tx *transaction.Transaction, hctx *Context) {
	balance := float64(tx.BalanceCents)
	if balance < 0 {
		balance = 0
	}
	// 0..$10k maps to [0,1].
	v[idxCtxBalance] = unit(balance / 1_000_000.0)
	v[idxCtxCommitment] = flag(hctx.ActiveCommitment)
	v[idxCtxCommitDays] = unit(hctx.DaysIntoCommitment / 90.0)
	v[idxCtxGuardian] = flag(hctx.GuardianContact)
}

// zScore standardizes x against mean and std, returning 0 when std is
// unusable (no history yet).
func zScore(x, mean, std float64) float64 {
	if std <= 0 {
		return 0
	}
	return (x - mean) / std
}

// percentileRank returns the fraction of history strictly below x.
// An empty history yields the neutral 0.5.
func percentileRank(x float64, history []float64) float64 {
	if len(history) == 0 {
		return 0.5
	}
	sorted := make([]float64, len(history))
	copy(sorted, history)
	sort.Float64s(sorted)
	below := sort.SearchFloat64s(sorted, x)
	return unit(float64(below) / float64(len(sorted)))
}

// isRoundAmount reports whether the amount is a whole multiple of $10 or $50.
// Round bet sizes are a gambling tell.
func isRoundAmount(amountCents float64) bool {
	cents := int64(math.Round(amountCents))
	if cents == 0 || cents%100 != 0 {
		return false
	}
	dollars := cents / 100
	return dollars%10 == 0 || dollars%50 == 0
}

// inPaydayWindow reports whether ts falls in the payday window: within three
// days after the user's known payday, or on the common salary days when the
// payday is unknown.
func inPaydayWindow(ts time.Time, lastPayday time.Time) bool {
	if !lastPayday.IsZero() {
		since := ts.Sub(lastPayday)
		return since >= 0 && since <= 72*time.Hour
	}
	dom := ts.Day()
	return dom <= 3 || (dom >= 15 && dom <= 17)
}

// encodeTrigger maps a trigger label onto (0,1]; zero means none.
func encodeTrigger(t transaction.Trigger) float64 {
	for i, known := range transaction.Triggers {
		if known == t {
			return float64(i+1) / float64(len(transaction.Triggers))
		}
	}
	return 0
}
