// Package features converts a raw transaction plus historical context into
// the fixed-length numeric vector consumed by the classifier.
package features

import "math"

// Size is the fixed feature vector length. The classifier's input contract
// depends on it never changing; new features take slots from the zero-padded
// tail instead of growing the vector.
const Size = 122

// Band index layout. Each band owns a contiguous index range; the remainder
// of the vector is zero padding reserved for schema evolution.
const (
	idxAmountZScore      = 0 // population z-score, clamped [-3,3]
	idxAmountPercentile  = 1 // percentile rank in personal history [0,1]
	idxAmountPersonalZ   = 2 // personal z-score, clamped [-3,3]
	idxAmountAboveAvg    = 3 // above personal average flag
	idxAmountRoundNumber = 4 // round-number flag (mod 10 or 50)

	idxTimeHourFrac     = 5
	idxTimeHourSin      = 6
	idxTimeHourCos      = 7
	idxTimeDowFrac      = 8
	idxTimeDowSin       = 9
	idxTimeDowCos       = 10
	idxTimeWeekend      = 11
	idxTimePaydayWindow = 12
	idxTimeLateNight    = 13
	idxTimeEarlyMorning = 14
	idxTimeDomFrac      = 15 // day-of-month fraction
	idxTimeMonthStart   = 16 // first days of month flag

	idxMerchantCategory  = 17 // category ordinal, normalized [0,1]
	idxMerchantRisk      = 18
	idxMerchantFreqRatio = 19
	idxMerchantFirstTime = 20
	idxMerchantGambling  = 21

	idxSeqRecency       = 22 // time since last tx, capped 1h, normalized
	idxSeqCountLastHour = 23 // capped at 20
	idxSeqCountLastDay  = 24 // capped at 100
	idxSeqRecentATM     = 25
	idxSeqRecentDrink   = 26
	idxSeqBurst         = 27

	idxHistGamblingCount   = 28
	idxHistDaysSinceGamble = 29
	idxHistCleanStreak     = 30
	idxHistLongestStreak   = 31
	idxHistRelapseCount    = 32
	idxHistRelapseInterval = 33
	idxHistPatternStrength = 34
	idxHistPrimaryTrigger  = 35

	idxCtxBalance       = 36
	idxCtxCommitment    = 37
	idxCtxCommitDays    = 38
	idxCtxGuardian      = 39

	idxSimHistorical = 40
	idxSimCohort     = 41

	paddingStart = 42
)

// Vector is one extracted feature vector. Always exactly Size entries,
// every component finite and inside its band's documented range.
type Vector []float64

// NewVector returns a zeroed vector of the fixed size.
func NewVector() Vector {
	return make(Vector, Size)
}

// Valid reports whether the vector satisfies its invariants: exact length,
// all entries finite and within [-3, 3].
func (v Vector) Valid() bool {
	if len(v) != Size {
		return false
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < -3 || x > 3 {
			return false
		}
	}
	return true
}

// clamp bounds x to [lo, hi] and maps NaN to lo.
func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// unit bounds x to [0, 1].
func unit(x float64) float64 { return clamp(x, 0, 1) }

// flag converts a boolean to 0 or 1.
func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
