package features

import (
	"time"

	"github.com/betguard/betguard/internal/transaction"
)

// Context is the historical aggregate supplied alongside a transaction for
// feature extraction. Every field has a neutral default: a zero-value
// Context produces a valid vector, so the extractor never fails on a user
// with no history.
type Context struct {
	// Population statistics over absolute spend amounts, in cents.
	PopulationMeanCents float64
	PopulationStdCents  float64

	// Personal statistics over absolute spend amounts, in cents.
	PersonalMeanCents float64
	PersonalStdCents  float64
	// RecentAmountsCents holds the user's recent absolute spend amounts for
	// percentile ranking. May be empty.
	RecentAmountsCents []float64

	// Sequence/recency.
	LastTxAt            time.Time // zero = no prior transaction
	TxCountLastHour     int
	TxCountLastDay      int
	RecentATMWithdrawal bool
	RecentDrinkingVenue bool

	// Merchant familiarity.
	MerchantTxCount int // prior transactions at this merchant
	TotalTxCount    int // lifetime transaction count

	// Historical gambling behavior.
	GamblingTxCount        int
	DaysSinceLastGambling  float64 // negative = never gambled
	CurrentCleanStreakDays float64
	LongestCleanStreakDays float64
	RelapseCount           int
	AvgRelapseIntervalDays float64
	PatternStrength        float64             // [0,1], learned baseline
	PrimaryPastTrigger     transaction.Trigger // empty = none identified

	// Support context.
	ActiveCommitment   bool
	DaysIntoCommitment float64
	GuardianContact    bool
	LastPaydayAt       time.Time // zero = unknown, fall back to day-of-month heuristic

	// Pattern similarity, both [0,1].
	HistoricalSimilarity float64
	CohortSimilarity     float64
}

// burstThreshold is the transactions-in-last-hour count that marks a burst.
const burstThreshold = 5
