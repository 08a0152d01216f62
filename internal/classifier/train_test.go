package classifier

import (
	"errors"
	"testing"
	"time"

	"github.com/betguard/betguard/internal/features"
	"github.com/betguard/betguard/internal/transaction"
)

var testExtractor = features.NewExtractor(nil)

func exampleTx(payee string, amountCents int64, ts time.Time) *transaction.Transaction {
	return &transaction.Transaction{
		UserID:       "u1",
		AmountCents:  amountCents,
		Payee:        payee,
		Timestamp:    ts,
		BalanceCents: 150000,
	}
}

// exemplarSet builds a small separable training set: gambling merchants with
// risky contexts against everyday merchants with calm contexts.
func exemplarSet() []Example {
	var examples []Example

	gamblingCtx := &features.Context{
		PopulationMeanCents: 4000, PopulationStdCents: 3000,
		GamblingTxCount: 20, DaysSinceLastGambling: 2,
		RelapseCount: 4, PatternStrength: 0.9,
		PrimaryPastTrigger: transaction.TriggerPayday,
	}
	cleanCtx := &features.Context{
		PopulationMeanCents: 4000, PopulationStdCents: 3000,
		DaysSinceLastGambling: -1,
	}

	sportsDay := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC) // payday window
	casinoNight := time.Date(2025, 6, 7, 23, 30, 0, 0, time.UTC)

	sportsPayees := []string{"SPORTSBET MELBOURNE", "BET365 SYDNEY", "LADBROKES AU", "POINTSBET"}
	for i, payee := range sportsPayees {
		examples = append(examples, Example{
			Features:     testExtractor.Extract(exampleTx(payee, -5000-int64(i)*1000, sportsDay), gamblingCtx),
			IsGambling:   true,
			GamblingType: transaction.TypeSportsBetting,
			Trigger:      transaction.TriggerPayday,
			RelapseRisk:  0.8,
		})
	}

	casinoPayees := []string{"CROWN CASINO", "STAR CASINO SYDNEY", "SKYCITY CASINO", "CASINO CANBERRA"}
	for i, payee := range casinoPayees {
		examples = append(examples, Example{
			Features:     testExtractor.Extract(exampleTx(payee, -20000-int64(i)*5000, casinoNight), gamblingCtx),
			IsGambling:   true,
			GamblingType: transaction.TypeCasino,
			Trigger:      transaction.TriggerLateNight,
			RelapseRisk:  0.9,
		})
	}

	cleanPayees := []string{
		"WOOLWORTHS METRO", "COLES EXPRESS", "ORIGIN ENERGY",
		"OPAL TOPUP", "KMART SYDNEY", "MCDONALDS", "NETFLIX.COM", "JB HI-FI",
	}
	mid := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	for i, payee := range cleanPayees {
		examples = append(examples, Example{
			Features:    testExtractor.Extract(exampleTx(payee, -1500-int64(i)*700, mid), cleanCtx),
			IsGambling:  false,
			RelapseRisk: 0.05,
		})
	}

	return examples
}

func overfitOptions() Options {
	return Options{
		Epochs:             300,
		BatchSize:          4,
		LearningRate:       0.05,
		ValidationFraction: 0,
		DropoutRate:        0,
		Seed:               42,
	}
}

func TestTrainOverfitsExemplars(t *testing.T) {
	examples := exemplarSet()
	n := NewNetwork(42)

	hist, err := n.Train(examples, overfitOptions())
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	if hist.Examples != len(examples) {
		t.Errorf("history examples: got %d, want %d", hist.Examples, len(examples))
	}
	if len(hist.Epochs) != 300 {
		t.Errorf("expected 300 epoch records, got %d", len(hist.Epochs))
	}
	if hist.FinalAccuracy < 0.9 {
		t.Fatalf("model failed to fit exemplars: accuracy %v", hist.FinalAccuracy)
	}

	first := hist.Epochs[0].TrainLoss
	last := hist.Epochs[len(hist.Epochs)-1].TrainLoss
	if last >= first {
		t.Errorf("training loss did not decrease: %v -> %v", first, last)
	}

	// The Sportsbet exemplar must classify as gambling with high confidence.
	sports := examples[0]
	c, err := n.Predict(sports.Features)
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsGambling || c.GamblingConfidence <= 0.5 {
		t.Errorf("Sportsbet exemplar: gambling=%v confidence=%v", c.IsGambling, c.GamblingConfidence)
	}
	if c.GamblingType != transaction.TypeSportsBetting {
		t.Errorf("Sportsbet exemplar type: got %s", c.GamblingType)
	}

	// A clean exemplar must stay below threshold.
	clean := examples[len(examples)-1]
	cc, err := n.Predict(clean.Features)
	if err != nil {
		t.Fatal(err)
	}
	if cc.IsGambling {
		t.Errorf("clean exemplar flagged as gambling with confidence %v", cc.GamblingConfidence)
	}
	if cc.RelapseRisk > 0.5 {
		t.Errorf("clean exemplar relapse risk too high: %v", cc.RelapseRisk)
	}
}

func TestTrainValidationSplit(t *testing.T) {
	examples := exemplarSet()
	n := NewNetwork(1)

	opts := overfitOptions()
	opts.Epochs = 5
	opts.ValidationFraction = 0.25

	hist, err := n.Train(examples, opts)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	for _, e := range hist.Epochs {
		if e.ValLoss == 0 && e.ValAccuracy == 0 {
			t.Fatal("validation stats missing despite validation fraction")
		}
	}
}

func TestTrainRejectsEmptyAndMalformed(t *testing.T) {
	n := NewNetwork(1)

	if _, err := n.Train(nil, DefaultOptions()); !errors.Is(err, ErrNoExamples) {
		t.Errorf("expected ErrNoExamples, got %v", err)
	}

	bad := []Example{{Features: make(features.Vector, 10), IsGambling: true}}
	if _, err := n.Train(bad, DefaultOptions()); !errors.Is(err, ErrBadInput) {
		t.Errorf("expected ErrBadInput, got %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	examples := exemplarSet()
	n := NewNetwork(42)
	if _, err := n.Train(examples, overfitOptions()); err != nil {
		t.Fatal(err)
	}

	loss, acc := n.Evaluate(examples)
	if acc < 0.9 {
		t.Errorf("evaluate accuracy %v after overfit", acc)
	}
	if loss < 0 {
		t.Errorf("loss cannot be negative: %v", loss)
	}

	zeroLoss, zeroAcc := n.Evaluate(nil)
	if zeroLoss != 0 || zeroAcc != 0 {
		t.Error("empty evaluation should return zeros")
	}
}
