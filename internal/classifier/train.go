package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/betguard/betguard/internal/features"
	"github.com/betguard/betguard/internal/transaction"
)

// Example is one labeled training example.
type Example struct {
	Features     features.Vector          `json:"features"`
	IsGambling   bool                     `json:"isGambling"`
	GamblingType transaction.GamblingType `json:"gamblingType,omitempty"` // required when IsGambling
	Trigger      transaction.Trigger      `json:"trigger,omitempty"`      // optional
	RelapseRisk  float64                  `json:"relapseRisk"`
}

// Options controls a training run.
type Options struct {
	Epochs             int
	BatchSize          int
	LearningRate       float64
	ValidationFraction float64
	DropoutRate        float64
	Seed               int64
}

// DefaultOptions returns the standard training configuration.
func DefaultOptions() Options {
	return Options{
		Epochs:             30,
		BatchSize:          32,
		LearningRate:       0.01,
		ValidationFraction: 0.2,
		DropoutRate:        0.2,
		Seed:               1,
	}
}

// EpochStats records one epoch of training progress.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	TrainLoss   float64 `json:"trainLoss"`
	ValLoss     float64 `json:"valLoss"`
	ValAccuracy float64 `json:"valAccuracy"`
}

// History is the outcome of a training run.
type History struct {
	Epochs        []EpochStats  `json:"epochs"`
	FinalLoss     float64       `json:"finalLoss"`
	FinalAccuracy float64       `json:"finalAccuracy"`
	Examples      int           `json:"examples"`
	Duration      time.Duration `json:"duration"`
}

// ErrNoExamples is returned when training is attempted with no data.
var ErrNoExamples = errors.New("no training examples")

// gradients accumulates parameter gradients with the same shapes as the network.
type gradients struct {
	trunk    []*layer
	gambling *layer
	typ      *layer
	trigger  *layer
	relapse  *layer
}

func newGradients(n *Network) *gradients {
	zero := func(src *layer) *layer {
		g := &layer{W: make([][]float64, len(src.W)), B: make([]float64, len(src.B))}
		for o := range src.W {
			g.W[o] = make([]float64, len(src.W[o]))
		}
		return g
	}
	g := &gradients{
		gambling: zero(n.GamblingHead),
		typ:      zero(n.TypeHead),
		trigger:  zero(n.TriggerHead),
		relapse:  zero(n.RelapseHead),
	}
	for _, l := range n.Trunk {
		g.trunk = append(g.trunk, zero(l))
	}
	return g
}

// Train fits the network to the examples with mini-batch gradient descent
// against the four simultaneous losses (binary cross-entropy for the
// gambling head, categorical cross-entropy for the type and trigger heads,
// mean squared error for the relapse head). The receiver is mutated;
// callers wanting atomic publication train a fresh network and swap it in.
func (n *Network) Train(examples []Example, opts Options) (*History, error) {
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}
	for i, ex := range examples {
		if len(ex.Features) != features.Size {
			return nil, fmt.Errorf("example %d: %w: got %d, want %d",
				i, ErrBadInput, len(ex.Features), features.Size)
		}
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultOptions().Epochs
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultOptions().LearningRate
	}

	rng := rand.New(rand.NewSource(opts.Seed)) // #nosec G404 -- shuffling and dropout

	// Validation split.
	shuffled := make([]Example, len(examples))
	copy(shuffled, examples)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	nVal := int(float64(len(shuffled)) * opts.ValidationFraction)
	val := shuffled[:nVal]
	train := shuffled[nVal:]
	if len(train) == 0 {
		train = shuffled
		val = nil
	}

	start := time.Now()
	hist := &History{Examples: len(examples)}

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(len(train), func(i, j int) {
			train[i], train[j] = train[j], train[i]
		})

		var epochLoss float64
		for batchStart := 0; batchStart < len(train); batchStart += opts.BatchSize {
			end := batchStart + opts.BatchSize
			if end > len(train) {
				end = len(train)
			}
			batch := train[batchStart:end]

			grads := newGradients(n)
			for i := range batch {
				epochLoss += n.backprop(&batch[i], grads, rng, opts.DropoutRate)
			}
			n.applyGradients(grads, opts.LearningRate/float64(len(batch)))
		}

		stats := EpochStats{Epoch: epoch, TrainLoss: epochLoss / float64(len(train))}
		if len(val) > 0 {
			stats.ValLoss, stats.ValAccuracy = n.Evaluate(val)
		}
		hist.Epochs = append(hist.Epochs, stats)
	}

	hist.Duration = time.Since(start)
	hist.FinalLoss, hist.FinalAccuracy = n.Evaluate(examples)
	return hist, nil
}

// backprop runs one forward+backward pass, accumulates gradients, and
// returns the example's total loss.
func (n *Network) backprop(ex *Example, grads *gradients, rng *rand.Rand, dropRate float64) float64 {
	act := n.forward(ex.Features, rng, dropRate)

	// Targets.
	yGambling := 0.0
	if ex.IsGambling {
		yGambling = 1.0
	}
	typeTarget, haveType := typeIndex(ex.GamblingType)
	trigTarget, haveTrig := triggerIndex(ex.Trigger)
	yRelapse := clampUnit(ex.RelapseRisk)

	// Output deltas (dLoss/dPreActivation).
	// Sigmoid + BCE and softmax + CCE both reduce to (p - y).
	loss := bce(act.gambling, yGambling)
	dGambling := []float64{act.gambling - yGambling}

	dType := make([]float64, typeHeadSize)
	if ex.IsGambling && haveType {
		loss += cce(act.typeDist, typeTarget)
		copy(dType, act.typeDist)
		dType[typeTarget] -= 1
	}

	dTrig := make([]float64, triggerHeadSize)
	if haveTrig {
		loss += cce(act.trigDist, trigTarget)
		copy(dTrig, act.trigDist)
		dTrig[trigTarget] -= 1
	}

	// Sigmoid + MSE: chain through the sigmoid derivative.
	diff := act.relapse - yRelapse
	loss += diff * diff
	dRelapse := []float64{2 * diff * act.relapse * (1 - act.relapse)}

	// Head gradients, accumulating the representation delta.
	dRep := make([]float64, len(act.rep))
	accumulateLayer(grads.gambling, n.GamblingHead, act.rep, dGambling, dRep)
	accumulateLayer(grads.typ, n.TypeHead, act.rep, dType, dRep)
	accumulateLayer(grads.trigger, n.TriggerHead, act.rep, dTrig, dRep)
	accumulateLayer(grads.relapse, n.RelapseHead, act.rep, dRelapse, dRep)

	// Backprop through the trunk.
	delta := dRep
	for li := len(n.Trunk) - 1; li >= 0; li-- {
		// Through dropout then ReLU.
		if mask := act.dropMask[li]; mask != nil {
			for i := range delta {
				delta[i] *= mask[i]
			}
		}
		for i, pre := range act.trunkPre[li] {
			if pre <= 0 {
				delta[i] = 0
			}
		}

		var dPrev []float64
		if li > 0 {
			dPrev = make([]float64, len(act.trunkIn[li]))
		}
		accumulateLayer(grads.trunk[li], n.Trunk[li], act.trunkIn[li], delta, dPrev)
		delta = dPrev
	}

	return loss
}

// accumulateLayer adds dW/dB for one layer given its input and output delta,
// and adds the layer's contribution to the input delta when dIn is non-nil.
func accumulateLayer(g *layer, l *layer, in, dOut, dIn []float64) {
	for o, d := range dOut {
		if d == 0 {
			continue
		}
		g.B[o] += d
		row := l.W[o]
		gRow := g.W[o]
		for i, x := range in {
			gRow[i] += d * x
			if dIn != nil {
				dIn[i] += d * row[i]
			}
		}
	}
}

func (n *Network) applyGradients(g *gradients, lr float64) {
	apply := func(l, grad *layer) {
		for o := range l.W {
			for i := range l.W[o] {
				l.W[o][i] -= lr * grad.W[o][i]
			}
			l.B[o] -= lr * grad.B[o]
		}
	}
	for i, l := range n.Trunk {
		apply(l, g.trunk[i])
	}
	apply(n.GamblingHead, g.gambling)
	apply(n.TypeHead, g.typ)
	apply(n.TriggerHead, g.trigger)
	apply(n.RelapseHead, g.relapse)
}

// Evaluate returns the mean total loss and the binary gambling-head accuracy
// over the examples.
func (n *Network) Evaluate(examples []Example) (loss, accuracy float64) {
	if len(examples) == 0 {
		return 0, 0
	}

	var correct int
	for i := range examples {
		ex := &examples[i]
		act := n.forward(ex.Features, nil, 0)

		yGambling := 0.0
		if ex.IsGambling {
			yGambling = 1.0
		}
		l := bce(act.gambling, yGambling)
		if typeTarget, ok := typeIndex(ex.GamblingType); ok && ex.IsGambling {
			l += cce(act.typeDist, typeTarget)
		}
		if trigTarget, ok := triggerIndex(ex.Trigger); ok {
			l += cce(act.trigDist, trigTarget)
		}
		diff := act.relapse - clampUnit(ex.RelapseRisk)
		l += diff * diff
		loss += l

		if (act.gambling >= 0.5) == ex.IsGambling {
			correct++
		}
	}
	return loss / float64(len(examples)), float64(correct) / float64(len(examples))
}

const lossEpsilon = 1e-12

func bce(p, y float64) float64 {
	return -(y*math.Log(p+lossEpsilon) + (1-y)*math.Log(1-p+lossEpsilon))
}

func cce(dist []float64, target int) float64 {
	return -math.Log(dist[target] + lossEpsilon)
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func typeIndex(t transaction.GamblingType) (int, bool) {
	for i, known := range transaction.GamblingTypes {
		if known == t {
			return i, true
		}
	}
	return 0, false
}

func triggerIndex(t transaction.Trigger) (int, bool) {
	for i, known := range transaction.Triggers {
		if known == t {
			return i, true
		}
	}
	return 0, false
}
