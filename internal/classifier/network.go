// Package classifier implements the multi-head gambling detection model:
// a shared fully-connected trunk feeding four output heads (binary gambling
// detection, gambling type, trigger, relapse risk).
package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/betguard/betguard/internal/features"
	"github.com/betguard/betguard/internal/transaction"
)

// Trunk layer widths. The input is the feature vector; the final width is
// the shared representation consumed by every head.
var trunkSizes = []int{features.Size, 256, 128, 64, 32}

const (
	gamblingHeadSize = 1
	typeHeadSize     = 4
	triggerHeadSize  = 8
	relapseHeadSize  = 1
)

// ErrBadInput is returned when an input vector has the wrong length.
var ErrBadInput = errors.New("feature vector has wrong length")

// layer is one fully-connected layer, weights stored [out][in].
type layer struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

func newLayer(rng *rand.Rand, in, out int) *layer {
	l := &layer{
		W: make([][]float64, out),
		B: make([]float64, out),
	}
	// He initialization for ReLU layers.
	scale := math.Sqrt(2.0 / float64(in))
	for o := range l.W {
		l.W[o] = make([]float64, in)
		for i := range l.W[o] {
			l.W[o][i] = rng.NormFloat64() * scale
		}
	}
	return l
}

// forward computes Wx+b.
func (l *layer) forward(in []float64) []float64 {
	out := make([]float64, len(l.W))
	for o, row := range l.W {
		sum := l.B[o]
		for i, w := range row {
			sum += w * in[i]
		}
		out[o] = sum
	}
	return out
}

// Network holds the trunk and the four heads.
type Network struct {
	Trunk        []*layer `json:"trunk"`
	GamblingHead *layer   `json:"gamblingHead"`
	TypeHead     *layer   `json:"typeHead"`
	TriggerHead  *layer   `json:"triggerHead"`
	RelapseHead  *layer   `json:"relapseHead"`
}

// NewNetwork creates a freshly initialized, untrained network. The seed
// makes initialization reproducible.
func NewNetwork(seed int64) *Network {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- weight init, not crypto

	n := &Network{}
	for i := 0; i+1 < len(trunkSizes); i++ {
		n.Trunk = append(n.Trunk, newLayer(rng, trunkSizes[i], trunkSizes[i+1]))
	}
	rep := trunkSizes[len(trunkSizes)-1]
	n.GamblingHead = newLayer(rng, rep, gamblingHeadSize)
	n.TypeHead = newLayer(rng, rep, typeHeadSize)
	n.TriggerHead = newLayer(rng, rep, triggerHeadSize)
	n.RelapseHead = newLayer(rng, rep, relapseHeadSize)
	return n
}

// shape reports a layer's rows and columns without assuming any rows
// exist; deserialized weights can be empty or ragged.
func (l *layer) shape() (rows, cols int) {
	rows = len(l.W)
	if rows > 0 {
		cols = len(l.W[0])
	}
	return rows, cols
}

// validate checks loaded weights against the architecture contract.
func (n *Network) validate() error {
	if len(n.Trunk) != len(trunkSizes)-1 {
		return fmt.Errorf("trunk has %d layers, want %d", len(n.Trunk), len(trunkSizes)-1)
	}
	for i, l := range n.Trunk {
		rows, cols := l.shape()
		if rows != trunkSizes[i+1] || cols != trunkSizes[i] {
			return fmt.Errorf("trunk layer %d has shape %dx%d, want %dx%d",
				i, rows, cols, trunkSizes[i+1], trunkSizes[i])
		}
	}
	heads := []struct {
		name string
		l    *layer
		size int
	}{
		{"gambling", n.GamblingHead, gamblingHeadSize},
		{"type", n.TypeHead, typeHeadSize},
		{"trigger", n.TriggerHead, triggerHeadSize},
		{"relapse", n.RelapseHead, relapseHeadSize},
	}
	rep := trunkSizes[len(trunkSizes)-1]
	for _, h := range heads {
		if h.l == nil {
			return fmt.Errorf("%s head missing", h.name)
		}
		rows, cols := h.l.shape()
		if rows != h.size || cols != rep {
			return fmt.Errorf("%s head has shape %dx%d, want %dx%d",
				h.name, rows, cols, h.size, rep)
		}
	}
	return nil
}

// activations caches the intermediate values of one forward pass for backprop.
type activations struct {
	trunkIn  [][]float64 // input to each trunk layer (post-activation of previous)
	trunkPre [][]float64 // pre-activation outputs
	dropMask [][]float64 // nil at inference time
	rep      []float64   // final trunk representation

	gambling float64   // sigmoid output
	typeDist []float64 // softmax output
	trigDist []float64 // softmax output
	relapse  float64   // sigmoid output
}

// forward runs the full network. When rng is non-nil, inverted dropout with
// rate dropRate is applied between trunk layers (training mode); inference
// passes nil and is fully deterministic.
func (n *Network) forward(in []float64, rng *rand.Rand, dropRate float64) *activations {
	act := &activations{}

	x := in
	for li, l := range n.Trunk {
		act.trunkIn = append(act.trunkIn, x)
		pre := l.forward(x)
		act.trunkPre = append(act.trunkPre, pre)

		out := make([]float64, len(pre))
		for i, p := range pre {
			if p > 0 {
				out[i] = p
			}
		}

		var mask []float64
		if rng != nil && dropRate > 0 && li < len(n.Trunk)-1 {
			mask = make([]float64, len(out))
			keep := 1 - dropRate
			for i := range out {
				if rng.Float64() < keep {
					mask[i] = 1 / keep
				}
				out[i] *= mask[i]
			}
		}
		act.dropMask = append(act.dropMask, mask)
		x = out
	}
	act.rep = x

	act.gambling = sigmoid(n.GamblingHead.forward(x)[0])
	act.typeDist = softmax(n.TypeHead.forward(x))
	act.trigDist = softmax(n.TriggerHead.forward(x))
	act.relapse = sigmoid(n.RelapseHead.forward(x)[0])
	return act
}

// Predict runs one deterministic forward pass. It never mutates the network.
func (n *Network) Predict(v features.Vector) (*transaction.Classification, error) {
	if len(v) != features.Size {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadInput, len(v), features.Size)
	}

	act := n.forward(v, nil, 0)
	return resultFromActivations(act), nil
}

func resultFromActivations(act *activations) *transaction.Classification {
	c := &transaction.Classification{
		IsGambling:         act.gambling >= 0.5,
		GamblingConfidence: act.gambling,
		RelapseRisk:        act.relapse,
	}

	typeIdx, typeConf := argmax(act.typeDist)
	c.TypeConfidence = typeConf
	if c.IsGambling {
		c.GamblingType = transaction.GamblingTypes[typeIdx]
	}

	trigIdx, trigConf := argmax(act.trigDist)
	c.PrimaryTrigger = transaction.Triggers[trigIdx]
	c.TriggerConfidence = trigConf
	c.TopTriggers = topTriggers(act.trigDist, 3)
	return c
}

// topTriggers ranks the trigger distribution and returns the top n.
func topTriggers(dist []float64, n int) []transaction.TriggerScore {
	idx := make([]int, len(dist))
	for i := range idx {
		idx[i] = i
	}
	// Selection sort over 8 entries.
	for i := 0; i < n && i < len(idx); i++ {
		best := i
		for j := i + 1; j < len(idx); j++ {
			if dist[idx[j]] > dist[idx[best]] {
				best = j
			}
		}
		idx[i], idx[best] = idx[best], idx[i]
	}

	if n > len(idx) {
		n = len(idx)
	}
	out := make([]transaction.TriggerScore, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, transaction.TriggerScore{
			Trigger:    transaction.Triggers[idx[i]],
			Confidence: dist[idx[i]],
		})
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(xs []float64) (int, float64) {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best, xs[best]
}
