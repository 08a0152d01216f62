package classifier

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/betguard/betguard/internal/features"
	"github.com/betguard/betguard/internal/metrics"
	"github.com/betguard/betguard/internal/transaction"
)

// State is the model lifecycle state.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
)

// Info describes the currently published model, for the read API and
// operator observability.
type Info struct {
	State         State     `json:"state"`
	Trained       bool      `json:"trained"` // false = untrained fallback
	Version       string    `json:"version"`
	Architecture  string    `json:"architecture"`
	TypeLabels    []string  `json:"typeLabels"`
	TriggerLabels []string  `json:"triggerLabels"`
	Accuracy      float64   `json:"accuracy"`
	Examples      int       `json:"examples"`
	LoadedAt      time.Time `json:"loadedAt"`
}

type model struct {
	net  *Network
	info Info
}

// Handle is the process-wide shared model: loaded once at start, read by
// every request, replaced wholesale via atomic pointer swap on retrain.
// Inference never observes a half-loaded model.
type Handle struct {
	ptr    atomic.Pointer[model]
	logger *slog.Logger
}

// NewHandle creates an unloaded handle.
func NewHandle(logger *slog.Logger) *Handle {
	h := &Handle{logger: logger}
	h.ptr.Store(&model{info: Info{State: StateUnloaded}})
	return h
}

// Load reads the artifact at path and publishes it. A missing or corrupt
// artifact degrades to a freshly initialized untrained network of the same
// architecture: the service never fails to answer, only in accuracy. The
// degradation is surfaced through Info, a log warning, and a gauge.
func (h *Handle) Load(path string) error {
	h.ptr.Store(&model{info: Info{State: StateLoading}})

	art, err := LoadArtifact(path)
	if err != nil {
		h.logger.Warn("model load failed, serving untrained fallback",
			"path", path, "error", err)
		h.publishFallback()
		return err
	}

	h.Publish(art)
	h.logger.Info("model loaded",
		"path", path, "version", art.Version, "accuracy", art.Accuracy)
	return nil
}

// publishFallback swaps in a fresh untrained network.
func (h *Handle) publishFallback() {
	net := NewNetwork(time.Now().UnixNano())
	h.ptr.Store(&model{
		net: net,
		info: Info{
			State:        StateReady,
			Trained:      false,
			Version:      "fallback",
			Architecture: architectureSummary(),
			LoadedAt:     time.Now().UTC(),
		},
	})
	metrics.ModelFallback.Set(1)
}

// Publish swaps in a trained artifact atomically.
func (h *Handle) Publish(art *Artifact) {
	h.ptr.Store(&model{
		net: art.Network,
		info: Info{
			State:         StateReady,
			Trained:       true,
			Version:       art.Version,
			Architecture:  architectureSummary(),
			TypeLabels:    art.TypeLabels,
			TriggerLabels: art.TriggerLabels,
			Accuracy:      art.Accuracy,
			Examples:      art.Examples,
			LoadedAt:      time.Now().UTC(),
		},
	})
	metrics.ModelFallback.Set(0)
}

// Predict runs inference against the currently published model.
func (h *Handle) Predict(v features.Vector) (*transaction.Classification, error) {
	m := h.ptr.Load()
	if m.net == nil {
		return nil, fmt.Errorf("model not ready (state %s)", m.info.State)
	}

	start := time.Now()
	result, err := m.net.Predict(v)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	return result, err
}

// Info returns the published model's metadata.
func (h *Handle) Info() Info {
	return h.ptr.Load().info
}

func architectureSummary() string {
	return fmt.Sprintf("mlp %d-256-128-64-32, heads: gambling(1) type(%d) trigger(%d) relapse(1)",
		features.Size, typeHeadSize, triggerHeadSize)
}
