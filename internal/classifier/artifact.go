package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/betguard/betguard/internal/features"
	"github.com/betguard/betguard/internal/transaction"
)

// ArtifactFormat identifies the on-disk model bundle format.
const ArtifactFormat = "betguard-model/v1"

// Artifact is the versioned, self-describing model bundle persisted to disk:
// architecture description plus weights, loadable by path.
type Artifact struct {
	Format        string    `json:"format"`
	Version       string    `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	InputSize     int       `json:"inputSize"`
	TrunkSizes    []int     `json:"trunkSizes"`
	TypeLabels    []string  `json:"typeLabels"`
	TriggerLabels []string  `json:"triggerLabels"`
	Accuracy      float64   `json:"accuracy"` // offline evaluation accuracy
	Examples      int       `json:"examples"` // training set size
	Network       *Network  `json:"network"`
}

// NewArtifact wraps a trained network with its metadata.
func NewArtifact(n *Network, version string, accuracy float64, examples int) *Artifact {
	typeLabels := make([]string, len(transaction.GamblingTypes))
	for i, t := range transaction.GamblingTypes {
		typeLabels[i] = string(t)
	}
	triggerLabels := make([]string, len(transaction.Triggers))
	for i, t := range transaction.Triggers {
		triggerLabels[i] = string(t)
	}

	return &Artifact{
		Format:        ArtifactFormat,
		Version:       version,
		CreatedAt:     time.Now().UTC(),
		InputSize:     features.Size,
		TrunkSizes:    append([]int(nil), trunkSizes...),
		TypeLabels:    typeLabels,
		TriggerLabels: triggerLabels,
		Accuracy:      accuracy,
		Examples:      examples,
		Network:       n,
	}
}

// Save writes the artifact atomically: a temp file in the target directory
// followed by rename, so a reader never observes a partially-written model.
func (a *Artifact) Save(path string) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close model file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to publish model file: %w", err)
	}
	return nil
}

// LoadArtifact reads and validates a model bundle from disk.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if a.Format != ArtifactFormat {
		return nil, fmt.Errorf("unsupported model format %q", a.Format)
	}
	if a.InputSize != features.Size {
		return nil, fmt.Errorf("model expects %d inputs, this build uses %d", a.InputSize, features.Size)
	}
	if a.Network == nil {
		return nil, fmt.Errorf("model file has no network weights")
	}
	if err := a.Network.validate(); err != nil {
		return nil, fmt.Errorf("model weights invalid: %w", err)
	}
	return &a, nil
}
