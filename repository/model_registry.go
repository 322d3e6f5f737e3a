package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"caseflow-backend/models"
)

// LinearModel is a loaded linear-model artifact. Predict is the only
// operation the underwriting core consumes.
type LinearModel struct {
	ModelID      string    `json:"model_id"`
	Type         string    `json:"type"`
	Bias         float64   `json:"bias"`
	Weights      []float64 `json:"weights"`
	FeatureNames []string  `json:"feature_names,omitempty"`
}

// Predict returns bias + dot(weights, features).
func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("%w: model '%s' expects %d features, got %d",
			models.ErrDimensionMismatch, m.ModelID, len(m.Weights), len(features))
	}

	score := m.Bias
	for i, weight := range m.Weights {
		score += weight * features[i]
	}
	return score, nil
}

// ModelRegistry loads linear-model artifacts from a directory tree of
// <model_id>/model.json files. Loaded models are cached per instance.
type ModelRegistry struct {
	root          string
	activeModelID string

	mu     sync.Mutex
	loaded map[string]*LinearModel
}

// NewModelRegistry creates a registry rooted at dir with the given default
// model id for Active lookups.
func NewModelRegistry(root, activeModelID string) *ModelRegistry {
	return &ModelRegistry{
		root:          root,
		activeModelID: activeModelID,
		loaded:        make(map[string]*LinearModel),
	}
}

// ListModelIDs returns the sorted ids of all models with a model.json.
func (r *ModelRegistry) ListModelIDs() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read model registry: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, statErr := os.Stat(filepath.Join(r.root, entry.Name(), "model.json")); statErr == nil {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads and validates one model artifact.
func (r *ModelRegistry) Load(modelID string) (*LinearModel, error) {
	r.mu.Lock()
	if model, ok := r.loaded[modelID]; ok {
		r.mu.Unlock()
		return model, nil
	}
	r.mu.Unlock()

	path := filepath.Join(r.root, modelID, "model.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("model '%s': %w", modelID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read model '%s': %w", modelID, err)
	}

	var model LinearModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, models.WrapCorrupt("model '"+modelID+"'", err)
	}
	if model.ModelID != modelID {
		return nil, fmt.Errorf("%w: model '%s' has mismatched model_id '%s'",
			models.ErrCorrupt, modelID, model.ModelID)
	}
	if model.Type != "linear" {
		return nil, fmt.Errorf("%w: model '%s' must have type 'linear'", models.ErrCorrupt, modelID)
	}
	if len(model.Weights) == 0 {
		return nil, fmt.Errorf("%w: model '%s' must define a non-empty weights list",
			models.ErrCorrupt, modelID)
	}

	r.mu.Lock()
	r.loaded[modelID] = &model
	r.mu.Unlock()
	return &model, nil
}

// Active returns the registry's configured default model.
func (r *ModelRegistry) Active() (*LinearModel, error) {
	return r.Load(r.activeModelID)
}
