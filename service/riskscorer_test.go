package service

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"caseflow-backend/models"
	"caseflow-backend/repository"
)

func writeModel(t *testing.T, root, modelID string, model map[string]interface{}) {
	t.Helper()

	dir := filepath.Join(root, modelID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	data, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.json"), data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRiskScorer_ActiveModelLinearCombination(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "mortgage_linear_v1", map[string]interface{}{
		"model_id": "mortgage_linear_v1",
		"type":     "linear",
		"bias":     10.0,
		"weights":  []float64{100.0, 200.0, 50.0},
	})

	scorer := NewRiskScorer(repository.NewModelRegistry(root, "mortgage_linear_v1"))
	result, err := scorer.Score(basePayload(), "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	// Vector is [760/850, 0.3, 0.6].
	want := 10.0 + 100.0*(760.0/850.0) + 200.0*0.3 + 50.0*0.6
	if math.Abs(result.Score-want) > 1e-9 {
		t.Errorf("expected score %f, got %f", want, result.Score)
	}
	if result.ModelID != "mortgage_linear_v1" {
		t.Errorf("unexpected model id: %s", result.ModelID)
	}
}

func TestRiskScorer_NamedFeatureReordering(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "named_v1", map[string]interface{}{
		"model_id":      "named_v1",
		"type":          "linear",
		"bias":          0.0,
		"weights":       []float64{1.0, 1.0},
		"feature_names": []string{"ltv", "dti"},
	})

	scorer := NewRiskScorer(repository.NewModelRegistry(root, "named_v1"))
	result, err := scorer.Score(basePayload(), "named_v1")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	// ltv 0.6 + dti 0.3; credit_ratio is not named so it contributes nothing.
	if math.Abs(result.Score-0.9) > 1e-9 {
		t.Errorf("expected score 0.9, got %f", result.Score)
	}
}

func TestRiskScorer_UnknownModel(t *testing.T) {
	scorer := NewRiskScorer(repository.NewModelRegistry(t.TempDir(), "missing"))
	_, err := scorer.Score(basePayload(), "")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRiskScorer_DeterministicAcrossCalls(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "mortgage_linear_v1", map[string]interface{}{
		"model_id": "mortgage_linear_v1",
		"type":     "linear",
		"bias":     5.0,
		"weights":  []float64{1.0, 2.0, 3.0},
	})

	scorer := NewRiskScorer(repository.NewModelRegistry(root, "mortgage_linear_v1"))
	first, err := scorer.Score(basePayload(), "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	second, err := scorer.Score(basePayload(), "")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if first.Score != second.Score {
		t.Errorf("score not deterministic: %f vs %f", first.Score, second.Score)
	}
}
