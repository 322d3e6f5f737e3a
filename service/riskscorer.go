package service

import (
	"fmt"

	"caseflow-backend/repository"
)

// RiskScoreResult pairs a risk score with the model that produced it.
type RiskScoreResult struct {
	ModelID string
	Score   float64
}

// RiskScorer is a thin adapter from loaded linear-model artifacts to a
// numeric risk score. The score only feeds justification banding.
type RiskScorer struct {
	registry *repository.ModelRegistry
}

// NewRiskScorer creates a scorer backed by the given registry.
func NewRiskScorer(registry *repository.ModelRegistry) *RiskScorer {
	return &RiskScorer{registry: registry}
}

// Score derives the feature vector from the mortgage payload and runs the
// requested model (or the registry's active model when modelVersion is "").
func (s *RiskScorer) Score(payload map[string]interface{}, modelVersion string) (*RiskScoreResult, error) {
	var model *repository.LinearModel
	var err error
	if modelVersion != "" {
		model, err = s.registry.Load(modelVersion)
	} else {
		model, err = s.registry.Active()
	}
	if err != nil {
		return nil, err
	}

	base, err := mortgageVectorFromPayload(payload)
	if err != nil {
		return nil, err
	}

	vector := base
	if len(model.FeatureNames) > 0 {
		vector = namedModelVector(base, model.FeatureNames)
	}

	score, err := model.Predict(vector)
	if err != nil {
		return nil, fmt.Errorf("unable to score payload with model '%s': %w", model.ModelID, err)
	}

	return &RiskScoreResult{ModelID: model.ModelID, Score: score}, nil
}

// mortgageVectorFromPayload builds the canonical [credit_ratio, dti, ltv]
// feature vector.
func mortgageVectorFromPayload(payload map[string]interface{}) ([]float64, error) {
	creditScore, err := numericFeature(payload, "credit_score")
	if err != nil {
		return nil, err
	}
	monthlyIncome, err := numericFeature(payload, "monthly_income")
	if err != nil {
		return nil, err
	}
	monthlyDebt, err := numericFeature(payload, "monthly_debt")
	if err != nil {
		return nil, err
	}
	loanAmount, err := numericFeature(payload, "loan_amount")
	if err != nil {
		return nil, err
	}
	propertyValue, err := numericFeature(payload, "property_value")
	if err != nil {
		return nil, err
	}

	dti := 0.0
	if monthlyIncome > 0 {
		dti = monthlyDebt / monthlyIncome
	}
	ltv := 0.0
	if propertyValue > 0 {
		ltv = loanAmount / propertyValue
	}

	return []float64{creditScore / 850.0, dti, ltv}, nil
}

// namedModelVector maps the canonical features onto a model trained against
// named features. Unknown names score 0.
func namedModelVector(base []float64, featureNames []string) []float64 {
	mapped := map[string]float64{
		"credit_ratio": base[0],
		"dti":          base[1],
		"ltv":          base[2],
	}

	vector := make([]float64, len(featureNames))
	for i, name := range featureNames {
		vector[i] = mapped[name]
	}
	return vector
}
