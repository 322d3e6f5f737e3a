package service

import (
	"fmt"
	"sort"
	"strings"

	"caseflow-backend/models"
)

// PolicyIDMortgageV1 identifies the deterministic mortgage rule set.
const PolicyIDMortgageV1 = "mortgage_v1"

var requiredFeatureKeys = []string{
	"credit_score",
	"monthly_income",
	"monthly_debt",
	"loan_amount",
	"property_value",
	"occupancy",
}

// EvaluateMortgagePolicyV1 maps a numeric feature payload to an
// approve/review/decline verdict with ordered machine-readable reasons.
// Pure function: the same payload always yields the same decision.
func EvaluateMortgagePolicyV1(features map[string]interface{}) (*models.MortgageDecision, error) {
	var missing []string
	for _, key := range requiredFeatureKeys {
		if _, ok := features[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, models.NewMissingFieldsError(missing)
	}

	creditScore, err := numericFeature(features, "credit_score")
	if err != nil {
		return nil, err
	}
	monthlyIncome, err := numericFeature(features, "monthly_income")
	if err != nil {
		return nil, err
	}
	monthlyDebt, err := numericFeature(features, "monthly_debt")
	if err != nil {
		return nil, err
	}
	loanAmount, err := numericFeature(features, "loan_amount")
	if err != nil {
		return nil, err
	}
	propertyValue, err := numericFeature(features, "property_value")
	if err != nil {
		return nil, err
	}

	occupancyRaw, ok := features["occupancy"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: occupancy must be a string", models.ErrInvalidArgument)
	}
	occupancy := strings.ToLower(strings.TrimSpace(occupancyRaw))
	switch occupancy {
	case "primary", "secondary", "investment":
	default:
		return nil, fmt.Errorf("%w: occupancy must be one of: primary, secondary, investment", models.ErrInvalidArgument)
	}

	dti := 0.0
	if monthlyIncome > 0 {
		dti = monthlyDebt / monthlyIncome
	}
	ltv := 0.0
	if propertyValue > 0 {
		ltv = loanAmount / propertyValue
	}
	derived := map[string]float64{"dti": dti, "ltv": ltv}

	var declineReasons []string
	if monthlyIncome <= 0 {
		declineReasons = append(declineReasons, models.ReasonDeclineIncomeInvalid)
	}
	if propertyValue <= 0 {
		declineReasons = append(declineReasons, models.ReasonDeclinePropertyValueInvalid)
	}
	if creditScore < 580 {
		declineReasons = append(declineReasons, models.ReasonDeclineCreditTooLow)
	}
	if monthlyIncome > 0 && dti > 0.50 {
		declineReasons = append(declineReasons, models.ReasonDeclineDTITooHigh)
	}
	if propertyValue > 0 && ltv > 0.97 {
		declineReasons = append(declineReasons, models.ReasonDeclineLTVTooHigh)
	}
	if occupancy == "investment" && creditScore < 620 {
		declineReasons = append(declineReasons, models.ReasonDeclineInvestmentCredit)
	}
	if len(declineReasons) > 0 {
		return &models.MortgageDecision{
			PolicyID: PolicyIDMortgageV1,
			Decision: models.DecisionDecline,
			Reasons:  declineReasons,
			Derived:  derived,
		}, nil
	}

	var reviewReasons []string
	if creditScore >= 580 && creditScore < 660 {
		reviewReasons = append(reviewReasons, models.ReasonReviewCreditBorderline)
	}
	if monthlyIncome > 0 && dti > 0.43 && dti <= 0.50 {
		reviewReasons = append(reviewReasons, models.ReasonReviewDTIBorderline)
	}
	if propertyValue > 0 && ltv > 0.80 && ltv <= 0.97 {
		reviewReasons = append(reviewReasons, models.ReasonReviewLTVBorderline)
	}
	if occupancy == "investment" && creditScore >= 620 {
		reviewReasons = append(reviewReasons, models.ReasonReviewInvestmentLoan)
	}
	if len(reviewReasons) > 0 {
		return &models.MortgageDecision{
			PolicyID: PolicyIDMortgageV1,
			Decision: models.DecisionReview,
			Reasons:  reviewReasons,
			Derived:  derived,
		}, nil
	}

	return &models.MortgageDecision{
		PolicyID: PolicyIDMortgageV1,
		Decision: models.DecisionApprove,
		Reasons:  []string{models.ReasonApprovePolicyV1},
		Derived:  derived,
	}, nil
}

// numericFeature coerces a payload value to float64. JSON numbers arrive as
// float64; integers and float32 appear from direct Go callers.
func numericFeature(features map[string]interface{}, key string) (float64, error) {
	switch value := features[key].(type) {
	case float64:
		return value, nil
	case float32:
		return float64(value), nil
	case int:
		return float64(value), nil
	case int64:
		return float64(value), nil
	default:
		return 0, fmt.Errorf("%w: '%s' must be numeric", models.ErrInvalidArgument, key)
	}
}
