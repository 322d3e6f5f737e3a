package models

// Decision verdicts emitted by the mortgage policy.
const (
	DecisionApprove = "approve"
	DecisionReview  = "review"
	DecisionDecline = "decline"
)

// Reason codes for mortgage_v1. Decline reasons supersede review reasons.
const (
	ReasonDeclineIncomeInvalid        = "DECLINE_INCOME_INVALID"
	ReasonDeclinePropertyValueInvalid = "DECLINE_PROPERTY_VALUE_INVALID"
	ReasonDeclineCreditTooLow         = "DECLINE_CREDIT_TOO_LOW"
	ReasonDeclineDTITooHigh           = "DECLINE_DTI_TOO_HIGH"
	ReasonDeclineLTVTooHigh           = "DECLINE_LTV_TOO_HIGH"
	ReasonDeclineInvestmentCredit     = "DECLINE_INVESTMENT_CREDIT_TOO_LOW"
	ReasonReviewCreditBorderline      = "REVIEW_CREDIT_BORDERLINE"
	ReasonReviewDTIBorderline         = "REVIEW_DTI_BORDERLINE"
	ReasonReviewLTVBorderline         = "REVIEW_LTV_BORDERLINE"
	ReasonReviewInvestmentLoan        = "REVIEW_INVESTMENT_LOAN"
	ReasonApprovePolicyV1             = "APPROVE_POLICY_V1"
)

// MortgageDecision is the policy verdict for one feature payload.
type MortgageDecision struct {
	PolicyID string             `json:"policy_id"`
	Decision string             `json:"decision"`
	Reasons  []string           `json:"reasons"`
	Derived  map[string]float64 `json:"derived"`
}
