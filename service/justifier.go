package service

import (
	"fmt"
	"sort"
	"strings"

	"caseflow-backend/models"
)

// JustifierProvider selects a justification strategy. The set is closed:
// new strategies are added here and dispatched through one switch.
type JustifierProvider string

const (
	// JustifierDeterministic synthesizes the justification from fixed
	// templates with no side effects.
	JustifierDeterministic JustifierProvider = "deterministic"
	// JustifierInstrumented produces the identical justification but also
	// records a tool-call transcript for observability.
	JustifierInstrumented JustifierProvider = "instrumented"
)

// ParseJustifierProvider normalizes a configured provider name, falling back
// to deterministic for unknown values.
func ParseJustifierProvider(name string) JustifierProvider {
	if JustifierProvider(strings.ToLower(strings.TrimSpace(name))) == JustifierInstrumented {
		return JustifierInstrumented
	}
	return JustifierDeterministic
}

// Risk-band boundaries, used only for narrative justification text.
const (
	riskBandModerateFloor = 120.0
	riskBandHighFloor     = 200.0
)

// NoEvidenceSummary is the fixed justification text when no citations
// survive thresholding.
const NoEvidenceSummary = "No supporting evidence indexed for this case."

// JustificationInput carries everything a justifier may consult.
type JustificationInput struct {
	CaseID          string
	Payload         map[string]interface{}
	Policy          *models.MortgageDecision
	RiskScore       float64
	EvidenceResults []models.SearchResult
	MaxCitations    int
	RequestID       string
}

// GenerateJustification dispatches to the selected strategy. The returned
// transcript is non-nil only for the instrumented provider, and the
// justification content is identical across providers for the same input.
func GenerateJustification(provider JustifierProvider, input JustificationInput) (*models.Justification, *models.JustifierTranscript, error) {
	switch provider {
	case JustifierDeterministic:
		return buildJustification(input), nil, nil
	case JustifierInstrumented:
		justification := buildJustification(input)
		return justification, buildTranscript(input, justification), nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown justifier provider '%s'", models.ErrInvalidConfiguration, provider)
	}
}

func buildJustification(input JustificationInput) *models.Justification {
	ordered := make([]models.SearchResult, len(input.EvidenceResults))
	copy(ordered, input.EvidenceResults)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if ordered[i].Chunk.DocumentID != ordered[j].Chunk.DocumentID {
			return ordered[i].Chunk.DocumentID < ordered[j].Chunk.DocumentID
		}
		return ordered[i].Chunk.ChunkID < ordered[j].Chunk.ChunkID
	})

	citations := []models.Citation{}
	if input.MaxCitations > 0 {
		top := ordered
		if len(top) > input.MaxCitations {
			top = top[:input.MaxCitations]
		}
		for _, result := range top {
			citations = append(citations, models.Citation{
				DocumentID: result.Chunk.DocumentID,
				ChunkID:    result.Chunk.ChunkID,
				StartChar:  result.Chunk.StartChar,
				EndChar:    result.Chunk.EndChar,
				Score:      result.Score,
			})
		}
	}

	decision := models.DecisionReview
	var policyReasons []string
	if input.Policy != nil {
		decision = input.Policy.Decision
		policyReasons = input.Policy.Reasons
	}

	if len(citations) == 0 {
		return &models.Justification{
			Summary: NoEvidenceSummary,
			Reasons: []string{
				fmt.Sprintf("Policy decision is %s based on rule evaluation.", decision),
				NoEvidenceSummary,
			},
			Citations: []models.Citation{},
		}
	}

	band := riskBand(input.RiskScore)
	summary := fmt.Sprintf("Policy decision is %s. Deterministic risk score is %.4f (%s band).",
		decision, input.RiskScore, band)

	reasons := []string{
		fmt.Sprintf("Policy signals: %s (see C1).", strings.Join(policyReasons, ", ")),
		fmt.Sprintf("Risk score is %.4f in the %s band (see C1).", input.RiskScore, band),
	}
	for i, citation := range citations[1:] {
		reasons = append(reasons, fmt.Sprintf(
			"Additional supporting evidence from document %s (see C%d).", citation.DocumentID, i+2))
	}
	if len(reasons) > 5 {
		reasons = reasons[:5]
	}

	return &models.Justification{Summary: summary, Reasons: reasons, Citations: citations}
}

func riskBand(score float64) string {
	switch {
	case score < riskBandModerateFloor:
		return "low"
	case score < riskBandHighFloor:
		return "moderate"
	default:
		return "high"
	}
}

func buildTranscript(input JustificationInput, justification *models.Justification) *models.JustifierTranscript {
	payloadKeys := make([]string, 0, len(input.Payload))
	for key := range input.Payload {
		payloadKeys = append(payloadKeys, key)
	}
	sort.Strings(payloadKeys)

	selectedChunkIDs := make([]string, 0, len(justification.Citations))
	for _, citation := range justification.Citations {
		selectedChunkIDs = append(selectedChunkIDs, citation.ChunkID)
	}

	decision := models.DecisionReview
	if input.Policy != nil {
		decision = input.Policy.Decision
	}

	return &models.JustifierTranscript{
		Provider:    string(JustifierInstrumented),
		RequestID:   input.RequestID,
		CaseID:      input.CaseID,
		ToolsCalled: []string{"policy_check", "risk_score", "evidence_search"},
		Inputs: map[string]interface{}{
			"payload_keys":   payloadKeys,
			"evidence_count": len(input.EvidenceResults),
			"max_citations":  input.MaxCitations,
		},
		Outputs: map[string]interface{}{
			"policy_decision":    decision,
			"risk_score":         input.RiskScore,
			"selected_chunk_ids": selectedChunkIDs,
		},
	}
}
