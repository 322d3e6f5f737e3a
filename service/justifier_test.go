package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"caseflow-backend/models"
)

func justificationInput(results []models.SearchResult) JustificationInput {
	return JustificationInput{
		CaseID: "case-1",
		Payload: map[string]interface{}{
			"credit_score":   760.0,
			"monthly_income": 10000.0,
		},
		Policy: &models.MortgageDecision{
			PolicyID: PolicyIDMortgageV1,
			Decision: models.DecisionApprove,
			Reasons:  []string{models.ReasonApprovePolicyV1},
		},
		RiskScore:       42.5,
		EvidenceResults: results,
		MaxCitations:    3,
		RequestID:       "req-1",
	}
}

func searchResult(docID, chunkID string, score float64) models.SearchResult {
	return models.SearchResult{
		Chunk: models.EvidenceChunk{
			CaseID:     "case-1",
			DocumentID: docID,
			ChunkID:    chunkID,
			Text:       "evidence text",
			StartChar:  0,
			EndChar:    13,
		},
		Score: score,
	}
}

func TestGenerateJustification_NoEvidenceForm(t *testing.T) {
	justification, transcript, err := GenerateJustification(JustifierDeterministic, justificationInput(nil))
	if err != nil {
		t.Fatalf("GenerateJustification: %v", err)
	}
	if transcript != nil {
		t.Error("deterministic provider must not produce a transcript")
	}

	if justification.Summary != NoEvidenceSummary {
		t.Errorf("unexpected summary: %q", justification.Summary)
	}
	if len(justification.Reasons) != 2 {
		t.Fatalf("expected exactly 2 reasons, got %d", len(justification.Reasons))
	}
	if justification.Reasons[1] != NoEvidenceSummary {
		t.Errorf("second reason must repeat the no-evidence text, got %q", justification.Reasons[1])
	}
	if len(justification.Citations) != 0 {
		t.Errorf("expected no citations, got %d", len(justification.Citations))
	}
}

func TestGenerateJustification_SummaryAndBand(t *testing.T) {
	results := []models.SearchResult{searchResult("doc-1", "chunk-a", 0.9)}

	cases := []struct {
		score float64
		band  string
	}{
		{50.0, "low"},
		{150.0, "moderate"},
		{250.0, "high"},
		{119.9999, "low"},
		{120.0, "moderate"},
		{200.0, "high"},
	}

	for _, tc := range cases {
		input := justificationInput(results)
		input.RiskScore = tc.score

		justification, _, err := GenerateJustification(JustifierDeterministic, input)
		if err != nil {
			t.Fatalf("GenerateJustification: %v", err)
		}

		want := fmt.Sprintf("Policy decision is %s. Deterministic risk score is %.4f (%s band).",
			models.DecisionApprove, tc.score, tc.band)
		if justification.Summary != want {
			t.Errorf("score %f: summary %q, want %q", tc.score, justification.Summary, want)
		}
	}
}

func TestGenerateJustification_CitationOrderAndCap(t *testing.T) {
	results := []models.SearchResult{
		searchResult("doc-b", "chunk-2", 0.5),
		searchResult("doc-a", "chunk-9", 0.5),
		searchResult("doc-a", "chunk-1", 0.5),
		searchResult("doc-z", "chunk-0", 0.9),
		searchResult("doc-c", "chunk-5", 0.1),
	}

	justification, _, err := GenerateJustification(JustifierDeterministic, justificationInput(results))
	if err != nil {
		t.Fatalf("GenerateJustification: %v", err)
	}

	if len(justification.Citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(justification.Citations))
	}

	// Highest score first, then document id, then chunk id.
	wantOrder := []string{"chunk-0", "chunk-1", "chunk-9"}
	for i, want := range wantOrder {
		if justification.Citations[i].ChunkID != want {
			t.Errorf("citation %d: expected %s, got %s", i, want, justification.Citations[i].ChunkID)
		}
	}
}

func TestGenerateJustification_ReasonsCappedAtFive(t *testing.T) {
	var results []models.SearchResult
	for i := 0; i < 10; i++ {
		results = append(results, searchResult(fmt.Sprintf("doc-%d", i), fmt.Sprintf("chunk-%d", i), 1.0-float64(i)*0.05))
	}

	input := justificationInput(results)
	input.MaxCitations = 10

	justification, _, err := GenerateJustification(JustifierDeterministic, input)
	if err != nil {
		t.Fatalf("GenerateJustification: %v", err)
	}

	if len(justification.Reasons) > 5 {
		t.Errorf("expected at most 5 reasons, got %d", len(justification.Reasons))
	}
	if !strings.Contains(justification.Reasons[0], "(see C1)") {
		t.Errorf("first reason must cite C1: %q", justification.Reasons[0])
	}
}

func TestGenerateJustification_ProviderEquivalence(t *testing.T) {
	results := []models.SearchResult{
		searchResult("doc-1", "chunk-a", 0.8),
		searchResult("doc-2", "chunk-b", 0.6),
	}

	deterministic, _, err := GenerateJustification(JustifierDeterministic, justificationInput(results))
	if err != nil {
		t.Fatalf("deterministic: %v", err)
	}
	instrumented, transcript, err := GenerateJustification(JustifierInstrumented, justificationInput(results))
	if err != nil {
		t.Fatalf("instrumented: %v", err)
	}

	if !reflect.DeepEqual(deterministic, instrumented) {
		t.Error("providers must produce identical justification content")
	}
	if transcript == nil {
		t.Fatal("instrumented provider must produce a transcript")
	}
	if !reflect.DeepEqual(transcript.ToolsCalled, []string{"policy_check", "risk_score", "evidence_search"}) {
		t.Errorf("unexpected tools_called: %v", transcript.ToolsCalled)
	}
	keys, ok := transcript.Inputs["payload_keys"].([]string)
	if !ok {
		t.Fatalf("payload_keys missing from transcript inputs: %v", transcript.Inputs)
	}
	if !reflect.DeepEqual(keys, []string{"credit_score", "monthly_income"}) {
		t.Errorf("expected sorted payload keys, got %v", keys)
	}
}

func TestGenerateJustification_UnknownProvider(t *testing.T) {
	_, _, err := GenerateJustification(JustifierProvider("oracle"), justificationInput(nil))
	if !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestParseJustifierProvider(t *testing.T) {
	if ParseJustifierProvider("INSTRUMENTED") != JustifierInstrumented {
		t.Error("expected instrumented for case-insensitive match")
	}
	if ParseJustifierProvider("anything-else") != JustifierDeterministic {
		t.Error("expected deterministic fallback")
	}
}
