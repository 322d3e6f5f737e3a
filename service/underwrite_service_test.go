package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"caseflow-backend/models"
	"caseflow-backend/repository"
)

type failingAuditSink struct{}

func (failingAuditSink) EmitDecisionEvent(event map[string]interface{}) error {
	return fmt.Errorf("sink unavailable")
}

type underwriteFixture struct {
	service *UnderwriteService
	index   *repository.EvidenceIndexRepository
	replay  *repository.ReplayRepository
	traces  *repository.TraceRepository
	metrics *MetricsStore
}

func newUnderwriteFixture(t *testing.T, config UnderwriteConfig) *underwriteFixture {
	t.Helper()

	root := t.TempDir()

	index, err := repository.NewEvidenceIndexRepository(root+"/evidence_index.json", DefaultEmbeddingDims, EmbedText)
	if err != nil {
		t.Fatalf("NewEvidenceIndexRepository: %v", err)
	}

	modelRoot := root + "/models"
	writeModel(t, modelRoot, "mortgage_linear_v1", map[string]interface{}{
		"model_id": "mortgage_linear_v1",
		"type":     "linear",
		"bias":     10.0,
		"weights":  []float64{100.0, 200.0, 50.0},
	})

	replay := repository.NewReplayRepository(root + "/results")
	traces := repository.NewTraceRepository(root + "/traces")
	metrics := NewMetricsStore()

	svc := NewUnderwriteService(
		UnderwriteWithConfig(config),
		UnderwriteWithEvidenceIndex(index),
		UnderwriteWithRiskScorer(NewRiskScorer(repository.NewModelRegistry(modelRoot, "mortgage_linear_v1"))),
		UnderwriteWithReplayRepository(replay),
		UnderwriteWithTraceRepository(traces),
		UnderwriteWithMetrics(metrics),
	)

	return &underwriteFixture{service: svc, index: index, replay: replay, traces: traces, metrics: metrics}
}

func defaultTestConfig() UnderwriteConfig {
	return UnderwriteConfig{
		Engine:         EngineGraph,
		Justifier:      JustifierDeterministic,
		DefaultTopK:    5,
		MaxCitations:   3,
		TraceEnabled:   true,
		PersistResults: true,
	}
}

func indexEvidence(t *testing.T, index *repository.EvidenceIndexRepository, caseID string) {
	t.Helper()

	docs := map[string]string{
		"paystub":   "monthly income verification paystub shows stable employment and salary deposits",
		"appraisal": "property appraisal report confirms market value and loan collateral condition",
		"credit":    "credit report shows payment history and outstanding debt balances",
	}
	for docID, text := range docs {
		chunks, err := ChunkText(caseID, docID, text, docID+".txt", DefaultChunkSize, DefaultOverlap)
		if err != nil {
			t.Fatalf("ChunkText: %v", err)
		}
		if _, err := index.AddDocuments(chunks); err != nil {
			t.Fatalf("AddDocuments: %v", err)
		}
	}
}

func approveRequest(requestID string) UnderwriteRequest {
	return UnderwriteRequest{
		CaseID:    "case-1",
		Payload:   basePayload(),
		RequestID: requestID,
	}
}

func TestUnderwrite_GraphPipelineApprove(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	indexEvidence(t, fx.index, "case-1")

	response, err := fx.service.Underwrite(approveRequest("req-1"))
	if err != nil {
		t.Fatalf("Underwrite: %v", err)
	}

	if response.SchemaVersion != models.SchemaVersionV1 {
		t.Errorf("unexpected schema version: %s", response.SchemaVersion)
	}
	if response.Decision != models.DecisionApprove {
		t.Errorf("expected approve, got %s", response.Decision)
	}

	// [760/850, 0.3, 0.6] against bias 10, weights [100, 200, 50].
	wantScore := 10.0 + 100.0*(760.0/850.0) + 200.0*0.3 + 50.0*0.6
	if diff := response.RiskScore - wantScore; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected risk score %f, got %f", wantScore, response.RiskScore)
	}
	if response.Policy.PolicyID != PolicyIDMortgageV1 {
		t.Errorf("unexpected policy id: %s", response.Policy.PolicyID)
	}
	if len(response.Justification.Citations) == 0 {
		t.Error("expected citations with evidence indexed")
	}
	if len(response.Justification.Citations) > 3 {
		t.Errorf("citations exceed max: %d", len(response.Justification.Citations))
	}
}

func TestUnderwrite_TraceStageOrder(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	indexEvidence(t, fx.index, "case-1")

	if _, err := fx.service.Underwrite(approveRequest("req-trace")); err != nil {
		t.Fatalf("Underwrite: %v", err)
	}

	trace, err := fx.traces.Load("case-1", "req-trace")
	if err != nil {
		t.Fatalf("Load trace: %v", err)
	}

	wantStages := []string{
		models.StagePolicy,
		models.StageRisk,
		models.StageBuildQuery,
		models.StageEvidence,
		models.StageJustify,
		models.StageDecide,
		models.StageAuditMetrics,
	}
	if len(trace.Trace) != len(wantStages) {
		t.Fatalf("expected %d trace events, got %d", len(wantStages), len(trace.Trace))
	}
	for i, want := range wantStages {
		if trace.Trace[i].NodeName != want {
			t.Errorf("stage %d: expected %s, got %s", i, want, trace.Trace[i].NodeName)
		}
		if trace.Trace[i].DurationMS < 0 {
			t.Errorf("stage %s has negative duration", want)
		}
	}
	if trace.Decision != models.DecisionApprove {
		t.Errorf("trace decision mismatch: %s", trace.Decision)
	}
	if len(trace.ChunkIDsUsed) == 0 {
		t.Error("expected cited chunk ids in trace")
	}
}

func TestUnderwrite_TraceDisabled(t *testing.T) {
	config := defaultTestConfig()
	config.TraceEnabled = false
	fx := newUnderwriteFixture(t, config)

	if _, err := fx.service.Underwrite(approveRequest("req-notrace")); err != nil {
		t.Fatalf("Underwrite: %v", err)
	}

	if _, err := fx.traces.Load("case-1", "req-notrace"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected no persisted trace, got %v", err)
	}
}

func TestUnderwrite_EnginesProduceIdenticalResponses(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	indexEvidence(t, fx.index, "case-1")

	payloads := []map[string]interface{}{
		basePayload(),
		func() map[string]interface{} {
			p := basePayload()
			p["credit_score"] = 640.0
			return p
		}(),
		func() map[string]interface{} {
			p := basePayload()
			p["credit_score"] = 500.0
			return p
		}(),
	}

	for i, payload := range payloads {
		req := UnderwriteRequest{CaseID: "case-1", Payload: payload, RequestID: fmt.Sprintf("req-eq-%d", i)}

		graph, err := fx.service.UnderwriteWithSelection(req, EngineGraph, JustifierDeterministic)
		if err != nil {
			t.Fatalf("graph engine: %v", err)
		}
		legacy, err := fx.service.UnderwriteWithSelection(req, EngineLegacy, JustifierDeterministic)
		if err != nil {
			t.Fatalf("legacy engine: %v", err)
		}

		if !reflect.DeepEqual(graph, legacy) {
			t.Fatalf("payload %d: engines diverged:\ngraph:  %+v\nlegacy: %+v", i, graph, legacy)
		}
	}
}

func TestUnderwrite_NoEvidenceJustification(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())

	response, err := fx.service.Underwrite(approveRequest("req-empty"))
	if err != nil {
		t.Fatalf("Underwrite: %v", err)
	}

	if response.Justification.Summary != NoEvidenceSummary {
		t.Errorf("expected no-evidence summary, got %q", response.Justification.Summary)
	}
	if len(response.Justification.Reasons) != 2 {
		t.Errorf("expected 2 reasons, got %d", len(response.Justification.Reasons))
	}
	if len(response.Justification.Citations) != 0 {
		t.Errorf("expected no citations, got %d", len(response.Justification.Citations))
	}
}

func TestUnderwrite_MetricsCounters(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	indexEvidence(t, fx.index, "case-1")

	if _, err := fx.service.Underwrite(approveRequest("req-m1")); err != nil {
		t.Fatalf("Underwrite: %v", err)
	}

	cited := fx.metrics.Counter(MetricUnderwriteCitationsTotal)
	if cited <= 0 {
		t.Errorf("expected positive citations counter, got %f", cited)
	}
	if with := fx.metrics.Counter(MetricUnderwriteWithCitationsTotal); with != 1 {
		t.Errorf("expected with-citations counter 1, got %f", with)
	}

	// A run with no evidence adds nothing.
	req := approveRequest("req-m2")
	req.CaseID = "case-without-evidence"
	if _, err := fx.service.Underwrite(req); err != nil {
		t.Fatalf("Underwrite: %v", err)
	}
	if with := fx.metrics.Counter(MetricUnderwriteWithCitationsTotal); with != 1 {
		t.Errorf("no-citation run must not bump with-citations counter, got %f", with)
	}
}

func TestUnderwrite_AuditFailureDoesNotPropagate(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	fx.service.audit = failingAuditSink{}

	if _, err := fx.service.Underwrite(approveRequest("req-audit")); err != nil {
		t.Errorf("audit sink failure must not fail the pipeline: %v", err)
	}
}

func TestUnderwrite_MissingFieldsSurface(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())

	payload := basePayload()
	delete(payload, "credit_score")

	_, err := fx.service.Underwrite(UnderwriteRequest{CaseID: "case-1", Payload: payload, RequestID: "req-bad"})
	var missing *models.MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldsError through the pipeline, got %v", err)
	}
	if !strings.Contains(err.Error(), models.StagePolicy) {
		t.Errorf("error should name the failing stage: %v", err)
	}
}

func TestUnderwrite_PersistsReplayArtifacts(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	indexEvidence(t, fx.index, "case-1")

	original, err := fx.service.Underwrite(approveRequest("req-persist"))
	if err != nil {
		t.Fatalf("Underwrite: %v", err)
	}

	stored, err := fx.replay.LoadResult("case-1", "req-persist")
	if err != nil {
		t.Fatalf("LoadResult: %v", err)
	}
	if !reflect.DeepEqual(original, stored) {
		t.Error("stored result differs from returned response")
	}

	artifact, err := fx.replay.LoadRequest("case-1", "req-persist")
	if err != nil {
		t.Fatalf("LoadRequest: %v", err)
	}
	if artifact.UnderwriteEngine != string(EngineGraph) {
		t.Errorf("expected recorded engine graph, got %s", artifact.UnderwriteEngine)
	}
	if artifact.JustifierProvider != string(JustifierDeterministic) {
		t.Errorf("expected recorded justifier deterministic, got %s", artifact.JustifierProvider)
	}
}

func TestUnderwrite_ReplayReproducesDecision(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	indexEvidence(t, fx.index, "case-1")

	original, err := fx.service.Underwrite(approveRequest("req-replay"))
	if err != nil {
		t.Fatalf("Underwrite: %v", err)
	}

	replayed, err := fx.service.Replay("case-1", "req-replay")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !reflect.DeepEqual(original, replayed) {
		t.Errorf("replay diverged from original:\noriginal: %+v\nreplayed: %+v", original, replayed)
	}
}

func TestUnderwrite_ReplayUsesRecordedSelection(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	indexEvidence(t, fx.index, "case-1")

	req := approveRequest("req-legacy")
	original, err := fx.service.UnderwriteWithSelection(req, EngineLegacy, JustifierInstrumented)
	if err != nil {
		t.Fatalf("UnderwriteWithSelection: %v", err)
	}

	artifact, err := fx.replay.LoadRequest("case-1", "req-legacy")
	if err != nil {
		t.Fatalf("LoadRequest: %v", err)
	}
	if artifact.UnderwriteEngine != string(EngineLegacy) {
		t.Fatalf("expected legacy recorded, got %s", artifact.UnderwriteEngine)
	}

	// The shared configuration still says graph/deterministic; replay must
	// honor the recorded selection without touching it.
	replayed, err := fx.service.Replay("case-1", "req-legacy")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !reflect.DeepEqual(original, replayed) {
		t.Error("replay with recorded selection diverged from original")
	}
	if fx.service.config.Engine != EngineGraph {
		t.Error("replay mutated shared engine configuration")
	}
}

func TestUnderwrite_ReplayMissingRequest(t *testing.T) {
	fx := newUnderwriteFixture(t, defaultTestConfig())
	if _, err := fx.service.Replay("case-1", "never-ran"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildDefaultEvidenceQuery(t *testing.T) {
	query := BuildDefaultEvidenceQuery(basePayload())

	want := "credit_score=760 | monthly_income=10000 | monthly_debt=3000 | " +
		"loan_amount=300000 | property_value=500000 | occupancy=primary | dti=0.3000"
	if query != want {
		t.Errorf("query mismatch:\ngot:  %s\nwant: %s", query, want)
	}
}

func TestBuildDefaultEvidenceQuery_SkipsAbsentKeys(t *testing.T) {
	query := BuildDefaultEvidenceQuery(map[string]interface{}{
		"credit_score": 700.0,
		"occupancy":    "primary",
	})
	if query != "credit_score=700 | occupancy=primary" {
		t.Errorf("unexpected query: %s", query)
	}
}

func TestParseUnderwriteEngine(t *testing.T) {
	if ParseUnderwriteEngine("LEGACY") != EngineLegacy {
		t.Error("expected legacy for case-insensitive match")
	}
	if ParseUnderwriteEngine("unknown") != EngineGraph {
		t.Error("expected graph fallback")
	}
}
