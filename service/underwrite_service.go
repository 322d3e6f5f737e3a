package service

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"caseflow-backend/models"
	"caseflow-backend/repository"
)

// UnderwriteEngine selects the execution path for an underwrite call.
type UnderwriteEngine string

const (
	// EngineGraph runs the staged pipeline with per-stage tracing.
	EngineGraph UnderwriteEngine = "graph"
	// EngineLegacy runs the monolithic path. Both engines must produce the
	// same decision, risk score, policy block, and ordered citations.
	EngineLegacy UnderwriteEngine = "legacy"
)

// ParseUnderwriteEngine normalizes a configured engine name, falling back to
// the staged pipeline for unknown values.
func ParseUnderwriteEngine(name string) UnderwriteEngine {
	if UnderwriteEngine(strings.ToLower(strings.TrimSpace(name))) == EngineLegacy {
		return EngineLegacy
	}
	return EngineGraph
}

// UnderwriteConfig is the explicit configuration threaded into the service.
// Core logic never reads ambient global or environment state.
type UnderwriteConfig struct {
	Engine         UnderwriteEngine
	Justifier      JustifierProvider
	DefaultTopK    int
	MaxCitations   int
	MinScore       *float64
	TraceEnabled   bool
	PersistResults bool
}

// UnderwriteService orchestrates the decision pipeline: policy, risk
// scoring, evidence retrieval, justification, and audit/metric side effects.
type UnderwriteService struct {
	config  UnderwriteConfig
	index   *repository.EvidenceIndexRepository
	scorer  *RiskScorer
	replay  *repository.ReplayRepository
	traces  *repository.TraceRepository
	audit   AuditSink
	metrics *MetricsStore
}

// UnderwriteServiceOption is a functional option for UnderwriteService.
type UnderwriteServiceOption func(*UnderwriteService)

// UnderwriteWithConfig sets the pipeline configuration.
func UnderwriteWithConfig(config UnderwriteConfig) UnderwriteServiceOption {
	return func(s *UnderwriteService) {
		s.config = config
	}
}

// UnderwriteWithEvidenceIndex sets the evidence index.
func UnderwriteWithEvidenceIndex(index *repository.EvidenceIndexRepository) UnderwriteServiceOption {
	return func(s *UnderwriteService) {
		s.index = index
	}
}

// UnderwriteWithRiskScorer sets the risk scorer.
func UnderwriteWithRiskScorer(scorer *RiskScorer) UnderwriteServiceOption {
	return func(s *UnderwriteService) {
		s.scorer = scorer
	}
}

// UnderwriteWithReplayRepository sets the replay store.
func UnderwriteWithReplayRepository(replay *repository.ReplayRepository) UnderwriteServiceOption {
	return func(s *UnderwriteService) {
		s.replay = replay
	}
}

// UnderwriteWithTraceRepository sets the trace store.
func UnderwriteWithTraceRepository(traces *repository.TraceRepository) UnderwriteServiceOption {
	return func(s *UnderwriteService) {
		s.traces = traces
	}
}

// UnderwriteWithAuditSink sets the audit sink.
func UnderwriteWithAuditSink(sink AuditSink) UnderwriteServiceOption {
	return func(s *UnderwriteService) {
		s.audit = sink
	}
}

// UnderwriteWithMetrics sets the metrics store.
func UnderwriteWithMetrics(metrics *MetricsStore) UnderwriteServiceOption {
	return func(s *UnderwriteService) {
		s.metrics = metrics
	}
}

// NewUnderwriteService creates an underwrite service.
func NewUnderwriteService(opts ...UnderwriteServiceOption) *UnderwriteService {
	s := &UnderwriteService{
		config: UnderwriteConfig{
			Engine:       EngineGraph,
			Justifier:    JustifierDeterministic,
			DefaultTopK:  5,
			MaxCitations: 3,
		},
		audit:   LogAuditSink{},
		metrics: NewMetricsStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UnderwriteRequest is one underwrite call.
type UnderwriteRequest struct {
	CaseID        string
	Payload       map[string]interface{}
	ModelVersion  string
	EvidenceQuery string
	TopK          int
	RequestID     string
}

// Underwrite evaluates one case using the configured engine and justifier.
func (s *UnderwriteService) Underwrite(req UnderwriteRequest) (*models.UnderwriteResponseV1, error) {
	return s.UnderwriteWithSelection(req, s.config.Engine, s.config.Justifier)
}

// UnderwriteWithSelection evaluates one case with an explicit engine and
// justifier selection for this call only. Replay uses this to restore a
// recorded selection without touching shared configuration.
func (s *UnderwriteService) UnderwriteWithSelection(req UnderwriteRequest, engine UnderwriteEngine, justifier JustifierProvider) (*models.UnderwriteResponseV1, error) {
	if req.TopK <= 0 {
		req.TopK = s.config.DefaultTopK
	}

	var response *models.UnderwriteResponseV1
	var err error
	switch engine {
	case EngineLegacy:
		response, err = s.UnderwriteLegacy(req, justifier)
	default:
		response, err = s.runPipeline(req, justifier)
	}
	if err != nil {
		return nil, err
	}

	if s.config.PersistResults && s.replay != nil {
		if saveErr := s.replay.SaveResult(response); saveErr != nil {
			log.Printf("Warning: failed to persist underwrite result: %v", saveErr)
		}
		artifact := &models.UnderwriteRequestArtifact{
			CaseID:            req.CaseID,
			RequestID:         req.RequestID,
			Payload:           req.Payload,
			ModelVersion:      req.ModelVersion,
			EvidenceQuery:     req.EvidenceQuery,
			TopK:              req.TopK,
			UnderwriteEngine:  string(engine),
			JustifierProvider: string(justifier),
		}
		if saveErr := s.replay.SaveRequest(artifact); saveErr != nil {
			log.Printf("Warning: failed to persist underwrite request: %v", saveErr)
		}
	}

	return response, nil
}

// Replay re-executes a previously recorded underwrite request with its
// originally recorded engine and justifier selection and returns the fresh
// response.
func (s *UnderwriteService) Replay(caseID, requestID string) (*models.UnderwriteResponseV1, error) {
	if s.replay == nil {
		return nil, fmt.Errorf("%w: replay store not configured", models.ErrInvalidConfiguration)
	}

	artifact, err := s.replay.LoadRequest(caseID, requestID)
	if err != nil {
		return nil, err
	}

	req := UnderwriteRequest{
		CaseID:        artifact.CaseID,
		Payload:       artifact.Payload,
		ModelVersion:  artifact.ModelVersion,
		EvidenceQuery: artifact.EvidenceQuery,
		TopK:          artifact.TopK,
		RequestID:     artifact.RequestID,
	}
	return s.UnderwriteWithSelection(req,
		ParseUnderwriteEngine(artifact.UnderwriteEngine),
		ParseJustifierProvider(artifact.JustifierProvider))
}

// underwriteState is the immutable per-stage pipeline state. Stages return a
// new value rather than mutating in place.
type underwriteState struct {
	caseID        string
	payload       map[string]interface{}
	modelVersion  string
	topK          int
	evidenceQuery string
	requestID     string
	justifier     JustifierProvider

	policy        *models.MortgageDecision
	riskScore     float64
	modelID       string
	evidence      []models.SearchResult
	justification *models.Justification
	transcript    *models.JustifierTranscript
	decision      string
	chunkIDsUsed  []string
}

type stageFunc func(underwriteState) (underwriteState, map[string]interface{}, error)

type pipelineStage struct {
	name string
	fn   stageFunc
}

// runPipeline executes the fixed stage sequence, appending one trace event
// per stage, and persists the trace when enabled.
func (s *UnderwriteService) runPipeline(req UnderwriteRequest, justifier JustifierProvider) (*models.UnderwriteResponseV1, error) {
	state := underwriteState{
		caseID:        req.CaseID,
		payload:       req.Payload,
		modelVersion:  req.ModelVersion,
		topK:          req.TopK,
		evidenceQuery: req.EvidenceQuery,
		requestID:     req.RequestID,
		justifier:     justifier,
		decision:      models.DecisionReview,
	}

	stages := []pipelineStage{
		{models.StagePolicy, s.stagePolicy},
		{models.StageRisk, s.stageRisk},
		{models.StageBuildQuery, s.stageBuildQuery},
		{models.StageEvidence, s.stageEvidence},
		{models.StageJustify, s.stageJustify},
		{models.StageDecide, s.stageDecide},
		{models.StageAuditMetrics, s.stageAuditMetrics},
	}

	events := make([]models.TraceEvent, 0, len(stages))
	for _, stage := range stages {
		started := time.Now()
		next, outputs, err := stage.fn(state)
		if err != nil {
			return nil, fmt.Errorf("underwrite stage %s: %w", stage.name, err)
		}
		events = append(events, models.TraceEvent{
			NodeName:   stage.name,
			DurationMS: float64(time.Since(started).Microseconds()) / 1000.0,
			Outputs:    outputs,
		})
		state = next
	}

	if s.config.TraceEnabled && s.traces != nil {
		trace := &models.UnderwriteTrace{
			CaseID:              state.caseID,
			RequestID:           state.requestID,
			Decision:            state.decision,
			RiskScore:           state.riskScore,
			ModelID:             state.modelID,
			ChunkIDsUsed:        state.chunkIDsUsed,
			Trace:               events,
			JustifierTranscript: state.transcript,
		}
		if err := s.traces.Save(trace); err != nil {
			log.Printf("Warning: failed to persist underwrite trace: %v", err)
		}
	}

	return responseFromState(state), nil
}

func (s *UnderwriteService) stagePolicy(state underwriteState) (underwriteState, map[string]interface{}, error) {
	policy, err := EvaluateMortgagePolicyV1(state.payload)
	if err != nil {
		return state, nil, err
	}
	state.policy = policy
	return state, map[string]interface{}{
		"policy_id": policy.PolicyID,
		"decision":  policy.Decision,
	}, nil
}

func (s *UnderwriteService) stageRisk(state underwriteState) (underwriteState, map[string]interface{}, error) {
	scored, err := s.scorer.Score(state.payload, state.modelVersion)
	if err != nil {
		return state, nil, err
	}
	state.riskScore = scored.Score
	state.modelID = scored.ModelID
	return state, map[string]interface{}{
		"risk_score": scored.Score,
		"model_id":   scored.ModelID,
	}, nil
}

func (s *UnderwriteService) stageBuildQuery(state underwriteState) (underwriteState, map[string]interface{}, error) {
	query := strings.TrimSpace(state.evidenceQuery)
	if query == "" {
		query = BuildDefaultEvidenceQuery(state.payload)
	}
	state.evidenceQuery = query
	return state, map[string]interface{}{"query_length": len(query)}, nil
}

func (s *UnderwriteService) stageEvidence(state underwriteState) (underwriteState, map[string]interface{}, error) {
	matches, err := s.index.Search(state.evidenceQuery, state.topK, state.caseID, s.config.MinScore)
	if err != nil {
		return state, nil, err
	}
	state.evidence = matches

	chunkIDs := make([]string, 0, len(matches))
	for _, match := range matches {
		chunkIDs = append(chunkIDs, match.Chunk.ChunkID)
	}
	return state, map[string]interface{}{
		"result_count": len(matches),
		"chunk_ids":    chunkIDs,
	}, nil
}

func (s *UnderwriteService) stageJustify(state underwriteState) (underwriteState, map[string]interface{}, error) {
	justification, transcript, err := GenerateJustification(state.justifier, JustificationInput{
		CaseID:          state.caseID,
		Payload:         state.payload,
		Policy:          state.policy,
		RiskScore:       state.riskScore,
		EvidenceResults: state.evidence,
		MaxCitations:    s.config.MaxCitations,
		RequestID:       state.requestID,
	})
	if err != nil {
		return state, nil, err
	}

	state.justification = justification
	state.transcript = transcript
	state.chunkIDsUsed = make([]string, 0, len(justification.Citations))
	for _, citation := range justification.Citations {
		state.chunkIDsUsed = append(state.chunkIDsUsed, citation.ChunkID)
	}
	return state, map[string]interface{}{
		"provider":      string(state.justifier),
		"num_citations": len(justification.Citations),
		"chunk_ids":     state.chunkIDsUsed,
	}, nil
}

// stageDecide adopts the policy verdict. It is a separate stage to keep the
// trace granular and to leave room for decision overrides later.
func (s *UnderwriteService) stageDecide(state underwriteState) (underwriteState, map[string]interface{}, error) {
	state.decision = state.policy.Decision
	return state, map[string]interface{}{"decision": state.decision}, nil
}

func (s *UnderwriteService) stageAuditMetrics(state underwriteState) (underwriteState, map[string]interface{}, error) {
	citationCount := len(state.chunkIDsUsed)
	if s.metrics != nil {
		s.metrics.Increment(MetricUnderwriteCitationsTotal, float64(citationCount))
		if citationCount > 0 {
			s.metrics.Increment(MetricUnderwriteWithCitationsTotal, 1)
		}
	}

	event := map[string]interface{}{
		"timestamp":  time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		"request_id": state.requestID,
		"case_id":    state.caseID,
		"event":      "underwrite_justification",
		"decision":   state.decision,
		"risk_score": state.riskScore,
		"model_id":   state.modelID,
		"chunk_ids":  state.chunkIDsUsed,
	}
	if s.audit != nil {
		if err := s.audit.EmitDecisionEvent(event); err != nil {
			log.Printf("Warning: audit emit failed for case %s request %s: %v",
				state.caseID, state.requestID, err)
		}
	}

	return state, map[string]interface{}{
		"citation_count": citationCount,
		"decision":       state.decision,
	}, nil
}

// UnderwriteLegacy is the monolithic execution path, maintained
// independently from the staged pipeline. It must produce the same policy
// decision, risk score, policy block, and ordered citation chunk ids as the
// pipeline for identical inputs.
func (s *UnderwriteService) UnderwriteLegacy(req UnderwriteRequest, justifier JustifierProvider) (*models.UnderwriteResponseV1, error) {
	policy, err := EvaluateMortgagePolicyV1(req.Payload)
	if err != nil {
		return nil, err
	}

	scored, err := s.scorer.Score(req.Payload, req.ModelVersion)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(req.EvidenceQuery)
	if query == "" {
		query = BuildDefaultEvidenceQuery(req.Payload)
	}

	evidence, err := s.index.Search(query, req.TopK, req.CaseID, s.config.MinScore)
	if err != nil {
		return nil, err
	}

	justification, _, err := GenerateJustification(justifier, JustificationInput{
		CaseID:          req.CaseID,
		Payload:         req.Payload,
		Policy:          policy,
		RiskScore:       scored.Score,
		EvidenceResults: evidence,
		MaxCitations:    s.config.MaxCitations,
		RequestID:       req.RequestID,
	})
	if err != nil {
		return nil, err
	}

	return &models.UnderwriteResponseV1{
		SchemaVersion: models.SchemaVersionV1,
		CaseID:        req.CaseID,
		Decision:      policy.Decision,
		RiskScore:     scored.Score,
		Policy: models.PolicyBlock{
			PolicyID: policy.PolicyID,
			Decision: policy.Decision,
			Reasons:  policy.Reasons,
			Derived:  policy.Derived,
		},
		Justification: *justification,
		RequestID:     req.RequestID,
	}, nil
}

func responseFromState(state underwriteState) *models.UnderwriteResponseV1 {
	return &models.UnderwriteResponseV1{
		SchemaVersion: models.SchemaVersionV1,
		CaseID:        state.caseID,
		Decision:      state.decision,
		RiskScore:     state.riskScore,
		Policy: models.PolicyBlock{
			PolicyID: state.policy.PolicyID,
			Decision: state.policy.Decision,
			Reasons:  state.policy.Reasons,
			Derived:  state.policy.Derived,
		},
		Justification: *state.justification,
		RequestID:     state.requestID,
	}
}

// BuildDefaultEvidenceQuery synthesizes an evidence query from the payload's
// known feature fields when the caller supplied none.
func BuildDefaultEvidenceQuery(payload map[string]interface{}) string {
	orderedKeys := []string{
		"credit_score",
		"monthly_income",
		"monthly_debt",
		"loan_amount",
		"property_value",
		"occupancy",
	}

	var parts []string
	for _, key := range orderedKeys {
		if value, ok := payload[key]; ok && value != nil {
			parts = append(parts, key+"="+formatQueryValue(value))
		}
	}

	income, incomeErr := numericFeature(payload, "monthly_income")
	debt, debtErr := numericFeature(payload, "monthly_debt")
	if incomeErr == nil && debtErr == nil {
		dti := 0.0
		if income > 0 {
			dti = debt / income
		}
		parts = append(parts, fmt.Sprintf("dti=%.4f", dti))
	}

	return strings.Join(parts, " | ")
}

func formatQueryValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
