package models

// SchemaVersionV1 tags the stable underwrite response shape.
const SchemaVersionV1 = "v1"

// PolicyBlock is the policy section of an underwrite response.
type PolicyBlock struct {
	PolicyID string             `json:"policy_id"`
	Decision string             `json:"decision"`
	Reasons  []string           `json:"reasons"`
	Derived  map[string]float64 `json:"derived"`
}

// UnderwriteResponseV1 is the full case outcome. It round-trips through
// persistence unchanged except for request_id.
type UnderwriteResponseV1 struct {
	SchemaVersion string        `json:"schema_version"`
	CaseID        string        `json:"case_id"`
	Decision      string        `json:"decision"`
	RiskScore     float64       `json:"risk_score"`
	Policy        PolicyBlock   `json:"policy"`
	Justification Justification `json:"justification"`
	RequestID     string        `json:"request_id"`
}

// UnderwriteRequestArtifact captures the exact inbound parameters of one
// underwrite call, including the engine and justifier selection active at
// call time, so the call can be replayed later.
type UnderwriteRequestArtifact struct {
	CaseID            string                 `json:"case_id"`
	RequestID         string                 `json:"request_id"`
	Payload           map[string]interface{} `json:"payload"`
	ModelVersion      string                 `json:"model_version,omitempty"`
	EvidenceQuery     string                 `json:"evidence_query,omitempty"`
	TopK              int                    `json:"top_k"`
	UnderwriteEngine  string                 `json:"underwrite_engine"`
	JustifierProvider string                 `json:"justifier_provider"`
}

// TraceEvent records one pipeline stage's execution.
type TraceEvent struct {
	NodeName   string                 `json:"node_name"`
	DurationMS float64                `json:"duration_ms"`
	Outputs    map[string]interface{} `json:"outputs"`
}

// Stage names form the fixed trace vocabulary, in pipeline order.
const (
	StagePolicy       = "policy"
	StageRisk         = "risk"
	StageBuildQuery   = "build_query"
	StageEvidence     = "evidence"
	StageJustify      = "justify"
	StageDecide       = "decide"
	StageAuditMetrics = "audit_metrics"
)

// UnderwriteTrace is the persisted per-run execution record.
type UnderwriteTrace struct {
	CaseID              string               `json:"case_id"`
	RequestID           string               `json:"request_id"`
	Decision            string               `json:"decision"`
	RiskScore           float64              `json:"risk_score"`
	ModelID             string               `json:"model_id"`
	ChunkIDsUsed        []string             `json:"chunk_ids_used"`
	Trace               []TraceEvent         `json:"trace"`
	JustifierTranscript *JustifierTranscript `json:"justifier_transcript"`
}
