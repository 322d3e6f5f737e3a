package models

// Citation references one evidence chunk kept after thresholding/top-K,
// derived 1:1 from a SearchResult.
type Citation struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	StartChar  int     `json:"start_char"`
	EndChar    int     `json:"end_char"`
	Score      float64 `json:"score"`
}

// Justification is the synthesized explanation for an underwrite decision:
// a summary, at most five ordered reasons, and the ordered citations.
type Justification struct {
	Summary   string     `json:"summary"`
	Reasons   []string   `json:"reasons"`
	Citations []Citation `json:"citations"`
}

// JustifierTranscript is the side-channel record produced by the
// instrumented justifier. It never affects the justification content.
type JustifierTranscript struct {
	Provider    string                 `json:"provider"`
	RequestID   string                 `json:"request_id"`
	CaseID      string                 `json:"case_id"`
	ToolsCalled []string               `json:"tools_called"`
	Inputs      map[string]interface{} `json:"inputs"`
	Outputs     map[string]interface{} `json:"outputs"`
}
