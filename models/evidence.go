package models

// EvidenceChunk is a bounded substring of one document's extracted text, the
// unit of indexing and citation.
type EvidenceChunk struct {
	CaseID     string `json:"case_id"`
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Text       string `json:"text"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	Source     string `json:"source"`
	Page       *int   `json:"page"`
}

// IndexRecord is a persisted chunk plus its embedding vector.
type IndexRecord struct {
	EvidenceChunk
	Embedding []float64 `json:"embedding"`
}

// SearchResult is a scored retrieval hit. Results are totally ordered by
// (-score, document_id, chunk_id).
type SearchResult struct {
	Chunk EvidenceChunk `json:"chunk"`
	Score float64       `json:"score"`
}

// DocumentStats is the per-document chunk count within one case.
type DocumentStats struct {
	DocumentID string `json:"document_id"`
	NumChunks  int    `json:"num_chunks"`
}

// CaseStats summarizes the indexed evidence for one case.
type CaseStats struct {
	NumChunks int             `json:"num_chunks"`
	Documents []DocumentStats `json:"documents"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}
