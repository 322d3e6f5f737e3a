package models

// ProvenanceEvent records where a document's extracted text came from and
// how it was produced.
type ProvenanceEvent struct {
	CaseID         string                 `json:"case_id"`
	DocumentID     string                 `json:"document_id"`
	Filename       string                 `json:"filename"`
	ContentType    string                 `json:"content_type"`
	SHA256         string                 `json:"sha256"`
	ExtractionMeta map[string]interface{} `json:"extraction_meta"`
	TextKey        string                 `json:"text_key"`
	CreatedAt      string                 `json:"created_at"`
	UpdatedAt      string                 `json:"updated_at"`
}
