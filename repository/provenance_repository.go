package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"caseflow-backend/models"
	"caseflow-backend/storage"
)

// ProvenanceRepository persists extracted document text and its provenance
// record in blob storage, keyed by case and document.
type ProvenanceRepository struct {
	store storage.Storage
}

// NewProvenanceRepository creates a provenance repository over the given
// storage backend.
func NewProvenanceRepository(store storage.Storage) *ProvenanceRepository {
	return &ProvenanceRepository{store: store}
}

func textKey(caseID, documentID string) string {
	return fmt.Sprintf("cases/%s/documents/%s/text.txt", caseID, documentID)
}

func provenanceKey(caseID, documentID string) string {
	return fmt.Sprintf("cases/%s/documents/%s/provenance.json", caseID, documentID)
}

// SaveDocument stores the extracted text and a provenance event describing
// how it was produced. An existing document is overwritten and its
// created_at timestamp preserved when the old record can be read.
func (r *ProvenanceRepository) SaveDocument(ctx context.Context, event *models.ProvenanceEvent, text string) error {
	if event.CaseID == "" || event.DocumentID == "" {
		return fmt.Errorf("%w: case_id and document_id are required", models.ErrInvalidArgument)
	}

	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	event.TextKey = textKey(event.CaseID, event.DocumentID)
	event.UpdatedAt = now
	if existing, err := r.LoadEvent(ctx, event.CaseID, event.DocumentID); err == nil {
		event.CreatedAt = existing.CreatedAt
	} else {
		event.CreatedAt = now
	}

	if err := r.store.Put(ctx, event.TextKey, "text/plain", bytes.NewReader([]byte(text))); err != nil {
		return fmt.Errorf("failed to store document text: %w", err)
	}

	payload, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode provenance event: %w", err)
	}
	key := provenanceKey(event.CaseID, event.DocumentID)
	if err := r.store.Put(ctx, key, "application/json", bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to store provenance event: %w", err)
	}

	return nil
}

// LoadText retrieves the extracted text of a stored document.
func (r *ProvenanceRepository) LoadText(ctx context.Context, caseID, documentID string) (string, error) {
	reader, err := r.store.Get(ctx, textKey(caseID, documentID))
	if err != nil {
		return "", fmt.Errorf("%w: document text for case %s document %s", models.ErrNotFound, caseID, documentID)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read document text: %w", err)
	}
	return string(data), nil
}

// LoadEvent retrieves the provenance event of a stored document.
func (r *ProvenanceRepository) LoadEvent(ctx context.Context, caseID, documentID string) (*models.ProvenanceEvent, error) {
	key := provenanceKey(caseID, documentID)
	reader, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: provenance for case %s document %s", models.ErrNotFound, caseID, documentID)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read provenance event: %w", err)
	}

	var event models.ProvenanceEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, models.WrapCorrupt("provenance event "+key, err)
	}
	return &event, nil
}

// DeleteDocument removes the stored text and provenance for a document.
func (r *ProvenanceRepository) DeleteDocument(ctx context.Context, caseID, documentID string) error {
	if err := r.store.Delete(ctx, textKey(caseID, documentID)); err != nil {
		return err
	}
	return r.store.Delete(ctx, provenanceKey(caseID, documentID))
}
