package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"caseflow-backend/models"
)

// TraceRepository persists one execution trace per (case_id, request_id)
// as a small JSON file so a prior run can be inspected independently.
type TraceRepository struct {
	root string
}

// NewTraceRepository creates a trace store rooted at dir.
func NewTraceRepository(root string) *TraceRepository {
	return &TraceRepository{root: root}
}

func (r *TraceRepository) tracePath(caseID, requestID string) string {
	return filepath.Join(r.root, caseID, safeRequestID(requestID)+".json")
}

// Save writes the trace artifact, creating parent directories as needed.
func (r *TraceRepository) Save(trace *models.UnderwriteTrace) error {
	path := r.tracePath(trace.CaseID, trace.RequestID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create trace directory: %w", err)
	}

	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}

// Load retrieves the trace for one (case, request) pair.
func (r *TraceRepository) Load(caseID, requestID string) (*models.UnderwriteTrace, error) {
	path := r.tracePath(caseID, requestID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("trace for case '%s' request '%s': %w", caseID, requestID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	var trace models.UnderwriteTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, models.WrapCorrupt("trace "+path, err)
	}
	return &trace, nil
}

// safeRequestID keeps blank request ids addressable on disk.
func safeRequestID(requestID string) string {
	trimmed := strings.TrimSpace(requestID)
	if trimmed == "" {
		return "no-request-id"
	}
	return trimmed
}
