package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"caseflow-backend/models"
)

// ReplayRepository persists the exact request parameters and response of an
// underwrite call per (case_id, request_id), so the call can be reproduced
// later with its originally recorded engine and justifier selection.
type ReplayRepository struct {
	root string
}

// NewReplayRepository creates a replay store rooted at dir.
func NewReplayRepository(root string) *ReplayRepository {
	return &ReplayRepository{root: root}
}

func (r *ReplayRepository) resultPath(caseID, requestID string) string {
	return filepath.Join(r.root, caseID, safeRequestID(requestID)+".json")
}

func (r *ReplayRepository) requestPath(caseID, requestID string) string {
	return filepath.Join(r.root, caseID, safeRequestID(requestID)+"_request.json")
}

// SaveResult persists the outbound response verbatim.
func (r *ReplayRepository) SaveResult(response *models.UnderwriteResponseV1) error {
	return r.writeJSON(r.resultPath(response.CaseID, response.RequestID), response)
}

// LoadResult retrieves a previously saved response.
func (r *ReplayRepository) LoadResult(caseID, requestID string) (*models.UnderwriteResponseV1, error) {
	path := r.resultPath(caseID, requestID)
	data, err := r.readArtifact(path, "underwrite result", caseID, requestID)
	if err != nil {
		return nil, err
	}

	var response models.UnderwriteResponseV1
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, models.WrapCorrupt("underwrite result "+path, err)
	}
	if response.SchemaVersion == "" {
		return nil, fmt.Errorf("%w: underwrite result %s is not a response object", models.ErrCorrupt, path)
	}
	return &response, nil
}

// SaveRequest persists the inbound parameters, including the engine and
// justifier selection active at call time.
func (r *ReplayRepository) SaveRequest(request *models.UnderwriteRequestArtifact) error {
	return r.writeJSON(r.requestPath(request.CaseID, request.RequestID), request)
}

// LoadRequest retrieves stored request parameters for replay.
func (r *ReplayRepository) LoadRequest(caseID, requestID string) (*models.UnderwriteRequestArtifact, error) {
	path := r.requestPath(caseID, requestID)
	data, err := r.readArtifact(path, "underwrite request", caseID, requestID)
	if err != nil {
		return nil, err
	}

	var request models.UnderwriteRequestArtifact
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, models.WrapCorrupt("underwrite request "+path, err)
	}
	if request.CaseID == "" {
		return nil, fmt.Errorf("%w: underwrite request %s is missing case_id", models.ErrCorrupt, path)
	}
	return &request, nil
}

func (r *ReplayRepository) writeJSON(path string, value interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create replay directory: %w", err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode replay artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write replay artifact: %w", err)
	}
	return nil
}

func (r *ReplayRepository) readArtifact(path, kind, caseID, requestID string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s for case '%s' request '%s': %w", kind, caseID, requestID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", kind, err)
	}
	return data, nil
}
