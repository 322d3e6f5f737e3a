package models

import (
	"time"

	"github.com/google/uuid"
)

// IngestionRunStatus represents the lifecycle state of a raw-document
// ingestion run.
type IngestionRunStatus string

const (
	IngestionRunRunning   IngestionRunStatus = "running"
	IngestionRunCompleted IngestionRunStatus = "completed"
	IngestionRunFailed    IngestionRunStatus = "failed"
)

// IngestionRun is the bookkeeping row for one batch upload of raw case
// documents into blob storage.
type IngestionRun struct {
	ID         uuid.UUID          `json:"id"`
	Status     IngestionRunStatus `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	SourcePath string             `json:"source_path"`
	Bucket     string             `json:"bucket"`
	Prefix     string             `json:"prefix"`
	FileCount  int                `json:"file_count"`
	TotalBytes int64              `json:"total_bytes"`
	SampleKeys []string           `json:"sample_keys"`
	Error      *string            `json:"error,omitempty"`
}
