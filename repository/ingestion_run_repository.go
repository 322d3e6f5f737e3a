package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caseflow-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IngestionRunRepository handles database operations for ingestion runs
type IngestionRunRepository struct {
	db *pgxpool.Pool
}

// NewIngestionRunRepository creates a new ingestion run repository
func NewIngestionRunRepository(db *pgxpool.Pool) *IngestionRunRepository {
	return &IngestionRunRepository{db: db}
}

// Create records the start of an ingestion run
func (r *IngestionRunRepository) Create(ctx context.Context, run *models.IngestionRun) error {
	query := `
		INSERT INTO ingestion_runs (
			status, source_path, bucket, prefix, file_count, total_bytes, sample_keys
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, started_at`

	err := r.db.QueryRow(
		ctx, query,
		run.Status,
		run.SourcePath,
		run.Bucket,
		run.Prefix,
		run.FileCount,
		run.TotalBytes,
		run.SampleKeys,
	).Scan(&run.ID, &run.StartedAt)

	return err
}

// Complete marks a run as finished with its final counters
func (r *IngestionRunRepository) Complete(ctx context.Context, id uuid.UUID, fileCount int, totalBytes int64, sampleKeys []string) error {
	query := `
		UPDATE ingestion_runs
		SET status = $2, finished_at = $3, file_count = $4, total_bytes = $5, sample_keys = $6
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id,
		models.IngestionRunCompleted, time.Now().UTC(), fileCount, totalBytes, sampleKeys)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: ingestion run %s", models.ErrNotFound, id)
	}
	return nil
}

// Fail marks a run as failed with an error message
func (r *IngestionRunRepository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE ingestion_runs
		SET status = $2, finished_at = $3, error = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id,
		models.IngestionRunFailed, time.Now().UTC(), message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: ingestion run %s", models.ErrNotFound, id)
	}
	return nil
}

// GetByID retrieves one run
func (r *IngestionRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.IngestionRun, error) {
	run := &models.IngestionRun{}
	query := `
		SELECT id, status, started_at, finished_at, source_path, bucket, prefix,
		       file_count, total_bytes, sample_keys, error
		FROM ingestion_runs
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.SourcePath,
		&run.Bucket,
		&run.Prefix,
		&run.FileCount,
		&run.TotalBytes,
		&run.SampleKeys,
		&run.Error,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: ingestion run %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// ListRecent retrieves the most recent runs, newest first
func (r *IngestionRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, status, started_at, finished_at, source_path, bucket, prefix,
		       file_count, total_bytes, sample_keys, error
		FROM ingestion_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.IngestionRun
	for rows.Next() {
		run := &models.IngestionRun{}
		err := rows.Scan(
			&run.ID,
			&run.Status,
			&run.StartedAt,
			&run.FinishedAt,
			&run.SourcePath,
			&run.Bucket,
			&run.Prefix,
			&run.FileCount,
			&run.TotalBytes,
			&run.SampleKeys,
			&run.Error,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
