package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingest_jobs (id, org_id, document_id, version_id, version, stage, status, attempts, last_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, job.ID, job.OrgID, job.DocumentID, job.VersionID, job.Version,
		job.Stage, string(job.Status), job.Attempts, job.LastError, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, org_id, document_id, version_id, version, stage, status, attempts, last_error, created_at, updated_at
FROM ingest_jobs
WHERE id = $1
`, id)

	var job domain.IngestJob
	var stage, lastError sql.NullString
	var status string
	err := row.Scan(&job.ID, &job.OrgID, &job.DocumentID, &job.VersionID, &job.Version,
		&stage, &status, &job.Attempts, &lastError, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "fetch job", fmt.Errorf("job %s", id))
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Stage = stage.String
	job.LastError = lastError.String
	job.Status = domain.JobStatus(status)
	return &job, nil
}

func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE ingest_jobs
SET status = $2, attempts = attempts + 1, updated_at = $3
WHERE id = $1
`, id, string(domain.JobRunning), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return requireJobRow(res, id)
}

func (r *JobRepository) MarkFinished(ctx context.Context, id string, status domain.JobStatus, stage, lastError string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE ingest_jobs
SET status = $2, stage = $3, last_error = $4, updated_at = $5
WHERE id = $1
`, id, string(status), stage, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}
	return requireJobRow(res, id)
}

func requireJobRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update job", fmt.Errorf("job %s", id))
	}
	return nil
}
