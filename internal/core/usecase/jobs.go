package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

// JobCoordinator tracks ingestion jobs in the relational store and moves the
// work through the queue transport. The job row is the status surface for
// pollers; redelivery/backoff policy lives in the queue adapter.
type JobCoordinator struct {
	jobs   ports.JobRepository
	queue  ports.JobQueue
	logger *slog.Logger
}

func NewJobCoordinator(jobs ports.JobRepository, queue ports.JobQueue, logger *slog.Logger) *JobCoordinator {
	return &JobCoordinator{jobs: jobs, queue: queue, logger: logger}
}

func (c *JobCoordinator) Enqueue(ctx context.Context, payload domain.IngestPayload) (string, error) {
	now := time.Now().UTC()
	job := &domain.IngestJob{
		ID:         uuid.NewString(),
		OrgID:      payload.OrgID,
		DocumentID: payload.DocumentID,
		VersionID:  payload.VersionID,
		Version:    payload.Version,
		Status:     domain.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job record: %w", err)
	}

	payload.JobID = job.ID
	payload.EnqueuedAt = now
	if err := c.queue.PublishIngest(ctx, payload); err != nil {
		if markErr := c.jobs.MarkFinished(ctx, job.ID, domain.JobFailed, "enqueue", err.Error()); markErr != nil {
			c.logger.Error("mark job failed after publish error", "job_id", job.ID, "error", markErr)
		}
		return "", fmt.Errorf("publish ingest job: %w", err)
	}
	return job.ID, nil
}

func (c *JobCoordinator) Status(ctx context.Context, jobID string) (*domain.IngestJob, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job: %w", err)
	}
	return job, nil
}

// Handle wraps the processor with job bookkeeping. The returned error drives
// the queue's redelivery; deterministic failures are reported as handled so
// the transport does not replay them.
func (c *JobCoordinator) Handle(processor ports.DocumentProcessor) func(context.Context, domain.IngestPayload) error {
	return func(ctx context.Context, payload domain.IngestPayload) error {
		if payload.JobID != "" {
			if err := c.jobs.MarkRunning(ctx, payload.JobID); err != nil {
				c.logger.Error("mark job running", "job_id", payload.JobID, "error", err)
			}
		}

		err := processor.Process(ctx, payload)
		if err == nil {
			c.finish(ctx, payload.JobID, domain.JobSucceeded, "", "")
			return nil
		}

		stage := StageOf(err)
		if !domain.Retryable(err) {
			c.finish(ctx, payload.JobID, domain.JobFailed, stage, err.Error())
			c.logger.Error("ingest job failed terminally",
				"job_id", payload.JobID, "document_id", payload.DocumentID, "stage", stage, "error", err)
			return nil
		}

		c.finish(ctx, payload.JobID, domain.JobFailed, stage, err.Error())
		return err
	}
}

func (c *JobCoordinator) finish(ctx context.Context, jobID string, status domain.JobStatus, stage, lastError string) {
	if jobID == "" {
		return
	}
	if err := c.jobs.MarkFinished(ctx, jobID, status, stage, lastError); err != nil {
		c.logger.Error("mark job finished", "job_id", jobID, "status", status, "error", err)
	}
}
