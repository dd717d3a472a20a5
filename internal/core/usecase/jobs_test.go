package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type processorFunc func(context.Context, domain.IngestPayload) error

func (f processorFunc) Process(ctx context.Context, payload domain.IngestPayload) error {
	return f(ctx, payload)
}

func TestEnqueueCreatesRowThenPublishes(t *testing.T) {
	repo := newJobRepoFake()
	queue := &queueFake{}
	c := NewJobCoordinator(repo, queue, testLogger())

	jobID, err := c.Enqueue(context.Background(), domain.IngestPayload{
		OrgID: "org-1", DocumentID: "doc-1", VersionID: "ver-1", Version: 1,
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if jobID == "" {
		t.Fatal("expected job id")
	}
	if _, ok := repo.jobs[jobID]; !ok {
		t.Fatal("expected job row created")
	}
	if len(queue.published) != 1 || queue.published[0].JobID != jobID {
		t.Fatalf("expected payload carrying job id, got %+v", queue.published)
	}
	if queue.published[0].EnqueuedAt.IsZero() {
		t.Fatal("expected enqueue timestamp on payload")
	}
}

func TestHandleSuccessMarksSucceeded(t *testing.T) {
	repo := newJobRepoFake()
	c := NewJobCoordinator(repo, &queueFake{}, testLogger())

	handle := c.Handle(processorFunc(func(context.Context, domain.IngestPayload) error { return nil }))
	if err := handle(context.Background(), domain.IngestPayload{JobID: "job-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.running) != 1 || repo.running[0] != "job-1" {
		t.Fatalf("expected job marked running, got %v", repo.running)
	}
	if len(repo.finished) != 1 || repo.finished[0].status != domain.JobSucceeded {
		t.Fatalf("expected succeeded, got %+v", repo.finished)
	}
}

func TestHandleTerminalFailureIsNotReplayed(t *testing.T) {
	repo := newJobRepoFake()
	c := NewJobCoordinator(repo, &queueFake{}, testLogger())

	terminal := atStage(StageExtract, domain.WrapError(domain.ErrExtractionEmpty, "extract", errors.New("no text")))
	handle := c.Handle(processorFunc(func(context.Context, domain.IngestPayload) error { return terminal }))

	// nil return tells the transport the message is handled.
	if err := handle(context.Background(), domain.IngestPayload{JobID: "job-1"}); err != nil {
		t.Fatalf("terminal failure must not be replayed, got %v", err)
	}
	if len(repo.finished) != 1 || repo.finished[0].status != domain.JobFailed {
		t.Fatalf("expected failed row, got %+v", repo.finished)
	}
	if repo.finished[0].stage != StageExtract {
		t.Fatalf("expected extract stage recorded, got %q", repo.finished[0].stage)
	}
}

func TestHandleRetryableFailurePropagates(t *testing.T) {
	repo := newJobRepoFake()
	c := NewJobCoordinator(repo, &queueFake{}, testLogger())

	transient := atStage(StageEmbed, domain.WrapError(domain.ErrTemporary, "embed", errors.New("ollama 503")))
	handle := c.Handle(processorFunc(func(context.Context, domain.IngestPayload) error { return transient }))

	if err := handle(context.Background(), domain.IngestPayload{JobID: "job-1"}); err == nil {
		t.Fatal("retryable failure must propagate for redelivery")
	}
	if len(repo.finished) != 1 || repo.finished[0].status != domain.JobFailed {
		t.Fatalf("expected failed row pending redelivery, got %+v", repo.finished)
	}
}

func TestEnqueuePublishFailureMarksFailed(t *testing.T) {
	repo := newJobRepoFake()
	queue := &queueFake{err: errors.New("nats unreachable")}
	c := NewJobCoordinator(repo, queue, testLogger())

	if _, err := c.Enqueue(context.Background(), domain.IngestPayload{DocumentID: "doc-1"}); err == nil {
		t.Fatal("expected error")
	}
	if len(repo.finished) != 1 || repo.finished[0].status != domain.JobFailed {
		t.Fatalf("expected job failed after publish error, got %+v", repo.finished)
	}
}
