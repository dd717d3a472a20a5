package domain

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IngestJob tracks one ingestion attempt through the queue.
type IngestJob struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	DocumentID string    `json:"document_id"`
	VersionID  string    `json:"version_id"`
	Version    int       `json:"version"`
	Stage      string    `json:"stage,omitempty"`
	Status     JobStatus `json:"status"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IngestPayload is the queue message that drives one ingestion run.
type IngestPayload struct {
	JobID      string    `json:"job_id"`
	OrgID      string    `json:"org_id"`
	DocumentID string    `json:"document_id"`
	VersionID  string    `json:"version_id"`
	Version    int       `json:"version"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DedupKey keys queue-level deduplication so a double-submit for the same
// document version is coalesced instead of processed twice.
func (p IngestPayload) DedupKey() string {
	return "ingest:" + p.DocumentID + ":" + p.VersionID
}
