package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// UploadRequest carries one document submission.
type UploadRequest struct {
	OrgID     string
	UserID    string
	Title     string
	Filename  string
	MimeType  string
	Tags      []string
	ACLGroups []string
	Notes     string
	Body      io.Reader
}

// UploadReceipt is returned immediately; the pipeline runs out-of-band.
type UploadReceipt struct {
	DocumentID string                `json:"document_id"`
	JobID      string                `json:"job_id"`
	Status     domain.DocumentStatus `json:"status"`
}

// DocumentIngestor is the inbound contract for document upload orchestration.
// UploadVersion replaces the content of an existing document with a new
// max+1 version and re-queues processing.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadReceipt, error)
	UploadVersion(ctx context.Context, documentID string, req UploadRequest) (*UploadReceipt, error)
}

// DocumentProcessor drives the ingestion pipeline for a queued version.
type DocumentProcessor interface {
	Process(ctx context.Context, payload domain.IngestPayload) error
}

// DocumentReader is the inbound read model with ACL enforcement.
type DocumentReader interface {
	GetByID(ctx context.Context, userID, documentID string) (*domain.Document, error)
}

// DocumentRemover deletes a document and its derived state.
type DocumentRemover interface {
	Delete(ctx context.Context, userID, documentID string) error
}

// SearchService executes ACL-scoped semantic search.
type SearchService interface {
	Search(ctx context.Context, userID, orgID, query string, topK int, filter domain.SearchFilter) (*domain.SearchResponse, error)
}

// JobStatusReader surfaces ingestion job state for polling.
type JobStatusReader interface {
	Status(ctx context.Context, jobID string) (*domain.IngestJob, error)
}

// AccessResolver computes a user's accessible scope.
type AccessResolver interface {
	AccessibleGroupIDs(ctx context.Context, userID string) ([]string, error)
	AccessibleDocumentIDs(ctx context.Context, groupIDs []string, orgID string) ([]string, error)
	HasAccess(ctx context.Context, documentID, userID string) (bool, error)
}
