package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	UpdateContentHash(ctx context.Context, id, contentHash string) error
	SetFileType(ctx context.Context, id, fileType string) error
	Delete(ctx context.Context, id string) error
}

// VersionRepository persists immutable per-upload version rows.
type VersionRepository interface {
	Create(ctx context.Context, v *domain.DocumentVersion) error
	NextVersion(ctx context.Context, documentID string) (int, error)
}

// FileRepository records blobs stored with the storage collaborator.
type FileRepository interface {
	Create(ctx context.Context, f *domain.File) error
	GetByVersionRole(ctx context.Context, versionID string, role domain.FileRole) (*domain.File, error)
}

// ChunkRepository bulk-persists chunks; chunks are never mutated.
type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []domain.Chunk) error
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error)
	LatestChunkCount(ctx context.Context, documentID string, excludeVersionID string) (int, error)
}

// EmbeddingRepository mirrors vectors stored in the external index.
type EmbeddingRepository interface {
	CreateBatch(ctx context.Context, embeddings []domain.Embedding) error
	VectorIDsByDocument(ctx context.Context, documentID string) ([]string, error)
}

// ACLRepository resolves group membership and document bindings.
type ACLRepository interface {
	GroupIDsForUser(ctx context.Context, userID string) ([]string, error)
	DocumentIDsForGroups(ctx context.Context, groupIDs []string, orgID string) ([]string, error)
	GroupIDsForDocument(ctx context.Context, documentID string) ([]string, error)
	BindDocumentGroups(ctx context.Context, documentID string, groupIDs []string) error
}

// JobRepository tracks ingestion jobs alongside the queue transport.
type JobRepository interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id string, status domain.JobStatus, stage, lastError string) error
}

// SearchLogRepository appends the write-only search audit trail.
type SearchLogRepository interface {
	Create(ctx context.Context, log *domain.SearchLog) error
}

// ObjectStorage stores raw and extracted document bytes.
type ObjectStorage interface {
	Save(ctx context.Context, bucket, key string, data io.Reader) error
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
}

// JobQueue publishes and consumes ingestion work.
type JobQueue interface {
	PublishIngest(ctx context.Context, payload domain.IngestPayload) error
	SubscribeIngest(ctx context.Context, handler func(context.Context, domain.IngestPayload) error) error
}

// TextExtractor converts stored bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, raw []byte, fileType string) (string, error)
}

// Embedder builds vectors for chunk texts and query text. Embed preserves
// input order and returns exactly one vector per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits extracted text into deterministic position-ordered pieces.
type Chunker interface {
	Split(text string) ([]domain.ChunkPiece, error)
}

// VectorPoint is one (id, vector, metadata) triple for the index.
type VectorPoint struct {
	VectorID   string
	Vector     []float32
	DocumentID string
	ChunkID    string
	OrgID      string
	Version    int
	Position   int
	FileType   string
	Tags       []string
	ACLGroups  []string
	Text       string
}

// VectorIndex is the external nearest-neighbor index, partitioned by
// namespace (one per organization).
type VectorIndex interface {
	Upsert(ctx context.Context, points []VectorPoint, namespace string) error
	Query(ctx context.Context, vector []float32, topK int, filter domain.SearchFilter, namespace string) ([]domain.VectorHit, error)
	Delete(ctx context.Context, vectorIDs []string, namespace string) error
}
