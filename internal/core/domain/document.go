package domain

import "time"

type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

type Document struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	CreatorID   string         `json:"creator_id"`
	Title       string         `json:"title"`
	FileType    string         `json:"file_type"`
	Tags        []string       `json:"tags,omitempty"`
	Status      DocumentStatus `json:"status"`
	ContentHash string         `json:"content_hash"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DocumentVersion is created once per ingestion attempt and never mutated.
type DocumentVersion struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Version    int       `json:"version"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type FileRole string

const (
	FileRoleRaw       FileRole = "raw"
	FileRoleExtracted FileRole = "extracted"
)

// File records a blob stored with the object-storage collaborator.
type File struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	VersionID  string    `json:"version_id"`
	Bucket     string    `json:"bucket"`
	Role       FileRole  `json:"role"`
	Path       string    `json:"path"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	SHA256     string    `json:"sha256"`
	CreatorID  string    `json:"creator_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is a position-ordered slice of a version's extracted text,
// unique on (document_id, version_id, position).
type Chunk struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	DocumentID  string    `json:"document_id"`
	VersionID   string    `json:"version_id"`
	Position    int       `json:"position"`
	Text        string    `json:"text"`
	TokenCount  int       `json:"token_count,omitempty"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Embedding mirrors a vector stored in the external index. A row exists
// iff the vector exists in the index under VectorID.
type Embedding struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	ChunkID      string    `json:"chunk_id"`
	VectorID     string    `json:"vector_id"`
	IndexName    string    `json:"index_name"`
	Namespace    string    `json:"namespace"`
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`
	Dim          int       `json:"dim"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChunkPiece is the chunker's output before persistence.
type ChunkPiece struct {
	Text        string
	Position    int
	ContentHash string
}
