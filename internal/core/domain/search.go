package domain

import "time"

type SearchFilter struct {
	FileType string   `json:"file_type,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// VectorHit is a raw nearest-neighbor result from the external index.
type VectorHit struct {
	VectorID   string
	DocumentID string
	ChunkID    string
	Position   int
	Score      float64
	Text       string
}

type SearchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Title      string  `json:"title"`
	FileType   string  `json:"file_type"`
	Position   int     `json:"position"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

type SearchResponse struct {
	Results   []SearchResult `json:"results"`
	Total     int            `json:"total"`
	Query     string         `json:"query"`
	LatencyMs int64          `json:"latency_ms"`
}

// SearchLog is a write-only audit trail; the pipeline never reads it back.
type SearchLog struct {
	ID        string       `json:"id"`
	OrgID     string       `json:"org_id"`
	UserID    string       `json:"user_id"`
	QueryText string       `json:"query_text"`
	Filter    SearchFilter `json:"filter"`
	TopK      int          `json:"top_k"`
	LatencyMs int64        `json:"latency_ms"`
	MatchIDs  []string     `json:"match_ids"`
	CreatedAt time.Time    `json:"created_at"`
}
