package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreateBatch bulk-inserts chunks inside one transaction. Position conflicts
// update in place so a retried job lands on the same rows.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, org_id, document_id, version_id, position, text, token_count, content_hash, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (document_id, version_id, position) DO UPDATE
SET text = EXCLUDED.text, token_count = EXCLUDED.token_count, content_hash = EXCLUDED.content_hash
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.OrgID, c.DocumentID, c.VersionID, c.Position,
			c.Text, c.TokenCount, c.ContentHash, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert chunk position %d: %w", c.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error) {
	if len(ids) == 0 {
		return map[string]*domain.Chunk{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, org_id, document_id, version_id, position, text, token_count, content_hash, created_at
FROM chunks
WHERE id IN (`+placeholders(1, len(ids))+`)
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Chunk, len(ids))
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.OrgID, &c.DocumentID, &c.VersionID,
			&c.Position, &c.Text, &c.TokenCount, &c.ContentHash, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// LatestChunkCount returns the chunk count of the newest version other than
// excludeVersionID, or zero when there is no prior version.
func (r *ChunkRepository) LatestChunkCount(ctx context.Context, documentID, excludeVersionID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM chunks
WHERE document_id = $1 AND version_id = (
	SELECT id FROM document_versions
	WHERE document_id = $1 AND id <> $2
	ORDER BY version DESC
	LIMIT 1
)
`, documentID, excludeVersionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count prior version chunks: %w", err)
	}
	return count, nil
}
