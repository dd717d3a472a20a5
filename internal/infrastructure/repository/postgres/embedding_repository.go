package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type EmbeddingRepository struct {
	db *sql.DB
}

func NewEmbeddingRepository(db *sql.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// CreateBatch writes the commit records for upserted vectors. A vector-id
// conflict re-points the row at the new chunk, which is what a re-ingestion
// of the same position means.
func (r *EmbeddingRepository) CreateBatch(ctx context.Context, embeddings []domain.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin embedding tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO embeddings (id, org_id, chunk_id, vector_id, index_name, namespace, model_name, model_version, dim, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (index_name, namespace, vector_id) DO UPDATE
SET chunk_id = EXCLUDED.chunk_id, model_name = EXCLUDED.model_name,
    model_version = EXCLUDED.model_version, dim = EXCLUDED.dim
`)
	if err != nil {
		return fmt.Errorf("prepare embedding insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range embeddings {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.OrgID, e.ChunkID, e.VectorID, e.IndexName,
			e.Namespace, e.ModelName, e.ModelVersion, e.Dim, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert embedding %s: %w", e.VectorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit embedding tx: %w", err)
	}
	return nil
}

func (r *EmbeddingRepository) VectorIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT e.vector_id
FROM embeddings e
JOIN chunks c ON c.id = e.chunk_id
WHERE c.document_id = $1
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query vector ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vector id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector ids: %w", err)
	}
	return ids, nil
}
