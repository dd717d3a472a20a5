package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type VersionRepository struct {
	db *sql.DB
}

func NewVersionRepository(db *sql.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

func (r *VersionRepository) Create(ctx context.Context, v *domain.DocumentVersion) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_versions (id, document_id, version, notes, created_at)
VALUES ($1,$2,$3,$4,$5)
`, v.ID, v.DocumentID, v.Version, v.Notes, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}
	return nil
}

func (r *VersionRepository) NextVersion(ctx context.Context, documentID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version), 0) + 1
FROM document_versions
WHERE document_id = $1
`, documentID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("resolve next version: %w", err)
	}
	return next, nil
}
