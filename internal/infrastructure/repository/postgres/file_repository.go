package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, f *domain.File) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO files (id, document_id, version_id, bucket, role, path, mime_type, size_bytes, sha256, creator_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (document_id, version_id, role) DO UPDATE
SET bucket = EXCLUDED.bucket, path = EXCLUDED.path, mime_type = EXCLUDED.mime_type,
    size_bytes = EXCLUDED.size_bytes, sha256 = EXCLUDED.sha256
`, f.ID, f.DocumentID, f.VersionID, f.Bucket, string(f.Role), f.Path,
		f.MimeType, f.SizeBytes, f.SHA256, f.CreatorID, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByVersionRole(ctx context.Context, versionID string, role domain.FileRole) (*domain.File, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, version_id, bucket, role, path, mime_type, size_bytes, sha256, creator_id, created_at
FROM files
WHERE version_id = $1 AND role = $2
`, versionID, string(role))

	var f domain.File
	var roleStr string
	err := row.Scan(&f.ID, &f.DocumentID, &f.VersionID, &f.Bucket, &roleStr,
		&f.Path, &f.MimeType, &f.SizeBytes, &f.SHA256, &f.CreatorID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "fetch file record",
				fmt.Errorf("version %s role %s", versionID, role))
		}
		return nil, fmt.Errorf("scan file record: %w", err)
	}
	f.Role = domain.FileRole(roleStr)
	return &f, nil
}
