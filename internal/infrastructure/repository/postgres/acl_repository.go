package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type ACLRepository struct {
	db *sql.DB
}

func NewACLRepository(db *sql.DB) *ACLRepository {
	return &ACLRepository{db: db}
}

func (r *ACLRepository) GroupIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT group_id FROM user_groups WHERE user_id = $1
`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user groups: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows, "user group")
}

// DocumentIDsForGroups returns ready documents whose ACL-group set
// intersects groupIDs, scoped to one organization.
func (r *ACLRepository) DocumentIDsForGroups(ctx context.Context, groupIDs []string, orgID string) ([]string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(groupIDs)+2)
	args = append(args, orgID, string(domain.StatusReady))
	for _, g := range groupIDs {
		args = append(args, g)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT d.id
FROM documents d
JOIN document_acl_groups ag ON ag.document_id = d.id
WHERE d.org_id = $1 AND d.status = $2 AND ag.group_id IN (`+placeholders(3, len(groupIDs))+`)
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query accessible documents: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows, "accessible document")
}

func (r *ACLRepository) GroupIDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT group_id FROM document_acl_groups WHERE document_id = $1
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query document groups: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows, "document group")
}

func (r *ACLRepository) BindDocumentGroups(ctx context.Context, documentID string, groupIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin acl tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, g := range groupIDs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO document_acl_groups (document_id, group_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, documentID, g); err != nil {
			return fmt.Errorf("bind group %s: %w", g, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit acl tx: %w", err)
	}
	return nil
}

func collectIDs(rows *sql.Rows, what string) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %ss: %w", what, err)
	}
	return ids, nil
}
