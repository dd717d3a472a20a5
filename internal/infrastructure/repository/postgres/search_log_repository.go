package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type SearchLogRepository struct {
	db *sql.DB
}

func NewSearchLogRepository(db *sql.DB) *SearchLogRepository {
	return &SearchLogRepository{db: db}
}

func (r *SearchLogRepository) Create(ctx context.Context, log *domain.SearchLog) error {
	filterJSON, err := json.Marshal(log.Filter)
	if err != nil {
		return fmt.Errorf("marshal search filter: %w", err)
	}
	matchJSON, err := json.Marshal(log.MatchIDs)
	if err != nil {
		return fmt.Errorf("marshal match ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO search_logs (id, org_id, user_id, query_text, filters, top_k, latency_ms, match_ids, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, log.ID, log.OrgID, log.UserID, log.QueryText, filterJSON,
		log.TopK, log.LatencyMs, matchJSON, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert search log: %w", err)
	}
	return nil
}
