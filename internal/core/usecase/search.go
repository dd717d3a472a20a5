package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	defaultTopK = 10
	maxTopK     = 100

	// The index knows nothing about per-user ACLs, so we over-fetch and
	// filter post-hoc; the extra candidates absorb the dropped hits.
	oversampleFactor = 2

	snippetRunes = 240
)

// SearchUseCase embeds the query, over-samples the vector index inside the
// caller's org namespace, filters hits against the user's ACL scope, enriches
// survivors with relational metadata and appends an audit log entry.
type SearchUseCase struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	resolver ports.AccessResolver
	docs     ports.DocumentRepository
	chunks   ports.ChunkRepository
	logs     ports.SearchLogRepository
	logger   *slog.Logger
}

func NewSearchUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	resolver ports.AccessResolver,
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	logs ports.SearchLogRepository,
	logger *slog.Logger,
) *SearchUseCase {
	return &SearchUseCase{
		embedder: embedder,
		index:    index,
		resolver: resolver,
		docs:     docs,
		chunks:   chunks,
		logs:     logs,
		logger:   logger,
	}
}

func (uc *SearchUseCase) Search(
	ctx context.Context,
	userID, orgID, query string,
	topK int,
	filter domain.SearchFilter,
) (*domain.SearchResponse, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	groupIDs, err := uc.resolver.AccessibleGroupIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve access scope: %w", err)
	}
	accessibleIDs, err := uc.resolver.AccessibleDocumentIDs(ctx, groupIDs, orgID)
	if err != nil {
		return nil, fmt.Errorf("resolve accessible documents: %w", err)
	}
	if len(accessibleIDs) == 0 {
		// Default deny: empty scope is an empty result set, not an error.
		resp := uc.respond(query, nil, start)
		uc.logSearch(ctx, userID, orgID, query, filter, topK, resp)
		return resp, nil
	}
	accessible := make(map[string]struct{}, len(accessibleIDs))
	for _, id := range accessibleIDs {
		accessible[id] = struct{}{}
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := uc.index.Query(ctx, queryVector, topK*oversampleFactor, filter, orgID)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	results, err := uc.resolveHits(ctx, hits, accessible, topK)
	if err != nil {
		return nil, err
	}

	resp := uc.respond(query, results, start)
	uc.logSearch(ctx, userID, orgID, query, filter, topK, resp)
	return resp, nil
}

// resolveHits drops hits the user cannot access and hits whose backing rows
// were deleted after indexing, preserving index ranking order.
func (uc *SearchUseCase) resolveHits(
	ctx context.Context,
	hits []domain.VectorHit,
	accessible map[string]struct{},
	topK int,
) ([]domain.SearchResult, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	docIDs := make([]string, 0, len(hits))
	chunkIDs := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, ok := accessible[h.DocumentID]; !ok {
			continue
		}
		chunkIDs = append(chunkIDs, h.ChunkID)
		if _, dup := seen[h.DocumentID]; !dup {
			seen[h.DocumentID] = struct{}{}
			docIDs = append(docIDs, h.DocumentID)
		}
	}
	if len(docIDs) == 0 {
		return nil, nil
	}

	docs, err := uc.docs.GetByIDs(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("enrich documents: %w", err)
	}
	chunkRows, err := uc.chunks.GetByIDs(ctx, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("enrich chunks: %w", err)
	}

	results := make([]domain.SearchResult, 0, topK)
	for _, h := range hits {
		if len(results) == topK {
			break
		}
		if _, ok := accessible[h.DocumentID]; !ok {
			continue
		}
		doc, ok := docs[h.DocumentID]
		if !ok || doc.Status != domain.StatusReady {
			// Deleted or superseded after indexing; not an error.
			continue
		}
		chunk, ok := chunkRows[h.ChunkID]
		if !ok {
			// Orphan index entry whose chunk row is gone; skip it.
			continue
		}
		results = append(results, domain.SearchResult{
			DocumentID: h.DocumentID,
			ChunkID:    h.ChunkID,
			Title:      doc.Title,
			FileType:   doc.FileType,
			Position:   chunk.Position,
			Snippet:    snippet(chunk.Text),
			Score:      h.Score,
		})
	}
	return results, nil
}

func (uc *SearchUseCase) respond(query string, results []domain.SearchResult, start time.Time) *domain.SearchResponse {
	if results == nil {
		results = []domain.SearchResult{}
	}
	return &domain.SearchResponse{
		Results:   results,
		Total:     len(results),
		Query:     query,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

// logSearch appends the audit row. Best-effort: a logging failure never
// fails the search.
func (uc *SearchUseCase) logSearch(
	ctx context.Context,
	userID, orgID, query string,
	filter domain.SearchFilter,
	topK int,
	resp *domain.SearchResponse,
) {
	matchIDs := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		matchIDs = append(matchIDs, r.ChunkID)
	}
	err := uc.logs.Create(ctx, &domain.SearchLog{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		UserID:    userID,
		QueryText: query,
		Filter:    filter,
		TopK:      topK,
		LatencyMs: resp.LatencyMs,
		MatchIDs:  matchIDs,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		uc.logger.Warn("persist search log", "user_id", userID, "error", err)
	}
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}
	return string(runes[:snippetRunes]) + "…"
}
