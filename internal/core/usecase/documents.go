package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

// DocumentReadUseCase serves single-document fetches with the ACL
// intersection check applied before any metadata leaves the service.
type DocumentReadUseCase struct {
	docs     ports.DocumentRepository
	resolver ports.AccessResolver
}

func NewDocumentReadUseCase(docs ports.DocumentRepository, resolver ports.AccessResolver) *DocumentReadUseCase {
	return &DocumentReadUseCase{docs: docs, resolver: resolver}
}

func (uc *DocumentReadUseCase) GetByID(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.CreatorID != userID {
		ok, err := uc.resolver.HasAccess(ctx, documentID, userID)
		if err != nil {
			return nil, fmt.Errorf("check access: %w", err)
		}
		if !ok {
			return nil, domain.WrapError(domain.ErrAccessDenied, "fetch document",
				errors.New("user has no group access to document"))
		}
	}
	return doc, nil
}

// DeleteDocumentUseCase removes a document and its derived state. The
// relational delete cascades to versions, files, chunks, embeddings and ACL
// bindings; vector and blob cleanup are best-effort afterwards. A transient
// orphan vector is preferable to a blocked user-facing delete.
type DeleteDocumentUseCase struct {
	docs       ports.DocumentRepository
	embeddings ports.EmbeddingRepository
	resolver   ports.AccessResolver
	index      ports.VectorIndex
	logger     *slog.Logger
}

func NewDeleteDocumentUseCase(
	docs ports.DocumentRepository,
	embeddings ports.EmbeddingRepository,
	resolver ports.AccessResolver,
	index ports.VectorIndex,
	logger *slog.Logger,
) *DeleteDocumentUseCase {
	return &DeleteDocumentUseCase{
		docs:       docs,
		embeddings: embeddings,
		resolver:   resolver,
		index:      index,
		logger:     logger,
	}
}

func (uc *DeleteDocumentUseCase) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.CreatorID != userID {
		ok, err := uc.resolver.HasAccess(ctx, documentID, userID)
		if err != nil {
			return fmt.Errorf("check access: %w", err)
		}
		if !ok {
			return domain.WrapError(domain.ErrAccessDenied, "delete document",
				errors.New("user has no group access to document"))
		}
	}

	// Collect vector ids before the cascade removes the embedding rows.
	vectorIDs, err := uc.embeddings.VectorIDsByDocument(ctx, documentID)
	if err != nil {
		uc.logger.Warn("collect vector ids for delete", "document_id", documentID, "error", err)
		vectorIDs = nil
	}

	if err := uc.docs.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if len(vectorIDs) > 0 {
		if err := uc.index.Delete(ctx, vectorIDs, doc.OrgID); err != nil {
			uc.logger.Warn("delete vectors", "document_id", documentID, "count", len(vectorIDs), "error", err)
		}
	}
	return nil
}
