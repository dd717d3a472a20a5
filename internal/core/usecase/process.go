package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

// Pipeline stages, used as error context and metric labels.
const (
	StageLoad      = "load"
	StageExtract   = "extract"
	StageStoreText = "store_extracted"
	StageChunk     = "chunk"
	StageEmbed     = "embed"
	StageIndex     = "index"
	StagePersist   = "persist_embeddings"
	StageFinalize  = "finalize"
)

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("stage %s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func atStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

// StageOf extracts the failing pipeline stage from a processing error.
func StageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

// ProcessConfig carries the pipeline knobs resolved at startup.
type ProcessConfig struct {
	IndexName    string
	ModelName    string
	ModelVersion string
}

// ProcessDocumentUseCase is the ingestion orchestrator: it sequences
// extraction, chunking, embedding, indexing and metadata persistence for one
// document version, and reconciles failure into the document status.
//
// Partially-created rows are deliberately left in place on failure; they have
// diagnostic value and every step is idempotent, so a retried job self-heals.
type ProcessDocumentUseCase struct {
	docs       ports.DocumentRepository
	files      ports.FileRepository
	chunks     ports.ChunkRepository
	embeddings ports.EmbeddingRepository
	acl        ports.ACLRepository
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	chunker    ports.Chunker
	embedder   ports.Embedder
	index      ports.VectorIndex
	cfg        ProcessConfig
	logger     *slog.Logger
}

func NewProcessDocumentUseCase(
	docs ports.DocumentRepository,
	files ports.FileRepository,
	chunks ports.ChunkRepository,
	embeddings ports.EmbeddingRepository,
	acl ports.ACLRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	cfg ProcessConfig,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		docs:       docs,
		files:      files,
		chunks:     chunks,
		embeddings: embeddings,
		acl:        acl,
		storage:    storage,
		extractor:  extractor,
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		cfg:        cfg,
		logger:     logger,
	}
}

func (uc *ProcessDocumentUseCase) Process(ctx context.Context, payload domain.IngestPayload) error {
	if err := uc.docs.UpdateStatus(ctx, payload.DocumentID, domain.StatusProcessing, ""); err != nil {
		return atStage(StageLoad, fmt.Errorf("set status=processing: %w", err))
	}

	err := uc.runPipeline(ctx, payload)
	if err != nil {
		uc.logger.Error("ingestion pipeline failed",
			"document_id", payload.DocumentID,
			"version", payload.Version,
			"stage", StageOf(err),
			"error", err,
		)
		// Best-effort terminal status; never mask the pipeline error.
		if markErr := uc.docs.UpdateStatus(ctx, payload.DocumentID, domain.StatusError, err.Error()); markErr != nil {
			uc.logger.Error("set status=error", "document_id", payload.DocumentID, "error", markErr)
		}
		return err
	}

	return nil
}

func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, payload domain.IngestPayload) error {
	doc, raw, err := uc.loadSource(ctx, payload)
	if err != nil {
		return atStage(StageLoad, err)
	}

	text, err := uc.extractor.Extract(ctx, raw, doc.FileType)
	if err != nil {
		return atStage(StageExtract, fmt.Errorf("extract text: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		// Scanned or encrypted documents produce no text; retrying would
		// repeat the same deterministic failure.
		return atStage(StageExtract, domain.WrapError(domain.ErrExtractionEmpty, "extract text",
			fmt.Errorf("document %s yielded no text", payload.DocumentID)))
	}

	uc.storeExtractedText(ctx, payload, doc, text)

	pieces, err := uc.chunker.Split(text)
	if err != nil {
		return atStage(StageChunk, fmt.Errorf("chunk text: %w", err))
	}
	chunks := uc.buildChunks(payload, pieces)
	if err := uc.chunks.CreateBatch(ctx, chunks); err != nil {
		return atStage(StageChunk, fmt.Errorf("persist chunks: %w", err))
	}

	vectors, err := uc.embedChunks(ctx, chunks)
	if err != nil {
		return atStage(StageEmbed, err)
	}

	points, err := uc.buildPoints(ctx, doc, payload, chunks, vectors)
	if err != nil {
		return atStage(StageIndex, err)
	}
	if err := uc.index.Upsert(ctx, points, doc.OrgID); err != nil {
		return atStage(StageIndex, fmt.Errorf("upsert vectors: %w", err))
	}

	if err := uc.persistEmbeddings(ctx, doc, chunks, points, vectors); err != nil {
		return atStage(StagePersist, err)
	}

	uc.cleanupStaleVectors(ctx, payload, doc, len(chunks))

	if err := uc.docs.SetFileType(ctx, doc.ID, doc.FileType); err != nil {
		return atStage(StageFinalize, fmt.Errorf("set file type: %w", err))
	}
	if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.StatusReady, ""); err != nil {
		return atStage(StageFinalize, fmt.Errorf("set status=ready: %w", err))
	}

	uc.logger.Info("document ready",
		"document_id", doc.ID, "version", payload.Version, "chunks", len(chunks))
	return nil
}

func (uc *ProcessDocumentUseCase) loadSource(ctx context.Context, payload domain.IngestPayload) (*domain.Document, []byte, error) {
	doc, err := uc.docs.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document: %w", err)
	}

	rawFile, err := uc.files.GetByVersionRole(ctx, payload.VersionID, domain.FileRoleRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch raw file record: %w", err)
	}

	reader, err := uc.storage.Open(ctx, rawFile.Bucket, rawFile.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open raw blob: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("read raw blob: %w", err)
	}
	return doc, raw, nil
}

// storeExtractedText persists the extracted text blob for debugging and
// re-processing. Best-effort: a failure here is logged, never fatal.
func (uc *ProcessDocumentUseCase) storeExtractedText(ctx context.Context, payload domain.IngestPayload, doc *domain.Document, text string) {
	key := fmt.Sprintf("%s/v%d/extracted.txt", doc.ID, payload.Version)
	if err := uc.storage.Save(ctx, extractedBucket, key, strings.NewReader(text)); err != nil {
		uc.logger.Warn("store extracted text", "document_id", doc.ID, "error", err)
		return
	}
	sum := sha256.Sum256([]byte(text))
	err := uc.files.Create(ctx, &domain.File{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		VersionID:  payload.VersionID,
		Bucket:     extractedBucket,
		Role:       domain.FileRoleExtracted,
		Path:       key,
		MimeType:   "text/plain; charset=utf-8",
		SizeBytes:  int64(len(text)),
		SHA256:     hex.EncodeToString(sum[:]),
		CreatorID:  doc.CreatorID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		uc.logger.Warn("record extracted file", "document_id", doc.ID, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) buildChunks(payload domain.IngestPayload, pieces []domain.ChunkPiece) []domain.Chunk {
	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, domain.Chunk{
			ID:          ChunkID(payload.DocumentID, payload.VersionID, p.Position),
			OrgID:       payload.OrgID,
			DocumentID:  payload.DocumentID,
			VersionID:   payload.VersionID,
			Position:    p.Position,
			Text:        p.Text,
			ContentHash: p.ContentHash,
			CreatedAt:   now,
		})
	}
	return chunks
}

func (uc *ProcessDocumentUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(domain.ErrCountMismatch, "embed chunks",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) buildPoints(
	ctx context.Context,
	doc *domain.Document,
	payload domain.IngestPayload,
	chunks []domain.Chunk,
	vectors [][]float32,
) ([]ports.VectorPoint, error) {
	aclGroups, err := uc.acl.GroupIDsForDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve document acl groups: %w", err)
	}

	points := make([]ports.VectorPoint, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, ports.VectorPoint{
			VectorID:   VectorID(doc.ID, c.Position),
			Vector:     vectors[i],
			DocumentID: doc.ID,
			ChunkID:    c.ID,
			OrgID:      doc.OrgID,
			Version:    payload.Version,
			Position:   c.Position,
			FileType:   doc.FileType,
			Tags:       doc.Tags,
			ACLGroups:  aclGroups,
			Text:       c.Text,
		})
	}
	return points, nil
}

func (uc *ProcessDocumentUseCase) persistEmbeddings(
	ctx context.Context,
	doc *domain.Document,
	chunks []domain.Chunk,
	points []ports.VectorPoint,
	vectors [][]float32,
) error {
	now := time.Now().UTC()
	rows := make([]domain.Embedding, 0, len(chunks))
	for i, c := range chunks {
		rows = append(rows, domain.Embedding{
			ID:           uuid.NewString(),
			OrgID:        doc.OrgID,
			ChunkID:      c.ID,
			VectorID:     points[i].VectorID,
			IndexName:    uc.cfg.IndexName,
			Namespace:    doc.OrgID,
			ModelName:    uc.cfg.ModelName,
			ModelVersion: uc.cfg.ModelVersion,
			Dim:          len(vectors[i]),
			CreatedAt:    now,
		})
	}
	if err := uc.embeddings.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("persist embedding records: %w", err)
	}
	return nil
}

// cleanupStaleVectors removes index entries for positions the new version no
// longer covers. Re-upload policy is replace: overlapping positions were
// already overwritten by the deterministic vector ids. Best-effort; a
// transient orphan vector is filtered at search time.
func (uc *ProcessDocumentUseCase) cleanupStaleVectors(ctx context.Context, payload domain.IngestPayload, doc *domain.Document, newCount int) {
	prevCount, err := uc.chunks.LatestChunkCount(ctx, doc.ID, payload.VersionID)
	if err != nil {
		uc.logger.Warn("resolve prior chunk count", "document_id", doc.ID, "error", err)
		return
	}
	if prevCount <= newCount {
		return
	}
	stale := make([]string, 0, prevCount-newCount)
	for pos := newCount; pos < prevCount; pos++ {
		stale = append(stale, VectorID(doc.ID, pos))
	}
	if err := uc.index.Delete(ctx, stale, doc.OrgID); err != nil {
		uc.logger.Warn("delete stale vectors", "document_id", doc.ID, "count", len(stale), "error", err)
	}
}

// VectorID is the deterministic external-index key for one chunk, so
// re-ingesting the same document position overwrites instead of duplicating.
func VectorID(documentID string, position int) string {
	return fmt.Sprintf("chunk_%s_%d", documentID, position)
}

// ChunkID is deterministic per (document, version, position). A redelivered
// job mints the same ids it minted before, so chunk upserts land on the rows
// already present and embedding rows keep a valid chunk reference.
func ChunkID(documentID, versionID string, position int) string {
	name := fmt.Sprintf("chunk:%s:%s:%d", documentID, versionID, position)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
