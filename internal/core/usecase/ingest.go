package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	rawBucket       = "raw"
	extractedBucket = "extracted"

	maxUploadBytes = 64 << 20
)

// IngestDocumentUseCase accepts an upload, persists the queued document and
// its raw blob, binds ACL groups, and schedules the processing job. The
// heavy pipeline runs out-of-band in the worker.
type IngestDocumentUseCase struct {
	docs     ports.DocumentRepository
	versions ports.VersionRepository
	files    ports.FileRepository
	acl      ports.ACLRepository
	storage  ports.ObjectStorage
	resolver ports.AccessResolver
	jobs     *JobCoordinator
}

func NewIngestDocumentUseCase(
	docs ports.DocumentRepository,
	versions ports.VersionRepository,
	files ports.FileRepository,
	acl ports.ACLRepository,
	storage ports.ObjectStorage,
	resolver ports.AccessResolver,
	jobs *JobCoordinator,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		docs:     docs,
		versions: versions,
		files:    files,
		acl:      acl,
		storage:  storage,
		resolver: resolver,
		jobs:     jobs,
	}
}

func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*ports.UploadReceipt, error) {
	if err := validateUpload(req); err != nil {
		return nil, err
	}

	raw, contentHash, err := readUploadBody(req.Body)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	docID := uuid.NewString()
	doc := &domain.Document{
		ID:          docID,
		OrgID:       req.OrgID,
		CreatorID:   req.UserID,
		Title:       req.Title,
		FileType:    fileTypeOf(req.Filename, req.MimeType),
		Tags:        normalizeTags(req.Tags),
		Status:      domain.StatusQueued,
		ContentHash: contentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	storageKey := fmt.Sprintf("%s/v1/%s", docID, sanitizeFilename(req.Filename))
	if err := uc.storage.Save(ctx, rawBucket, storageKey, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save raw blob: %w", err)
	}

	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	version := &domain.DocumentVersion{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Version:    1,
		Notes:      req.Notes,
		CreatedAt:  now,
	}
	if err := uc.versions.Create(ctx, version); err != nil {
		return nil, fmt.Errorf("create document version: %w", err)
	}

	if err := uc.files.Create(ctx, &domain.File{
		ID:         uuid.NewString(),
		DocumentID: docID,
		VersionID:  version.ID,
		Bucket:     rawBucket,
		Role:       domain.FileRoleRaw,
		Path:       storageKey,
		MimeType:   req.MimeType,
		SizeBytes:  int64(len(raw)),
		SHA256:     contentHash,
		CreatorID:  req.UserID,
		CreatedAt:  now,
	}); err != nil {
		return nil, fmt.Errorf("create raw file record: %w", err)
	}

	if len(req.ACLGroups) > 0 {
		if err := uc.acl.BindDocumentGroups(ctx, docID, req.ACLGroups); err != nil {
			return nil, fmt.Errorf("bind acl groups: %w", err)
		}
	}

	jobID, err := uc.jobs.Enqueue(ctx, domain.IngestPayload{
		OrgID:      req.OrgID,
		DocumentID: docID,
		VersionID:  version.ID,
		Version:    version.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue ingest job: %w", err)
	}

	return &ports.UploadReceipt{
		DocumentID: docID,
		JobID:      jobID,
		Status:     domain.StatusQueued,
	}, nil
}

// UploadVersion replaces the content of an existing document: a new version
// row at max+1, a fresh raw blob, and a re-queued pipeline run. Overlapping
// chunk positions are overwritten by the deterministic vector ids; surplus
// positions of the prior version are cleaned up after the run succeeds.
func (uc *IngestDocumentUseCase) UploadVersion(ctx context.Context, documentID string, req ports.UploadRequest) (*ports.UploadReceipt, error) {
	if err := validateUpload(req); err != nil {
		return nil, err
	}

	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OrgID != req.OrgID {
		// Cross-org callers must not learn the document exists.
		return nil, domain.WrapError(domain.ErrNotFound, "fetch document",
			fmt.Errorf("document %s not visible to org %s", documentID, req.OrgID))
	}
	if doc.CreatorID != req.UserID {
		ok, err := uc.resolver.HasAccess(ctx, documentID, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("check access: %w", err)
		}
		if !ok {
			return nil, domain.WrapError(domain.ErrAccessDenied, "upload version",
				errors.New("user has no group access to document"))
		}
	}

	raw, contentHash, err := readUploadBody(req.Body)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	next, err := uc.versions.NextVersion(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("resolve next version: %w", err)
	}

	storageKey := fmt.Sprintf("%s/v%d/%s", documentID, next, sanitizeFilename(req.Filename))
	if err := uc.storage.Save(ctx, rawBucket, storageKey, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save raw blob: %w", err)
	}

	version := &domain.DocumentVersion{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Version:    next,
		Notes:      req.Notes,
		CreatedAt:  now,
	}
	if err := uc.versions.Create(ctx, version); err != nil {
		return nil, fmt.Errorf("create document version: %w", err)
	}

	if err := uc.files.Create(ctx, &domain.File{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		VersionID:  version.ID,
		Bucket:     rawBucket,
		Role:       domain.FileRoleRaw,
		Path:       storageKey,
		MimeType:   req.MimeType,
		SizeBytes:  int64(len(raw)),
		SHA256:     contentHash,
		CreatorID:  req.UserID,
		CreatedAt:  now,
	}); err != nil {
		return nil, fmt.Errorf("create raw file record: %w", err)
	}

	if err := uc.docs.UpdateContentHash(ctx, documentID, contentHash); err != nil {
		return nil, fmt.Errorf("update content hash: %w", err)
	}
	if err := uc.docs.UpdateStatus(ctx, documentID, domain.StatusQueued, ""); err != nil {
		return nil, fmt.Errorf("reset status: %w", err)
	}

	jobID, err := uc.jobs.Enqueue(ctx, domain.IngestPayload{
		OrgID:      req.OrgID,
		DocumentID: documentID,
		VersionID:  version.ID,
		Version:    version.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue ingest job: %w", err)
	}

	return &ports.UploadReceipt{
		DocumentID: documentID,
		JobID:      jobID,
		Status:     domain.StatusQueued,
	}, nil
}

func readUploadBody(body io.Reader) ([]byte, string, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxUploadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload body: %w", err)
	}
	if len(raw) == 0 {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "read upload body", errors.New("empty file"))
	}
	if len(raw) > maxUploadBytes {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "read upload body",
			fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
	}
	sum := sha256.Sum256(raw)
	return raw, hex.EncodeToString(sum[:]), nil
}

func validateUpload(req ports.UploadRequest) error {
	switch {
	case strings.TrimSpace(req.OrgID) == "":
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("org id is required"))
	case strings.TrimSpace(req.UserID) == "":
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("user id is required"))
	case strings.TrimSpace(req.Filename) == "":
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("filename is required"))
	case req.Body == nil:
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("file body is required"))
	}
	return nil
}

func fileTypeOf(filename, mimeType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext != "" {
		return ext
	}
	if idx := strings.Index(mimeType, "/"); idx >= 0 && idx+1 < len(mimeType) {
		return mimeType[idx+1:]
	}
	return "bin"
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
