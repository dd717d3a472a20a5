package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

type ingestFixture struct {
	docs     *docRepoFake
	versions *versionRepoFake
	files    *fileRepoFake
	acl      *aclRepoFake
	storage  *storageFake
	resolver *resolverFake
	jobRepo  *jobRepoFake
	queue    *queueFake
	uc       *IngestDocumentUseCase
}

func newIngestFixture(docs ...*domain.Document) *ingestFixture {
	f := &ingestFixture{
		docs:     newDocRepoFake(docs...),
		versions: &versionRepoFake{},
		files:    &fileRepoFake{},
		acl:      newACLRepoFake(),
		storage:  newStorageFake(),
		resolver: &resolverFake{},
		jobRepo:  newJobRepoFake(),
		queue:    &queueFake{},
	}
	jobs := NewJobCoordinator(f.jobRepo, f.queue, testLogger())
	f.uc = NewIngestDocumentUseCase(f.docs, f.versions, f.files, f.acl, f.storage, f.resolver, jobs)
	return f
}

func validUpload() ports.UploadRequest {
	return ports.UploadRequest{
		OrgID:     "org-1",
		UserID:    "user-1",
		Title:     "quarterly report",
		Filename:  "report q3.pdf",
		MimeType:  "application/pdf",
		Tags:      []string{" finance ", "", "2026"},
		ACLGroups: []string{"grp-1", "grp-2"},
		Body:      uploadBody("%PDF-1.4 fake body"),
	}
}

func TestUploadHappyPath(t *testing.T) {
	f := newIngestFixture()

	receipt, err := f.uc.Upload(context.Background(), validUpload())
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if receipt.DocumentID == "" || receipt.JobID == "" {
		t.Fatalf("expected populated receipt, got %+v", receipt)
	}
	if receipt.Status != domain.StatusQueued {
		t.Fatalf("expected queued status, got %s", receipt.Status)
	}

	if len(f.docs.created) != 1 {
		t.Fatalf("expected one document, got %d", len(f.docs.created))
	}
	doc := f.docs.created[0]
	if doc.FileType != "pdf" {
		t.Fatalf("expected file type pdf, got %q", doc.FileType)
	}
	if len(doc.Tags) != 2 {
		t.Fatalf("expected blank tags dropped, got %v", doc.Tags)
	}
	if doc.ContentHash == "" {
		t.Fatal("expected content hash")
	}

	if len(f.versions.created) != 1 || f.versions.created[0].Version != 1 {
		t.Fatalf("expected version 1 row, got %+v", f.versions.created)
	}
	if len(f.files.created) != 1 || f.files.created[0].Role != domain.FileRoleRaw {
		t.Fatalf("expected raw file record, got %+v", f.files.created)
	}
	if strings.Contains(f.files.created[0].Path, " ") {
		t.Fatalf("expected sanitized storage key, got %q", f.files.created[0].Path)
	}

	if got := f.acl.bound[doc.ID]; len(got) != 2 {
		t.Fatalf("expected acl binding, got %v", got)
	}

	if len(f.queue.published) != 1 {
		t.Fatalf("expected one published job, got %d", len(f.queue.published))
	}
	payload := f.queue.published[0]
	if payload.DocumentID != doc.ID || payload.JobID != receipt.JobID {
		t.Fatalf("payload does not match receipt: %+v", payload)
	}
	if payload.DedupKey() != "ingest:"+doc.ID+":"+payload.VersionID {
		t.Fatalf("unexpected dedup key %q", payload.DedupKey())
	}
}

func TestUploadRejectsMissingFields(t *testing.T) {
	f := newIngestFixture()

	cases := map[string]ports.UploadRequest{
		"missing org":      {UserID: "u", Filename: "a.txt", Body: uploadBody("x")},
		"missing user":     {OrgID: "o", Filename: "a.txt", Body: uploadBody("x")},
		"missing filename": {OrgID: "o", UserID: "u", Body: uploadBody("x")},
		"missing body":     {OrgID: "o", UserID: "u", Filename: "a.txt"},
	}
	for name, req := range cases {
		if _, err := f.uc.Upload(context.Background(), req); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	f := newIngestFixture()
	req := validUpload()
	req.Body = uploadBody("")

	if _, err := f.uc.Upload(context.Background(), req); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty file, got %v", err)
	}
	if len(f.docs.created) != 0 {
		t.Fatal("no document may be created for an empty upload")
	}
}

func TestUploadVersionIncrementsVersion(t *testing.T) {
	f := newIngestFixture(&domain.Document{
		ID:        "doc-1",
		OrgID:     "org-1",
		CreatorID: "user-1",
		Status:    domain.StatusReady,
	})
	f.versions.next = 4

	receipt, err := f.uc.UploadVersion(context.Background(), "doc-1", validUpload())
	if err != nil {
		t.Fatalf("UploadVersion() error = %v", err)
	}
	if receipt.DocumentID != "doc-1" || receipt.Status != domain.StatusQueued {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	if len(f.versions.created) != 1 || f.versions.created[0].Version != 4 {
		t.Fatalf("expected version 4 row, got %+v", f.versions.created)
	}
	if len(f.files.created) != 1 || !strings.Contains(f.files.created[0].Path, "doc-1/v4/") {
		t.Fatalf("expected v4 storage key, got %+v", f.files.created)
	}

	if f.docs.hashes["doc-1"] == "" {
		t.Fatal("expected content hash refreshed on re-upload")
	}
	if last := f.docs.statusCalls[len(f.docs.statusCalls)-1]; last.status != domain.StatusQueued {
		t.Fatalf("expected status reset to queued, got %+v", last)
	}

	if len(f.queue.published) != 1 {
		t.Fatalf("expected one published job, got %d", len(f.queue.published))
	}
	payload := f.queue.published[0]
	if payload.Version != 4 || payload.VersionID != f.versions.created[0].ID {
		t.Fatalf("payload does not reference the new version: %+v", payload)
	}
}

func TestUploadVersionDeniedWithoutSharedGroup(t *testing.T) {
	f := newIngestFixture(&domain.Document{
		ID:        "doc-1",
		OrgID:     "org-1",
		CreatorID: "someone-else",
		Status:    domain.StatusReady,
	})

	_, err := f.uc.UploadVersion(context.Background(), "doc-1", validUpload())
	if !domain.IsKind(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if len(f.versions.created) != 0 || len(f.queue.published) != 0 {
		t.Fatal("denied re-upload must not create versions or publish jobs")
	}
}

func TestUploadVersionHidesCrossOrgDocuments(t *testing.T) {
	f := newIngestFixture(&domain.Document{
		ID:        "doc-1",
		OrgID:     "org-2",
		CreatorID: "user-1",
		Status:    domain.StatusReady,
	})

	if _, err := f.uc.UploadVersion(context.Background(), "doc-1", validUpload()); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-org document, got %v", err)
	}
}

func TestUploadVersionUnknownDocument(t *testing.T) {
	f := newIngestFixture()

	if _, err := f.uc.UploadVersion(context.Background(), "missing", validUpload()); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadPublishFailureMarksJobFailed(t *testing.T) {
	f := newIngestFixture()
	f.queue.err = domain.ErrTemporary

	if _, err := f.uc.Upload(context.Background(), validUpload()); err == nil {
		t.Fatal("expected error when publish fails")
	}
	if len(f.jobRepo.finished) != 1 || f.jobRepo.finished[0].status != domain.JobFailed {
		t.Fatalf("expected job marked failed, got %+v", f.jobRepo.finished)
	}
}
