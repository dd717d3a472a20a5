package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docvault/internal/core/domain"
)

func TestGetByIDCreatorBypassesGroupCheck(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", CreatorID: "user-1", Status: domain.StatusReady}
	uc := NewDocumentReadUseCase(newDocRepoFake(doc), &resolverFake{hasAccess: false})

	got, err := uc.GetByID(context.Background(), "user-1", "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ID != "doc-1" {
		t.Fatalf("unexpected document %+v", got)
	}
}

func TestGetByIDDeniesWithoutGroupAccess(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", CreatorID: "owner", Status: domain.StatusReady}
	uc := NewDocumentReadUseCase(newDocRepoFake(doc), &resolverFake{hasAccess: false})

	if _, err := uc.GetByID(context.Background(), "stranger", "doc-1"); !domain.IsKind(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestGetByIDAllowsGroupMember(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", CreatorID: "owner", Status: domain.StatusReady}
	uc := NewDocumentReadUseCase(newDocRepoFake(doc), &resolverFake{hasAccess: true})

	if _, err := uc.GetByID(context.Background(), "member", "doc-1"); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
}

func TestDeleteRemovesRowsAndVectors(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", OrgID: "org-1", CreatorID: "user-1"}
	docs := newDocRepoFake(doc)
	embeddings := &embeddingRepoFake{vectorIDs: []string{"chunk_doc-1_0", "chunk_doc-1_1"}}
	index := &indexFake{}
	uc := NewDeleteDocumentUseCase(docs, embeddings, &resolverFake{}, index, testLogger())

	if err := uc.Delete(context.Background(), "user-1", "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(docs.deleted) != 1 || docs.deleted[0] != "doc-1" {
		t.Fatalf("expected relational delete, got %v", docs.deleted)
	}
	if len(index.deleted) != 1 || len(index.deleted[0]) != 2 {
		t.Fatalf("expected 2 vectors deleted, got %+v", index.deleted)
	}
}

func TestDeleteIndexFailureIsNotFatal(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", OrgID: "org-1", CreatorID: "user-1"}
	docs := newDocRepoFake(doc)
	embeddings := &embeddingRepoFake{vectorIDs: []string{"chunk_doc-1_0"}}
	index := &indexFake{deleteErr: errors.New("qdrant down")}
	uc := NewDeleteDocumentUseCase(docs, embeddings, &resolverFake{}, index, testLogger())

	if err := uc.Delete(context.Background(), "user-1", "doc-1"); err != nil {
		t.Fatalf("index cleanup failure must not block delete: %v", err)
	}
	if len(docs.deleted) != 1 {
		t.Fatal("expected relational delete despite index failure")
	}
}

func TestDeleteDeniedForStranger(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", OrgID: "org-1", CreatorID: "owner"}
	docs := newDocRepoFake(doc)
	uc := NewDeleteDocumentUseCase(docs, &embeddingRepoFake{}, &resolverFake{hasAccess: false}, &indexFake{}, testLogger())

	if err := uc.Delete(context.Background(), "stranger", "doc-1"); !domain.IsKind(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if len(docs.deleted) != 0 {
		t.Fatal("denied delete must not remove rows")
	}
}
