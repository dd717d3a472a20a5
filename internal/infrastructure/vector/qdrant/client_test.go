package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

func TestPointIDIsDeterministic(t *testing.T) {
	a := PointID("chunk_doc-1_0")
	b := PointID("chunk_doc-1_0")
	c := PointID("chunk_doc-1_1")

	if a != b {
		t.Fatalf("same logical id must map to same point id: %q vs %q", a, b)
	}
	if a == c {
		t.Fatal("different logical ids must not collide")
	}
	if len(a) != 36 {
		t.Fatalf("expected uuid-shaped point id, got %q", a)
	}
}

func TestUpsertSplitsIntoBatches(t *testing.T) {
	var upsertCalls int
	var pointsSeen int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/collections/documents") {
			w.WriteHeader(http.StatusOK)
			return
		}
		if strings.Contains(r.URL.Path, "/points") {
			var req struct {
				Points []struct {
					ID      string         `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode upsert: %v", err)
			}
			upsertCalls++
			pointsSeen += len(req.Points)
			for _, p := range req.Points {
				if p.Payload["org_id"] != "org-1" {
					t.Fatalf("expected org_id payload on every point, got %v", p.Payload["org_id"])
				}
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	client := New(server.URL, "documents", 2, nil)

	points := make([]ports.VectorPoint, 5)
	for i := range points {
		points[i] = ports.VectorPoint{
			VectorID: PointID("seed") + string(rune('a'+i)),
			Vector:   []float32{0.1, 0.2},
		}
	}

	if err := client.Upsert(context.Background(), points, "org-1"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if upsertCalls != 3 {
		t.Fatalf("expected 3 batches for 5 points with batch size 2, got %d", upsertCalls)
	}
	if pointsSeen != 5 {
		t.Fatalf("expected all 5 points upserted, got %d", pointsSeen)
	}
}

func TestQueryBuildsNamespaceFilterAndMapsHits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/points/search") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Limit  int `json:"limit"`
			Filter struct {
				Must []map[string]any `json:"must"`
			} `json:"filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode search: %v", err)
		}
		if req.Limit != 20 {
			t.Fatalf("expected limit 20, got %d", req.Limit)
		}
		if len(req.Filter.Must) != 3 {
			t.Fatalf("expected org + file_type + tags conditions, got %d", len(req.Filter.Must))
		}
		if req.Filter.Must[0]["key"] != "org_id" {
			t.Fatalf("namespace filter must come first, got %v", req.Filter.Must[0])
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"score": 0.91,
					"payload": map[string]any{
						"vector_key":  "chunk_doc-1_3",
						"document_id": "doc-1",
						"chunk_id":    "chunk-7",
						"position":    3,
						"text":        "hello",
					},
				},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "documents", 0, nil)

	hits, err := client.Query(context.Background(), []float32{0.5}, 20, domain.SearchFilter{
		FileType: "pdf",
		Tags:     []string{"finance"},
	}, "org-1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	h := hits[0]
	if h.VectorID != "chunk_doc-1_3" || h.DocumentID != "doc-1" || h.Position != 3 {
		t.Fatalf("unexpected hit mapping: %+v", h)
	}
}

func TestQueryServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "documents", 0, nil)
	_, err := client.Query(context.Background(), []float32{0.5}, 10, domain.SearchFilter{}, "org-1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary for 503, got %v", err)
	}
}

func TestDeleteMapsLogicalIDsToPointIDs(t *testing.T) {
	var gotIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/points/delete") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Points []string `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode delete: %v", err)
		}
		gotIDs = req.Points
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "documents", 0, nil)
	if err := client.Delete(context.Background(), []string{"chunk_doc-1_0", "chunk_doc-1_1"}, "org-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(gotIDs) != 2 {
		t.Fatalf("expected 2 point ids, got %v", gotIDs)
	}
	if gotIDs[0] != PointID("chunk_doc-1_0") {
		t.Fatalf("expected derived point id, got %q", gotIDs[0])
	}
}
