package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
	"github.com/kirillkom/docvault/internal/observability/metrics"
)

const (
	userIDHeader = "X-User-Id"
	orgIDHeader  = "X-Org-Id"

	backpressureWait = 2 * time.Second
)

type RouterConfig struct {
	ServiceName    string
	RateLimitRPS   int
	RateLimitBurst int
	MaxInFlight    int
}

type Router struct {
	ingestor ports.DocumentIngestor
	reader   ports.DocumentReader
	remover  ports.DocumentRemover
	searcher ports.SearchService
	jobs     ports.JobStatusReader

	metrics *metrics.HTTPServerMetrics
	cfg     RouterConfig
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
	remover ports.DocumentRemover,
	searcher ports.SearchService,
	jobs ports.JobStatusReader,
	httpMetrics *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "api"
	}
	return &Router{
		ingestor: ingestor,
		reader:   reader,
		remover:  remover,
		searcher: searcher,
		jobs:     jobs,
		metrics:  httpMetrics,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.documentByID)
	mux.HandleFunc("/v1/jobs/", rt.jobByID)
	mux.HandleFunc("/v1/search", rt.search)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	userID, orgID, ok := identityFrom(w, r)
	if !ok {
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	receipt, err := rt.ingestor.Upload(r.Context(), ports.UploadRequest{
		OrgID:     orgID,
		UserID:    userID,
		Title:     r.FormValue("title"),
		Filename:  fileHeader.Filename,
		MimeType:  fileHeader.Header.Get("Content-Type"),
		Tags:      splitCSV(r.FormValue("tags")),
		ACLGroups: splitCSV(r.FormValue("acl_groups")),
		Notes:     r.FormValue("notes"),
		Body:      file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(rt.cfg.ServiceName)
	}

	writeJSON(w, http.StatusAccepted, receipt)
}

func (rt *Router) documentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if docID, isVersions := strings.CutSuffix(id, "/versions"); isVersions {
		rt.uploadVersion(w, r, docID)
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	userID, _, ok := identityFrom(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := rt.reader.GetByID(r.Context(), userID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := rt.remover.Delete(r.Context(), userID, id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadVersion(w http.ResponseWriter, r *http.Request, docID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if docID == "" || strings.Contains(docID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	userID, orgID, ok := identityFrom(w, r)
	if !ok {
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	receipt, err := rt.ingestor.UploadVersion(r.Context(), docID, ports.UploadRequest{
		OrgID:    orgID,
		UserID:   userID,
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Notes:    r.FormValue("notes"),
		Body:     file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(rt.cfg.ServiceName)
	}

	writeJSON(w, http.StatusAccepted, receipt)
}

type jobResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Version    int    `json:"version"`
	State      string `json:"state"`
	Stage      string `json:"stage,omitempty"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
}

func (rt *Router) jobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	job, err := rt.jobs.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		ID:         job.ID,
		DocumentID: job.DocumentID,
		Version:    job.Version,
		State:      jobState(job.Status),
		Stage:      job.Stage,
		Attempts:   job.Attempts,
		LastError:  job.LastError,
	})
}

// jobState translates internal queue statuses into the polling vocabulary
// the API promises to clients.
func jobState(status domain.JobStatus) string {
	switch status {
	case domain.JobQueued:
		return "waiting"
	case domain.JobRunning:
		return "active"
	case domain.JobSucceeded:
		return "completed"
	case domain.JobFailed:
		return "failed"
	default:
		return string(status)
	}
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	userID, orgID, ok := identityFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Query  string              `json:"query"`
		TopK   int                 `json:"top_k"`
		Filter domain.SearchFilter `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	resp, err := rt.searcher.Search(r.Context(), userID, orgID, req.Query, req.TopK, req.Filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.cfg.ServiceName, resp.Total, time.Since(start))
	}

	writeJSON(w, http.StatusOK, resp)
}

func identityFrom(w http.ResponseWriter, r *http.Request) (userID, orgID string, ok bool) {
	userID = strings.TrimSpace(r.Header.Get(userIDHeader))
	orgID = strings.TrimSpace(r.Header.Get(orgIDHeader))
	if userID == "" || orgID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-User-Id and X-Org-Id headers are required",
		})
		return "", "", false
	}
	return userID, orgID, true
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
