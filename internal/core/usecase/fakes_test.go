package usecase

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type docRepoFake struct {
	docs        map[string]*domain.Document
	created     []*domain.Document
	statusCalls []statusCall
	fileTypes   map[string]string
	hashes      map[string]string
	deleted     []string

	createErr  error
	getErr     error
	getByIDErr error
	statusErr  error
	deleteErr  error
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	m := make(map[string]*domain.Document, len(docs))
	for _, d := range docs {
		m[d.ID] = d
	}
	return &docRepoFake{docs: m, fileTypes: make(map[string]string), hashes: make(map[string]string)}
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, doc)
	f.docs[doc.ID] = doc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch document", io.EOF)
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) GetByIDs(_ context.Context, ids []string) (map[string]*domain.Document, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	out := make(map[string]*domain.Document, len(ids))
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			copyDoc := *doc
			out[id] = &copyDoc
		}
	}
	return out, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if f.statusErr != nil {
		return f.statusErr
	}
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
	}
	return nil
}

func (f *docRepoFake) UpdateContentHash(_ context.Context, id, contentHash string) error {
	f.hashes[id] = contentHash
	if doc, ok := f.docs[id]; ok {
		doc.ContentHash = contentHash
	}
	return nil
}

func (f *docRepoFake) SetFileType(_ context.Context, id, fileType string) error {
	f.fileTypes[id] = fileType
	return nil
}

func (f *docRepoFake) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	delete(f.docs, id)
	return nil
}

type versionRepoFake struct {
	created []*domain.DocumentVersion
	next    int
	err     error
}

func (f *versionRepoFake) Create(_ context.Context, v *domain.DocumentVersion) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, v)
	return nil
}

func (f *versionRepoFake) NextVersion(context.Context, string) (int, error) {
	if f.next == 0 {
		return 1, nil
	}
	return f.next, nil
}

type fileRepoFake struct {
	created []*domain.File
	byRole  map[domain.FileRole]*domain.File
	err     error
}

func (f *fileRepoFake) Create(_ context.Context, file *domain.File) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, file)
	return nil
}

func (f *fileRepoFake) GetByVersionRole(_ context.Context, _ string, role domain.FileRole) (*domain.File, error) {
	file, ok := f.byRole[role]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch file", io.EOF)
	}
	return file, nil
}

type chunkRepoFake struct {
	batches   [][]domain.Chunk
	rows      map[string]*domain.Chunk
	prevCount int
	createErr error
	getErr    error
	countErr  error
}

func (f *chunkRepoFake) CreateBatch(_ context.Context, chunks []domain.Chunk) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.batches = append(f.batches, chunks)
	return nil
}

func (f *chunkRepoFake) GetByIDs(_ context.Context, ids []string) (map[string]*domain.Chunk, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make(map[string]*domain.Chunk, len(ids))
	for _, id := range ids {
		if c, ok := f.rows[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *chunkRepoFake) LatestChunkCount(context.Context, string, string) (int, error) {
	return f.prevCount, f.countErr
}

type embeddingRepoFake struct {
	batches   [][]domain.Embedding
	vectorIDs []string
	createErr error
	listErr   error
}

func (f *embeddingRepoFake) CreateBatch(_ context.Context, embeddings []domain.Embedding) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.batches = append(f.batches, embeddings)
	return nil
}

func (f *embeddingRepoFake) VectorIDsByDocument(context.Context, string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.vectorIDs, nil
}

type aclRepoFake struct {
	userGroups map[string][]string
	docGroups  map[string][]string
	groupDocs  map[string][]string
	docIDs     []string
	bound      map[string][]string

	userErr error
	docsErr error
	bindErr error
}

func newACLRepoFake() *aclRepoFake {
	return &aclRepoFake{
		userGroups: make(map[string][]string),
		docGroups:  make(map[string][]string),
		bound:      make(map[string][]string),
	}
}

func (f *aclRepoFake) GroupIDsForUser(_ context.Context, userID string) ([]string, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.userGroups[userID], nil
}

func (f *aclRepoFake) DocumentIDsForGroups(_ context.Context, groupIDs []string, _ string) ([]string, error) {
	if f.docsErr != nil {
		return nil, f.docsErr
	}
	if f.groupDocs == nil {
		return f.docIDs, nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, g := range groupIDs {
		for _, id := range f.groupDocs[g] {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (f *aclRepoFake) GroupIDsForDocument(_ context.Context, documentID string) ([]string, error) {
	return f.docGroups[documentID], nil
}

func (f *aclRepoFake) BindDocumentGroups(_ context.Context, documentID string, groupIDs []string) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	f.bound[documentID] = groupIDs
	return nil
}

type jobRepoFake struct {
	jobs     map[string]*domain.IngestJob
	running  []string
	finished []finishedCall

	createErr error
	getErr    error
}

type finishedCall struct {
	id        string
	status    domain.JobStatus
	stage     string
	lastError string
}

func newJobRepoFake() *jobRepoFake {
	return &jobRepoFake{jobs: make(map[string]*domain.IngestJob)}
}

func (f *jobRepoFake) Create(_ context.Context, job *domain.IngestJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.jobs[job.ID] = job
	return nil
}

func (f *jobRepoFake) GetByID(_ context.Context, id string) (*domain.IngestJob, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fetch job", io.EOF)
	}
	return job, nil
}

func (f *jobRepoFake) MarkRunning(_ context.Context, id string) error {
	f.running = append(f.running, id)
	return nil
}

func (f *jobRepoFake) MarkFinished(_ context.Context, id string, status domain.JobStatus, stage, lastError string) error {
	f.finished = append(f.finished, finishedCall{id: id, status: status, stage: stage, lastError: lastError})
	return nil
}

type searchLogFake struct {
	logs []*domain.SearchLog
	err  error
}

func (f *searchLogFake) Create(_ context.Context, log *domain.SearchLog) error {
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

type storageFake struct {
	blobs   map[string][]byte
	saveErr error
	openErr error
}

func newStorageFake() *storageFake {
	return &storageFake{blobs: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, bucket, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.blobs[bucket+"/"+key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	raw, ok := f.blobs[bucket+"/"+key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open blob", io.EOF)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, bucket, key string) error {
	delete(f.blobs, bucket+"/"+key)
	return nil
}

type queueFake struct {
	published []domain.IngestPayload
	err       error
}

func (f *queueFake) PublishIngest(_ context.Context, payload domain.IngestPayload) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *queueFake) SubscribeIngest(context.Context, func(context.Context, domain.IngestPayload) error) error {
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, []byte, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type chunkerFake struct {
	pieces []domain.ChunkPiece
	err    error
}

func chunkerFromTexts(texts ...string) *chunkerFake {
	pieces := make([]domain.ChunkPiece, 0, len(texts))
	for i, t := range texts {
		pieces = append(pieces, domain.ChunkPiece{Text: t, Position: i, ContentHash: "hash-" + t})
	}
	return &chunkerFake{pieces: pieces}
}

func (f *chunkerFake) Split(string) ([]domain.ChunkPiece, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pieces, nil
}

type embedderFake struct {
	vectors     [][]float32
	queryVector []float32
	err         error
	queryErr    error
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryVector, nil
}

type indexFake struct {
	upserts   [][]ports.VectorPoint
	deleted   [][]string
	hits      []domain.VectorHit
	lastTopK  int
	upsertErr error
	queryErr  error
	deleteErr error
}

func (f *indexFake) Upsert(_ context.Context, points []ports.VectorPoint, _ string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, points)
	return nil
}

func (f *indexFake) Query(_ context.Context, _ []float32, topK int, _ domain.SearchFilter, _ string) ([]domain.VectorHit, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.lastTopK = topK
	return f.hits, nil
}

func (f *indexFake) Delete(_ context.Context, vectorIDs []string, _ string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, vectorIDs)
	return nil
}

type resolverFake struct {
	groups    []string
	docIDs    []string
	hasAccess bool

	groupsErr error
	docsErr   error
	accessErr error
}

func (f *resolverFake) AccessibleGroupIDs(context.Context, string) ([]string, error) {
	if f.groupsErr != nil {
		return nil, f.groupsErr
	}
	return f.groups, nil
}

func (f *resolverFake) AccessibleDocumentIDs(context.Context, []string, string) ([]string, error) {
	if f.docsErr != nil {
		return nil, f.docsErr
	}
	return f.docIDs, nil
}

func (f *resolverFake) HasAccess(context.Context, string, string) (bool, error) {
	if f.accessErr != nil {
		return false, f.accessErr
	}
	return f.hasAccess, nil
}

func uploadBody(s string) io.Reader { return strings.NewReader(s) }
