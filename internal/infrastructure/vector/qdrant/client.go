package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
)

const DefaultMaxBatchSize = 1000

// Client is the vector-index adapter over qdrant's HTTP API. Namespaces are
// realized as a mandatory org_id payload filter inside one collection.
type Client struct {
	baseURL      string
	collection   string
	maxBatchSize int
	httpClient   *http.Client
	executor     *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, maxBatchSize int, executor *resilience.Executor) *Client {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		collection:   collection,
		maxBatchSize: maxBatchSize,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		executor:     executor,
	}
}

// PointID derives the qdrant point id from the logical vector id. Qdrant
// accepts only uuid or integer ids, so the stable uuid keeps the logical
// id's idempotency: same document position, same point.
func PointID(vectorID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(vectorID)).String()
}

func (c *Client) Upsert(ctx context.Context, points []ports.VectorPoint, namespace string) error {
	if len(points) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(points[0].Vector)); err != nil {
		return err
	}

	upserted := 0
	for start := 0; start < len(points); start += c.maxBatchSize {
		end := start + c.maxBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]
		if err := c.upsertBatch(ctx, batch, namespace); err != nil {
			return err
		}
		upserted += len(batch)
	}
	if upserted != len(points) {
		return domain.WrapError(domain.ErrCountMismatch, "upsert vectors",
			fmt.Errorf("upserted %d of %d points", upserted, len(points)))
	}
	return nil
}

func (c *Client) upsertBatch(ctx context.Context, batch []ports.VectorPoint, namespace string) error {
	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	body := make([]point, 0, len(batch))
	for _, p := range batch {
		body = append(body, point{
			ID:     PointID(p.VectorID),
			Vector: p.Vector,
			Payload: map[string]any{
				"vector_key":  p.VectorID,
				"org_id":      namespace,
				"document_id": p.DocumentID,
				"chunk_id":    p.ChunkID,
				"version":     p.Version,
				"position":    p.Position,
				"file_type":   p.FileType,
				"tags":        p.Tags,
				"acl_groups":  p.ACLGroups,
				"text":        p.Text,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.call(ctx, "vector.upsert", http.MethodPut, path, map[string]any{"points": body}, nil)
}

func (c *Client) Query(
	ctx context.Context,
	vector []float32,
	topK int,
	filter domain.SearchFilter,
	namespace string,
) ([]domain.VectorHit, error) {
	must := []map[string]any{
		{"key": "org_id", "match": map[string]any{"value": namespace}},
	}
	if filter.FileType != "" {
		must = append(must, map[string]any{
			"key": "file_type", "match": map[string]any{"value": filter.FileType},
		})
	}
	if len(filter.Tags) > 0 {
		must = append(must, map[string]any{
			"key": "tags", "match": map[string]any{"any": filter.Tags},
		})
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter":       map[string]any{"must": must},
	}

	var decoded struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.call(ctx, "vector.query", http.MethodPost, path, reqBody, &decoded); err != nil {
		return nil, err
	}

	hits := make([]domain.VectorHit, 0, len(decoded.Result))
	for _, r := range decoded.Result {
		hits = append(hits, domain.VectorHit{
			VectorID:   payloadString(r.Payload, "vector_key"),
			DocumentID: payloadString(r.Payload, "document_id"),
			ChunkID:    payloadString(r.Payload, "chunk_id"),
			Position:   payloadInt(r.Payload, "position"),
			Score:      r.Score,
			Text:       payloadString(r.Payload, "text"),
		})
	}
	return hits, nil
}

func (c *Client) Delete(ctx context.Context, vectorIDs []string, _ string) error {
	if len(vectorIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(vectorIDs))
	for _, id := range vectorIDs {
		ids = append(ids, PointID(id))
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	return c.call(ctx, "vector.delete", http.MethodPost, path, map[string]any{"points": ids}, nil)
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	err := c.call(ctx, "vector.ensure_collection", http.MethodPut,
		fmt.Sprintf("/collections/%s", c.collection), reqBody, nil)
	if err != nil && !strings.Contains(err.Error(), "409") {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, reqBody any, out any) error {
	fn := func(ctx context.Context) error {
		return c.do(ctx, method, path, reqBody, out)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, fn, classifyQdrantError)
	} else {
		err = fn(ctx)
	}
	if err != nil && classifyQdrantError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(detail)); msg != "" {
			return fmt.Errorf("qdrant status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("qdrant status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func classifyQdrantError(err error) resilience.Outcome {
	if err == nil {
		return resilience.Outcome{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Outcome{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Outcome{Retryable: true, RecordFailure: true}
	}
	msg := err.Error()
	if strings.Contains(msg, "status 5") || strings.Contains(msg, "status 429") {
		return resilience.Outcome{Retryable: true, RecordFailure: true}
	}
	return resilience.Outcome{RecordFailure: true}
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadInt(payload map[string]any, key string) int {
	if v, ok := payload[key].(float64); ok {
		return int(v)
	}
	return 0
}
