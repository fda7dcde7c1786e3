package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

// Client keeps one qdrant collection per partition so public and secure
// chunks can never appear in the same search result set.
type Client struct {
	baseURL          string
	collectionPrefix string
	httpClient       *http.Client

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL, collectionPrefix string) *Client {
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		collectionPrefix: collectionPrefix,
		httpClient:       &http.Client{Timeout: 60 * time.Second},
		ensured:          make(map[string]int),
	}
}

func (c *Client) collectionFor(partition domain.Partition) string {
	return c.collectionPrefix + "_" + string(partition)
}

func (c *Client) IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if !doc.Partition.Valid() {
		return fmt.Errorf("document %s has no partition", doc.ID)
	}

	collection := c.collectionFor(doc.Partition)
	if err := c.ensureCollection(ctx, collection, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i := range chunks {
		points = append(points, point{
			ID: uuid.NewString(),
			Vector: map[string]any{
				"dense":   vectors[i],
				"lexical": encodeSparseDocument(chunks[i], doc.Filename),
			},
			Payload: map[string]any{
				"doc_id":    doc.ID,
				"source":    doc.Filename,
				"partition": string(doc.Partition),
				"category":  doc.Category,
				"type":      "text",
				// Plain-text extraction loses page boundaries, so page is
				// the 1-based chunk ordinal within the document.
				"page": i + 1,
				"text": chunks[i],
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	return c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert")
}

func (c *Client) Search(ctx context.Context, partition domain.Partition, queryVector []float32, limit int) ([]domain.Chunk, error) {
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   "dense",
			"vector": queryVector,
		},
		"limit":        limit,
		"with_payload": true,
	}
	return c.searchPoints(ctx, partition, reqBody)
}

func (c *Client) SearchLexical(ctx context.Context, partition domain.Partition, query string, limit int) ([]domain.Chunk, error) {
	sparse := encodeSparseQuery(query)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   "lexical",
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
	}
	return c.searchPoints(ctx, partition, reqBody)
}

func (c *Client) searchPoints(ctx context.Context, partition domain.Partition, reqBody map[string]any) ([]domain.Chunk, error) {
	if !partition.Valid() {
		return nil, fmt.Errorf("unknown partition %q", partition)
	}

	collection := c.collectionFor(partition)
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.Chunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Chunk{
			Content: getStringPayload(r.Payload, "text"),
			Metadata: domain.ChunkMetadata{
				Source:    getStringPayload(r.Payload, "source"),
				Page:      getIntPayload(r.Payload, "page"),
				DocID:     getStringPayload(r.Payload, "doc_id"),
				Partition: domain.Partition(getStringPayload(r.Payload, "partition")),
				Type:      getStringPayload(r.Payload, "type"),
			},
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"dense": map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			"lexical": map[string]any{},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	if err := c.do(ctx, http.MethodPut, url, reqBody, nil, "ensure collection"); err != nil {
		// 409 means the collection already exists.
		var se *statusError
		if !errors.As(err, &se) || se.code != http.StatusConflict {
			return err
		}
	}

	c.ensureMu.Lock()
	c.ensured[collection] = vectorSize
	c.ensureMu.Unlock()
	return nil
}

type statusError struct {
	operation string
	code      int
	status    string
	body      string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, e.body)
}

func (c *Client) do(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			operation: operation,
			code:      resp.StatusCode,
			status:    resp.Status,
			body:      strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
