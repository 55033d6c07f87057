package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// QdrantIndex is a minimal REST client to Qdrant using cosine distance.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection with the given dimension if it
// does not exist yet and indexes the payload fields used by filters.
func (s *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("qdrant: invalid dimension %d", dimension)
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	for _, field := range []string{"document_id", "embedding_model"} {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), idx, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, len(points))
	for i, p := range points {
		body[i] = map[string]any{
			"id":     PointID(p.DocumentID, p.Ordinal),
			"vector": p.Vector,
			"payload": map[string]any{
				"document_id":     p.DocumentID,
				"ordinal":         p.Ordinal,
				"text":            p.Text,
				"start_offset":    p.Start,
				"end_offset":      p.End,
				"embedding_model": p.Model,
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": body}, nil)
	return err
}

func (s *QdrantIndex) Delete(ctx context.Context, f Filter) error {
	if len(f.DocumentIDs) == 0 {
		return errNoDocuments("qdrant delete")
	}
	_, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"filter": qdrantFilter(f)}, nil)
	return err
}

func (s *QdrantIndex) Query(ctx context.Context, vec []float32, topK int, f Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	req := map[string]any{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
	}
	if filter := qdrantFilter(f); filter != nil {
		req["filter"] = filter
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				DocumentID     string `json:"document_id"`
				Ordinal        int    `json:"ordinal"`
				Text           string `json:"text"`
				StartOffset    int    `json:"start_offset"`
				EndOffset      int    `json:"end_offset"`
				EmbeddingModel string `json:"embedding_model"`
			} `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, Match{
			DocumentID: r.Payload.DocumentID,
			Ordinal:    r.Payload.Ordinal,
			Text:       r.Payload.Text,
			Start:      r.Payload.StartOffset,
			End:        r.Payload.EndOffset,
			Model:      r.Payload.EmbeddingModel,
			Score:      r.Score,
		})
	}
	SortMatches(out)
	return out, nil
}

func qdrantFilter(f Filter) map[string]any {
	var must []map[string]any
	if len(f.DocumentIDs) > 0 {
		must = append(must, map[string]any{"key": "document_id", "match": map[string]any{"any": f.DocumentIDs}})
	}
	if f.Model != "" {
		must = append(must, map[string]any{"key": "embedding_model", "match": map[string]any{"value": f.Model}})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func (s *QdrantIndex) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *QdrantIndex) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("qdrant encode %s: %w", url, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return 0, fmt.Errorf("qdrant build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant decode %s: %w", url, err)
		}
	}
	return resp.StatusCode, nil
}
