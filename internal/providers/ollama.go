package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docrag/internal/util"
)

const (
	DefaultOllamaBaseURL    = "http://localhost:11434"
	DefaultOllamaEmbedModel = "nomic-embed-text"
)

// OllamaEmbeddingProvider supports local, free embeddings via Ollama.
// Example model: nomic-embed-text (Nomic Embed v1.5 family).
type OllamaEmbeddingProvider struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

func NewOllamaEmbeddingProvider(baseURL, model string, dim int) *OllamaEmbeddingProvider {
	return &OllamaEmbeddingProvider{
		baseURL: strings.TrimRight(nameOr(baseURL, DefaultOllamaBaseURL), "/"),
		model:   resolveOllamaEmbedModel(model),
		dim:     dim,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaEmbeddingProvider) Model() string {
	return fmt.Sprintf("ollama/%s@%d", o.model, o.dim)
}

func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := o.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, matchDimension(vec, o.dim))
	}
	return out, nil
}

func (o *OllamaEmbeddingProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, Tag(fmt.Errorf("ollama embedding request failed: %w", err))
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: ollama embedding error %d: %s", util.ErrTransient, resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: ollama embedding error %d: %s", util.ErrPermanent, resp.StatusCode, string(body))
	}
	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode ollama embedding response: %w", util.ErrTransient, err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned empty embedding", util.ErrTransient)
	}
	return parsed.Embedding, nil
}

func resolveOllamaEmbedModel(model string) string {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "":
		return DefaultOllamaEmbedModel
	case "nomic":
		return "nomic-embed-text"
	case "bge":
		return "bge-small-en-v1.5"
	}
	return strings.TrimSpace(model)
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
