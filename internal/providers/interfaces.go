package providers

import "context"

type GenerateRequest struct {
	Operation   string   `json:"operation"`
	System      string   `json:"system,omitempty"`
	Prompt      string   `json:"prompt"`
	Context     []string `json:"context"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type GenerateResponse struct {
	Text     string `json:"text"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// Embedder maps texts to vectors, one per input and in input order. Model
// identifies the vector space; vectors from different models never compare.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	Model() string
}
