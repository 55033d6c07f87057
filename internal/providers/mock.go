package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"docrag/internal/util"
)

// MockProvider is deterministic and offline. Embeddings hash each term into
// a fixed bucket, so texts sharing words score higher than unrelated ones.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Model() string {
	return fmt.Sprintf("mock-embed-%d", m.dim)
}

func (m *MockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, 0, len(texts))
	for _, input := range texts {
		vectors = append(vectors, deterministicVector(input, m.dim))
	}
	return vectors, nil
}

func (m *MockProvider) Chat() Generator { return mockChat{} }

type mockChat struct{}

func (mockChat) Model() string { return "mock-llm-v1" }

func (mockChat) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return GenerateResponse{}, err
	}
	b := strings.Builder{}
	b.WriteString("Deterministic answer based on the supplied excerpts.")
	for i := range req.Context {
		b.WriteString(" [C")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("]")
	}
	return GenerateResponse{Text: b.String(), Model: "mock-llm-v1", Provider: "mock"}, nil
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	terms := util.Terms(input)
	if len(terms) == 0 {
		seed := []byte(input)
		if len(seed) == 0 {
			seed = []byte("empty")
		}
		for i := 0; i < dim; i++ {
			h := sha256.Sum256(append(seed, byte(i%251)))
			u := binary.BigEndian.Uint32(h[:4])
			vec[i] = float32(u%2000)/1000.0 - 1.0
		}
		return normalize(vec)
	}
	for _, term := range terms {
		h := sha256.Sum256([]byte(term))
		vec[binary.BigEndian.Uint32(h[:4])%uint32(dim)] += 1
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
