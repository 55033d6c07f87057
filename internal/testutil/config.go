package testutil

import (
	"time"

	"docrag/internal/config"
	"docrag/internal/retry"
)

// Config is an offline configuration: memory backends, mock providers and
// fast retries. Chunks are small so fixture documents yield several.
func Config() config.Config {
	return config.Config{
		PublicBaseURL: "http://docrag.test",
		Blob:          config.BlobConfig{Backend: "memory", URLTTL: time.Hour},
		Vector:        config.VectorConfig{Backend: "memory", UpsertBatch: 2},
		Chunk:         config.ChunkConfig{Size: 80, Overlap: 10, BoundaryWindow: 30},
		Extract:       config.ExtractConfig{MinTextChars: 20},
		Embed:         config.EmbedConfig{Provider: "mock", Dim: 256, BatchSize: 2, Parallelism: 2},
		LLM:           config.LLMConfig{Providers: "mock", MaxTokens: 200},
		Retrieval: config.RetrievalConfig{
			DefaultTopK:     4,
			MaxTopK:         8,
			Rerank:          true,
			RerankOverfetch: 2,
			RerankWeight:    0.3,
		},
		Answer: config.AnswerConfig{ContextTokens: 2000, TokenEncoding: "cl100k_base"},
		Ingest: config.IngestConfig{MaxChildren: 2, ActivityTimeout: time.Minute, MaxUploadBytes: 1 << 20},
		Retry: retry.RetryConfig{
			Attempts: 2,
			Delay:    time.Millisecond,
			MaxDelay: 5 * time.Millisecond,
			Timeout:  5 * time.Second,
		},
	}
}
