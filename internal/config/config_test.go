package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.Chunk.Size)
	require.Equal(t, 200, cfg.Chunk.Overlap)
	require.Equal(t, 10, cfg.Retrieval.DefaultTopK)
	require.Equal(t, "docrag", cfg.Temporal.TaskQueue)
	require.Equal(t, uint(3), cfg.Retry.Attempts)
	require.Equal(t, 30*time.Second, cfg.Retry.Timeout)
}

func TestLoadReadsPrefixedGroups(t *testing.T) {
	t.Setenv("DOCRAG_CHUNK_SIZE", "500")
	t.Setenv("DOCRAG_CHUNK_OVERLAP", "50")
	t.Setenv("DOCRAG_VECTOR_BACKEND", "qdrant")
	t.Setenv("DOCRAG_RETRY_MAX_DELAY", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 500, cfg.Chunk.Size)
	require.Equal(t, 50, cfg.Chunk.Overlap)
	require.Equal(t, "qdrant", cfg.Vector.Backend)
	require.Equal(t, 3*time.Second, cfg.Retry.MaxDelay)
}

func TestLoadRejectsOverlapNotBelowSize(t *testing.T) {
	t.Setenv("DOCRAG_CHUNK_SIZE", "100")
	t.Setenv("DOCRAG_CHUNK_OVERLAP", "100")

	_, err := Load()
	require.ErrorContains(t, err, "chunk overlap")
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Blob.Backend = "ftp"
	cfg.Vector.Backend = "faiss"
	err = cfg.Validate()
	require.ErrorContains(t, err, "unknown blob backend")
	require.ErrorContains(t, err, "unknown vector backend")
}
