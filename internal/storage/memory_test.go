package storage

import (
	"context"
	"testing"

	"docrag/internal/models"
	"docrag/internal/util"

	"github.com/stretchr/testify/require"
)

func TestMemoryDocumentStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDocumentStore()

	d, err := s.Register(ctx, models.Document{DocumentID: "d1", Filename: "a.pdf", Locator: "mem://a"})
	require.NoError(t, err)
	require.Equal(t, models.StatusUploaded, d.Status)

	require.NoError(t, s.UpdateStatus(ctx, "d1", models.StatusExtracting))
	require.NoError(t, s.UpdateStatus(ctx, "d1", models.StatusExtracting), "re-applying is idempotent")
	require.ErrorIs(t, s.UpdateStatus(ctx, "d1", models.StatusIndexed), util.ErrInvalidTransition)
	require.NoError(t, s.UpdateStatus(ctx, "d1", models.StatusChunked))
	require.NoError(t, s.MarkIndexed(ctx, "d1", IndexedInfo{EmbeddingModel: "m1", ChunkCount: 4, ExtractionStrategy: models.StrategyTextLayer}))

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, models.StatusIndexed, got.Status)
	require.Equal(t, "m1", got.EmbeddingModel)
	require.Equal(t, 4, got.ChunkCount)

	require.ErrorIs(t, s.MarkFailed(ctx, "d1", util.TypeIndexError, "late"), util.ErrInvalidTransition)

	again, err := s.Register(ctx, models.Document{DocumentID: "d1", Filename: "a2.pdf", Locator: "mem://a2"})
	require.NoError(t, err)
	require.Equal(t, models.StatusUploaded, again.Status)
	require.Equal(t, got.CreatedAt, again.CreatedAt)
	require.Equal(t, "a2.pdf", again.Filename)
}

func TestMemoryDocumentStoreFailedReingestClearsModel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDocumentStore()
	_, err := s.Register(ctx, models.Document{DocumentID: "d1", Filename: "a.pdf", Locator: "mem://a"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, "d1", models.StatusExtracting))
	require.NoError(t, s.UpdateStatus(ctx, "d1", models.StatusChunked))
	require.NoError(t, s.MarkIndexed(ctx, "d1", IndexedInfo{EmbeddingModel: "m1", ChunkCount: 3}))

	again, err := s.Register(ctx, models.Document{DocumentID: "d1", Filename: "a.pdf", Locator: "mem://a"})
	require.NoError(t, err)
	require.Equal(t, "m1", again.EmbeddingModel, "vectors stay in place until the new run replaces them")

	require.NoError(t, s.MarkFailed(ctx, "d1", util.TypeEmbeddingFailure, "provider down"))
	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Empty(t, got.EmbeddingModel)
	require.Zero(t, got.ChunkCount)
}

func TestMemoryDocumentStoreFailureAndQueries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDocumentStore()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Register(ctx, models.Document{DocumentID: id, Filename: id + ".pdf", Locator: "mem://" + id})
		require.NoError(t, err)
	}
	require.NoError(t, s.MarkFailed(ctx, "a", util.TypeNoExtractableText, "scanned\x00 pages"))
	for _, st := range []models.DocumentStatus{models.StatusExtracting, models.StatusChunked} {
		require.NoError(t, s.UpdateStatus(ctx, "b", st))
	}
	require.NoError(t, s.MarkIndexed(ctx, "b", IndexedInfo{EmbeddingModel: "old"}))

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "scanned pages", a.ErrorDetail)
	require.Equal(t, util.TypeNoExtractableText, a.ErrorType)

	failed, err := s.List(ctx, ListFilter{Status: models.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)

	stale, err := s.List(ctx, ListFilter{Status: models.StatusIndexed, StaleModel: "new"})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "b", stale[0].DocumentID)

	many, err := s.GetMany(ctx, []string{"a", "zzz"})
	require.NoError(t, err)
	require.Len(t, many, 1)

	_, err = s.Get(ctx, "zzz")
	require.ErrorIs(t, err, util.ErrNotFound)
	require.ErrorIs(t, s.UpdateStatus(ctx, "zzz", models.StatusExtracting), util.ErrNotFound)
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@h:5432/db", migrateURL("postgres://u:p@h:5432/db"))
	require.Equal(t, "pgx5://h/db", migrateURL("postgresql://h/db"))
	require.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
