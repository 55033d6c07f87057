package storage

import (
	"context"

	"docrag/internal/models"
)

type IndexedInfo struct {
	EmbeddingModel     string
	ChunkCount         int
	ExtractionStrategy models.ExtractionStrategy
}

type ListFilter struct {
	Status models.DocumentStatus
	// StaleModel selects documents whose embedding model differs from it.
	StaleModel string
	Limit      int
}

// DocumentStore persists document metadata and the ingestion state machine.
// Status changes that break models.CanTransition fail with
// util.ErrInvalidTransition; unknown ids fail with util.ErrNotFound.
type DocumentStore interface {
	// Register creates the document or resets an existing one to uploaded
	// for full re-ingestion, clearing error fields.
	Register(ctx context.Context, doc models.Document) (models.Document, error)
	UpdateStatus(ctx context.Context, documentID string, to models.DocumentStatus) error
	MarkIndexed(ctx context.Context, documentID string, info IndexedInfo) error
	MarkFailed(ctx context.Context, documentID, errorType, detail string) error
	Get(ctx context.Context, documentID string) (models.Document, error)
	GetMany(ctx context.Context, documentIDs []string) (map[string]models.Document, error)
	List(ctx context.Context, f ListFilter) ([]models.Document, error)
}

var (
	_ DocumentStore = (*DocumentRepo)(nil)
	_ DocumentStore = (*MemoryDocumentStore)(nil)
)
