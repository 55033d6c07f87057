package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docrag/internal/models"
	"docrag/internal/util"
)

// MemoryDocumentStore implements DocumentStore in process with the same
// transition rules as DocumentRepo.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]models.Document
	now  func() time.Time
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]models.Document), now: time.Now}
}

func (m *MemoryDocumentStore) Register(ctx context.Context, doc models.Document) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	prev, ok := m.docs[doc.DocumentID]
	d := models.Document{
		DocumentID:     doc.DocumentID,
		Filename:       doc.Filename,
		Locator:        doc.Locator,
		Status:         models.StatusUploaded,
		EmbeddingModel: prev.EmbeddingModel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ok {
		d.CreatedAt = prev.CreatedAt
	}
	m.docs[d.DocumentID] = d
	return d, nil
}

func (m *MemoryDocumentStore) transition(documentID string, to models.DocumentStatus, apply func(*models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[documentID]
	if !ok {
		return fmt.Errorf("%w: document %s", util.ErrNotFound, documentID)
	}
	if !models.CanTransition(d.Status, to) {
		return fmt.Errorf("%w: %s %s -> %s", util.ErrInvalidTransition, documentID, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = m.now().UTC()
	if apply != nil {
		apply(&d)
	}
	m.docs[documentID] = d
	return nil
}

func (m *MemoryDocumentStore) UpdateStatus(ctx context.Context, documentID string, to models.DocumentStatus) error {
	return m.transition(documentID, to, nil)
}

func (m *MemoryDocumentStore) MarkIndexed(ctx context.Context, documentID string, info IndexedInfo) error {
	return m.transition(documentID, models.StatusIndexed, func(d *models.Document) {
		d.EmbeddingModel = info.EmbeddingModel
		d.ChunkCount = info.ChunkCount
		d.ExtractionStrategy = info.ExtractionStrategy
		d.ErrorType, d.ErrorDetail = "", ""
	})
}

func (m *MemoryDocumentStore) MarkFailed(ctx context.Context, documentID, errorType, detail string) error {
	return m.transition(documentID, models.StatusFailed, func(d *models.Document) {
		d.ErrorType = errorType
		d.ErrorDetail = util.SanitizeText(detail)
		d.ChunkCount = 0
		d.EmbeddingModel = ""
	})
}

func (m *MemoryDocumentStore) Get(ctx context.Context, documentID string) (models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[documentID]
	if !ok {
		return models.Document{}, fmt.Errorf("%w: document %s", util.ErrNotFound, documentID)
	}
	return d, nil
}

func (m *MemoryDocumentStore) GetMany(ctx context.Context, documentIDs []string) (map[string]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.Document, len(documentIDs))
	for _, id := range documentIDs {
		if d, ok := m.docs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (m *MemoryDocumentStore) List(ctx context.Context, f ListFilter) ([]models.Document, error) {
	m.mu.RLock()
	out := make([]models.Document, 0, len(m.docs))
	for _, d := range m.docs {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.StaleModel != "" && d.EmbeddingModel == f.StaleModel {
			continue
		}
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
