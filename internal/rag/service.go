// Package rag is the outward surface of docrag: ingest documents, ask
// questions over them and hand out download links.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docrag/internal/blob"
	"docrag/internal/logging"
	"docrag/internal/models"
	"docrag/internal/storage"
	"docrag/internal/util"

	"go.uber.org/zap"
)

type Ingester interface {
	Ingest(ctx context.Context, data []byte, filename string) (models.Document, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, q models.Query) ([]models.RetrievedChunk, error)
}

type Composer interface {
	Compose(ctx context.Context, query string, chunks []models.RetrievedChunk) (models.Answer, error)
}

type Service struct {
	ingester  Ingester
	retriever Retriever
	composer  Composer
	docs      storage.DocumentStore
	links     blob.Store
}

func NewService(ing Ingester, r Retriever, c Composer, docs storage.DocumentStore, links blob.Store) *Service {
	return &Service{ingester: ing, retriever: r, composer: c, docs: docs, links: links}
}

func (s *Service) Ingest(ctx context.Context, data []byte, filename string) (models.Document, error) {
	return s.ingester.Ingest(ctx, data, filename)
}

// Query retrieves evidence for q and composes a cited answer from it.
func (s *Service) Query(ctx context.Context, q models.Query) (models.Answer, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return models.Answer{}, fmt.Errorf("%w: empty query text", util.ErrInvalidQuery)
	}
	if q.TopK < 0 {
		return models.Answer{}, fmt.Errorf("%w: top_k must not be negative", util.ErrInvalidQuery)
	}
	logger := logging.FromContext(ctx)
	start := time.Now()

	chunks, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		return models.Answer{}, err
	}
	ans, err := s.composer.Compose(ctx, q.Text, chunks)
	if err != nil {
		return models.Answer{}, err
	}
	logger.Info("query answered",
		zap.Int("retrieved", len(chunks)),
		zap.Int("sources", len(ans.Sources)),
		zap.String("model", ans.Model),
		zap.Duration("took", time.Since(start)),
	)
	return ans, nil
}

// DownloadReference returns a time-limited link to a document's original file.
func (s *Service) DownloadReference(ctx context.Context, documentID string) (models.DownloadRef, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return models.DownloadRef{}, err
	}
	url, exp, err := s.links.DownloadURL(ctx, doc.Locator)
	if err != nil {
		return models.DownloadRef{}, fmt.Errorf("download link for %s: %w", documentID, err)
	}
	return models.DownloadRef{DocumentID: doc.DocumentID, Filename: doc.Filename, URL: url, ExpiresAt: exp}, nil
}

func (s *Service) Document(ctx context.Context, documentID string) (models.Document, error) {
	return s.docs.Get(ctx, documentID)
}
