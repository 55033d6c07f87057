package ingest

import (
	"context"
	"errors"
	"fmt"

	"docrag/internal/blob"
	"docrag/internal/config"
	"docrag/internal/extract"
	"docrag/internal/logging"
	"docrag/internal/models"
	"docrag/internal/storage"
	"docrag/internal/util"
	"docrag/internal/workflows"

	"go.uber.org/zap"
)

const pdfContentType = "application/pdf"

// Service accepts uploads, stores them and runs them through ingestion.
type Service struct {
	blobs  blob.Store
	docs   storage.DocumentStore
	runner Runner
	cfg    config.Config
	locks  *keyedMutex
}

func NewService(blobs blob.Store, docs storage.DocumentStore, runner Runner, cfg config.Config) *Service {
	return &Service{blobs: blobs, docs: docs, runner: runner, cfg: cfg, locks: newKeyedMutex()}
}

// Ingest stores data as a document and indexes it. The document id is
// derived from the content, so the same bytes always address the same
// document and re-ingesting replaces its chunks.
//
// When ingestion itself fails the error carries the failure class and the
// returned Document is the stored failed record.
func (s *Service) Ingest(ctx context.Context, data []byte, filename string) (models.Document, error) {
	if limit := s.cfg.Ingest.MaxUploadBytes; limit > 0 && int64(len(data)) > limit {
		return models.Document{}, fmt.Errorf("%w: file is %d bytes, limit is %d", util.ErrInvalidFormat, len(data), limit)
	}
	if err := extract.ValidatePDF(data); err != nil {
		return models.Document{}, err
	}
	id := util.ContentID(data)
	filename = util.SafeFilename(filename)
	ctx = logging.AddFields(ctx, zap.String("document_id", id))
	logger := logging.FromContext(ctx)

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return models.Document{}, err
	}
	defer unlock()
	if err := s.runner.AwaitIdle(ctx, id); err != nil {
		return models.Document{}, fmt.Errorf("wait for running ingestion of %s: %w", id, err)
	}

	prev, err := s.docs.Get(ctx, id)
	if err != nil && !errors.Is(err, util.ErrNotFound) {
		return models.Document{}, fmt.Errorf("load document %s: %w", id, err)
	}
	loc, err := s.blobs.Put(ctx, blob.DocumentKey(id, filename), data, pdfContentType)
	if err != nil {
		return models.Document{}, fmt.Errorf("store original %s: %w", filename, err)
	}
	newBlob := prev.Locator != loc

	doc, err := s.docs.Register(ctx, models.Document{DocumentID: id, Filename: filename, Locator: loc})
	if err != nil {
		if newBlob {
			if derr := s.blobs.Delete(context.WithoutCancel(ctx), loc); derr != nil {
				logger.Error("delete orphaned blob failed", zap.String("locator", loc), zap.Error(derr))
			}
		}
		return models.Document{}, fmt.Errorf("register document %s: %w", id, err)
	}
	if prev.Locator != "" && newBlob {
		// Same content uploaded under another name; the old copy is unreferenced.
		if derr := s.blobs.Delete(ctx, prev.Locator); derr != nil {
			logger.Warn("delete replaced blob failed", zap.String("locator", prev.Locator), zap.Error(derr))
		}
	}
	logger.Info("document registered", zap.String("filename", filename), zap.String("locator", loc))

	res, err := s.runner.Run(ctx, workflows.DocumentIngestInput{
		DocumentID:      doc.DocumentID,
		Filename:        doc.Filename,
		Locator:         doc.Locator,
		ActivityTimeout: s.cfg.Ingest.ActivityTimeout,
		Retry:           s.cfg.Retry,
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("ingestion canceled by caller", zap.Error(err))
			return models.Document{}, ctx.Err()
		}
		return models.Document{}, err
	}

	stored, err := s.docs.Get(ctx, id)
	if err != nil {
		return models.Document{}, fmt.Errorf("load document %s: %w", id, err)
	}
	if res.Status != models.StatusIndexed {
		logger.Warn("ingestion failed", zap.String("error_type", res.ErrorType), zap.String("detail", res.ErrorDetail))
		return stored, ingestError(res)
	}
	logger.Info("document indexed", zap.Int("chunks", stored.ChunkCount), zap.String("model", stored.EmbeddingModel))
	return stored, nil
}

// Document returns the stored record, including failed ones.
func (s *Service) Document(ctx context.Context, documentID string) (models.Document, error) {
	return s.docs.Get(ctx, documentID)
}

func ingestError(res workflows.DocumentIngestResult) error {
	sentinel := util.ErrorFromType(res.ErrorType)
	if sentinel == nil {
		return fmt.Errorf("ingestion of %s failed: %s", res.DocumentID, res.ErrorDetail)
	}
	return fmt.Errorf("%w: %s", sentinel, res.ErrorDetail)
}
