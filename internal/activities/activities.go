package activities

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"docrag/internal/blob"
	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/embedding"
	"docrag/internal/extract"
	"docrag/internal/models"
	"docrag/internal/providers"
	"docrag/internal/storage"
	"docrag/internal/util"
	"docrag/internal/vector"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// Deps are the collaborators the ingestion activities run against.
type Deps struct {
	Docs      storage.DocumentStore
	Blobs     blob.Store
	Index     vector.Index
	Embedder  providers.Embedder
	Extractor *extract.Extractor
}

type Activities struct {
	cfg       config.Config
	docs      storage.DocumentStore
	blobs     blob.Store
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	pool      *embedding.Pool
	writer    *vector.Writer
}

func New(cfg config.Config, d Deps) (*Activities, error) {
	ch, err := chunker.New(cfg.Chunk.Size, cfg.Chunk.Overlap, chunker.WithBoundaryWindow(cfg.Chunk.BoundaryWindow))
	if err != nil {
		return nil, err
	}
	ex := d.Extractor
	if ex == nil {
		ex = extract.New(cfg.Extract)
	}
	return &Activities{
		cfg:       cfg,
		docs:      d.Docs,
		blobs:     d.Blobs,
		extractor: ex,
		chunker:   ch,
		pool:      embedding.NewPool(d.Embedder, cfg.Embed.BatchSize, cfg.Embed.Parallelism, cfg.Retry),
		writer:    vector.NewWriter(d.Index, cfg.Vector.UpsertBatch),
	}, nil
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	var err error
	switch in.Status {
	case models.StatusIndexed:
		err = a.docs.MarkIndexed(ctx, in.DocumentID, storage.IndexedInfo{
			EmbeddingModel:     in.EmbeddingModel,
			ChunkCount:         in.ChunkCount,
			ExtractionStrategy: in.ExtractionStrategy,
		})
	case models.StatusFailed:
		err = a.docs.MarkFailed(ctx, in.DocumentID, in.ErrorType, in.ErrorDetail)
	default:
		err = a.docs.UpdateStatus(ctx, in.DocumentID, in.Status)
	}
	if err != nil {
		return appError(fmt.Errorf("set %s to %s: %w", in.DocumentID, in.Status, err))
	}
	return nil
}

// ExtractTextActivity reads the original upload from the blob store. Any
// scratch files live only inside the extractor call.
func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	logger := activity.GetLogger(ctx)
	b, err := a.blobs.Get(ctx, in.Locator)
	if err != nil {
		return ExtractTextOutput{}, appError(fmt.Errorf("read blob %s: %w", in.Locator, err))
	}
	res, err := a.extractor.Extract(ctx, b)
	if err != nil {
		return ExtractTextOutput{}, appError(fmt.Errorf("extract %s: %w", in.DocumentID, err))
	}
	logger.Info("extracted text", "document_id", in.DocumentID, "strategy", res.Strategy, "pages", res.Pages, "chars", len(res.Text))
	return ExtractTextOutput{Text: res.Text, Strategy: res.Strategy, Pages: res.Pages}, nil
}

func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	_ = ctx
	spans := a.chunker.Split(in.Text)
	if len(spans) == 0 {
		return ChunkTextOutput{}, appError(fmt.Errorf("%w: no chunks for %s", util.ErrNoExtractableText, in.DocumentID))
	}
	chunks := make([]models.Chunk, 0, len(spans))
	for _, s := range spans {
		chunks = append(chunks, models.Chunk{
			DocumentID:  in.DocumentID,
			Ordinal:     s.Ordinal,
			Text:        s.Text,
			StartOffset: s.Start,
			EndOffset:   s.End,
		})
	}
	return ChunkTextOutput{Chunks: chunks}, nil
}

// EmbedAndIndexChunksActivity embeds every chunk and replaces the
// document's vectors. It heartbeats after each embedded batch.
func (a *Activities) EmbedAndIndexChunksActivity(ctx context.Context, in EmbedAndIndexChunksInput) (EmbedAndIndexChunksOutput, error) {
	logger := activity.GetLogger(ctx)
	texts := make([]string, len(in.Chunks))
	for i, c := range in.Chunks {
		texts[i] = c.Text
	}
	vectors, err := a.pool.EmbedAll(ctx, texts, func(done int) {
		activity.RecordHeartbeat(ctx, done)
	})
	if err != nil {
		return EmbedAndIndexChunksOutput{}, appError(fmt.Errorf("embed %s: %w", in.DocumentID, err))
	}
	model := a.pool.Model()
	if err := a.writer.Replace(ctx, in.DocumentID, model, in.Chunks, vectors); err != nil {
		return EmbedAndIndexChunksOutput{}, appError(err)
	}
	logger.Info("indexed chunks", "document_id", in.DocumentID, "chunks", len(in.Chunks), "model", model)
	return EmbedAndIndexChunksOutput{EmbeddingModel: model, ChunkCount: len(in.Chunks)}, nil
}

func (a *Activities) DeleteDocumentVectorsActivity(ctx context.Context, in DeleteDocumentVectorsInput) error {
	if err := a.writer.Delete(ctx, in.DocumentID); err != nil {
		return appError(err)
	}
	return nil
}

// WriteDocumentArtifactsActivity writes the processing log and chunks under
// DATA_OUT/<document_id>. It is a no-op when DATA_OUT is not set.
func (a *Activities) WriteDocumentArtifactsActivity(ctx context.Context, in WriteDocumentArtifactsInput) error {
	_ = ctx
	if a.cfg.DataOutRoot == "" {
		return nil
	}
	base := filepath.Join(a.cfg.DataOutRoot, in.DocumentID)
	if err := util.EnsureDir(base); err != nil {
		return err
	}
	if err := util.WriteJSONLinesAtomic(filepath.Join(base, "chunks.jsonl"), in.Chunks); err != nil {
		return err
	}
	log := in.ProcessingLog
	if log == nil {
		log = map[string]any{}
	}
	log["document_id"] = in.DocumentID
	log["filename"] = in.Filename
	log["chunk_count"] = len(in.Chunks)
	return util.WriteJSONAtomic(filepath.Join(base, "processing_log.json"), log)
}

func (a *Activities) RegisterDocumentActivity(ctx context.Context, in RegisterDocumentInput) (RegisterDocumentOutput, error) {
	cur, err := a.docs.Get(ctx, in.DocumentID)
	if err != nil {
		return RegisterDocumentOutput{}, appError(err)
	}
	if in.ExpectStatus != "" && cur.Status != in.ExpectStatus {
		return RegisterDocumentOutput{Document: cur, Skipped: true}, nil
	}
	if in.StaleOnly && cur.EmbeddingModel == a.pool.Model() {
		return RegisterDocumentOutput{Document: cur, Skipped: true}, nil
	}
	d, err := a.docs.Register(ctx, models.Document{DocumentID: cur.DocumentID, Filename: cur.Filename, Locator: cur.Locator})
	if err != nil {
		return RegisterDocumentOutput{}, appError(fmt.Errorf("register %s: %w", in.DocumentID, err))
	}
	return RegisterDocumentOutput{Document: d}, nil
}

func (a *Activities) ListDocumentsActivity(ctx context.Context, in ListDocumentsInput) (ListDocumentsOutput, error) {
	f := storage.ListFilter{Status: in.Status, Limit: in.Limit}
	if in.StaleOnly {
		f.StaleModel = a.pool.Model()
	}
	docs, err := a.docs.List(ctx, f)
	if err != nil {
		return ListDocumentsOutput{}, appError(err)
	}
	return ListDocumentsOutput{Documents: docs}, nil
}

// appError tags err with its taxonomy type so the workflow can tell classes
// apart. Non-retryable classes stop the activity retry policy immediately.
func appError(err error) error {
	if err == nil {
		return nil
	}
	var ae *temporal.ApplicationError
	if errors.As(err, &ae) {
		return err
	}
	t := util.ErrorType(err)
	if !util.Retryable(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), t, err)
	}
	return temporal.NewApplicationErrorWithCause(err.Error(), t, err)
}
