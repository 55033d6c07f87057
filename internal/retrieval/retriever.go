package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"docrag/internal/config"
	"docrag/internal/logging"
	"docrag/internal/models"
	"docrag/internal/providers"
	"docrag/internal/retry"
	"docrag/internal/storage"
	"docrag/internal/util"
	"docrag/internal/vector"

	"go.uber.org/zap"
)

type Retriever struct {
	embedder providers.Embedder
	index    vector.Index
	docs     storage.DocumentStore
	reranker Reranker
	cfg      config.RetrievalConfig
	retry    retry.RetryConfig
}

type Option func(*Retriever)

// WithReranker replaces the default lexical reranker. Passing nil disables
// reranking.
func WithReranker(r Reranker) Option {
	return func(rt *Retriever) { rt.reranker = r }
}

func New(e providers.Embedder, idx vector.Index, docs storage.DocumentStore, cfg config.RetrievalConfig, rc retry.RetryConfig, opts ...Option) *Retriever {
	r := &Retriever{embedder: e, index: idx, docs: docs, cfg: cfg, retry: rc}
	if cfg.Rerank {
		r.reranker = LexicalReranker{Weight: cfg.RerankWeight}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TopK applies the default and the upper bound to a requested top_k.
func (r *Retriever) TopK(requested int) int {
	switch {
	case requested <= 0:
		return r.cfg.DefaultTopK
	case requested > r.cfg.MaxTopK:
		return r.cfg.MaxTopK
	}
	return requested
}

// Retrieve returns at most top_k chunks from indexed documents, embedded
// with the current model, highest score first.
func (r *Retriever) Retrieve(ctx context.Context, q models.Query) ([]models.RetrievedChunk, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query text", util.ErrInvalidQuery)
	}
	topK := r.TopK(q.TopK)
	logger := logging.FromContext(ctx)

	vecs, err := retry.Do(ctx, r.retry, func(ctx context.Context) ([][]float32, error) {
		return r.embedder.Embed(ctx, []string{text})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", util.ErrEmbeddingFailure, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no query vector", util.ErrEmbeddingFailure)
	}

	pool := topK
	if r.reranker != nil && r.cfg.RerankOverfetch > 1 {
		pool = topK * r.cfg.RerankOverfetch
	}
	filter := vector.Filter{DocumentIDs: q.Filter.DocumentIDs, Model: r.embedder.Model()}
	matches, err := retry.Do(ctx, r.retry, func(ctx context.Context) ([]vector.Match, error) {
		return r.index.Query(ctx, vecs[0], pool, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query index: %w", util.ErrIndex, err)
	}

	cands, err := r.gate(ctx, matches)
	if err != nil {
		return nil, err
	}

	if r.reranker != nil && len(cands) > 1 {
		timeout := r.retry.Timeout
		if timeout <= 0 {
			timeout = retry.DefaultRetryConfig().Timeout
		}
		rerankCtx, cancel := context.WithTimeout(ctx, timeout)
		reranked, err := r.reranker.Rerank(rerankCtx, text, cands)
		cancel()
		if err != nil {
			logger.Warn("rerank failed, keeping vector order", zap.Error(err))
		} else {
			cands = reranked
		}
	}

	sortCandidates(cands)
	if len(cands) > topK {
		cands = cands[:topK]
	}
	return cands, nil
}

// gate drops matches below the relevance floor or from documents that are
// not indexed, and attaches filename and locator.
func (r *Retriever) gate(ctx context.Context, matches []vector.Match) ([]models.RetrievedChunk, error) {
	ids := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if !seen[m.DocumentID] {
			seen[m.DocumentID] = true
			ids = append(ids, m.DocumentID)
		}
	}
	docs, err := r.docs.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load document metadata: %w", util.ErrIndex, err)
	}
	out := make([]models.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		d, ok := docs[m.DocumentID]
		if !ok || d.Status != models.StatusIndexed {
			continue
		}
		if m.Score < r.cfg.MinScore {
			continue
		}
		out = append(out, models.RetrievedChunk{
			Chunk: models.Chunk{
				DocumentID:     m.DocumentID,
				Ordinal:        m.Ordinal,
				Text:           m.Text,
				StartOffset:    m.Start,
				EndOffset:      m.End,
				EmbeddingModel: m.Model,
			},
			Score:    m.Score,
			Filename: d.Filename,
			Locator:  d.Locator,
		})
	}
	return out, nil
}

func sortCandidates(c []models.RetrievedChunk) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		if c[i].DocumentID != c[j].DocumentID {
			return c[i].DocumentID < c[j].DocumentID
		}
		return c[i].Ordinal < c[j].Ordinal
	})
}
