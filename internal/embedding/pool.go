package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"docrag/internal/providers"
	"docrag/internal/retry"
	"docrag/internal/util"

	"golang.org/x/sync/errgroup"
)

// Pool embeds many texts in fixed-size batches with bounded parallelism.
// Output order always matches input order.
type Pool struct {
	embedder    providers.Embedder
	batchSize   int
	parallelism int
	retry       retry.RetryConfig
}

func NewPool(e providers.Embedder, batchSize, parallelism int, rc retry.RetryConfig) *Pool {
	if batchSize <= 0 {
		batchSize = 64
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Pool{embedder: e, batchSize: batchSize, parallelism: parallelism, retry: rc}
}

func (p *Pool) Model() string { return p.embedder.Model() }

// EmbedAll returns one vector per text. progress, if set, is called after
// each finished batch with the number of texts embedded so far.
func (p *Pool) EmbedAll(ctx context.Context, texts []string, progress func(done int)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		g.Go(func() error {
			batch := texts[start:end]
			vecs, err := retry.Do(gctx, p.retry, func(ctx context.Context) ([][]float32, error) {
				return p.embedder.Embed(ctx, batch)
			})
			if err != nil {
				return fmt.Errorf("%w: batch %d-%d: %w", util.ErrEmbeddingFailure, start, end, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("%w: batch %d-%d returned %d vectors", util.ErrEmbeddingFailure, start, end, len(vecs))
			}
			for i, v := range vecs {
				if len(v) == 0 {
					return fmt.Errorf("%w: empty vector for input %d", util.ErrEmbeddingFailure, start+i)
				}
				out[start+i] = v
			}
			n := done.Add(int64(len(batch)))
			if progress != nil {
				progress(int(n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dim := len(out[0])
	for i, v := range out {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", util.ErrEmbeddingFailure, i, len(v), dim)
		}
	}
	return out, nil
}
