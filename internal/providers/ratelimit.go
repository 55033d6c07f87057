package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an embedder with a token bucket shared by
// every caller of the wrapper.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

func NewRateLimited(next Embedder, perSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Model() string { return r.next.Model() }

func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed rate limit wait: %w", err)
	}
	return r.next.Embed(ctx, texts)
}
