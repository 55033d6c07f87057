package retrieval

import (
	"context"
	"math"

	"docrag/internal/models"
	"docrag/internal/util"
)

// Reranker rescores candidates for a query. Implementations may reorder
// and rescore but must not add candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, cands []models.RetrievedChunk) ([]models.RetrievedChunk, error)
}

// LexicalReranker blends the vector score with the Ochiai overlap between
// query terms and chunk terms: (1-w)*vector + w*overlap.
type LexicalReranker struct {
	Weight float64
}

func (r LexicalReranker) Rerank(ctx context.Context, query string, cands []models.RetrievedChunk) ([]models.RetrievedChunk, error) {
	qset := termSet(query)
	out := make([]models.RetrievedChunk, len(cands))
	for i, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.Score = (1-r.Weight)*c.Score + r.Weight*overlapOchiai(qset, c.Text)
		out[i] = c
	}
	return out, nil
}

func termSet(s string) map[string]struct{} {
	terms := util.Terms(s)
	m := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct terms.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	tset := termSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(tset)))
}
