package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// Point is one chunk vector with the payload needed to answer from it
// without another lookup.
type Point struct {
	DocumentID string
	Ordinal    int
	Text       string
	Start      int
	End        int
	Model      string
	Vector     []float32
}

type Match struct {
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Model      string  `json:"model"`
	Score      float64 `json:"score"`
}

// Filter restricts queries and deletes. Empty DocumentIDs means every
// document for queries; deletes require at least one id.
type Filter struct {
	DocumentIDs []string
	Model       string
}

type Index interface {
	Upsert(ctx context.Context, points []Point) error
	Delete(ctx context.Context, f Filter) error
	// Query returns at most topK matches, highest score first. Score is
	// cosine similarity.
	Query(ctx context.Context, vec []float32, topK int, f Filter) ([]Match, error)
}

var pointNamespace = uuid.MustParse("7b0c2f4e-5a4d-4b8e-9f51-3d0a1c6e2b90")

// PointID is stable across re-ingestion so upserts overwrite in place.
func PointID(documentID string, ordinal int) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID+":"+strconv.Itoa(ordinal))).String()
}

func errNoDocuments(op string) error {
	return fmt.Errorf("%s: filter must name at least one document", op)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortMatches orders by score, then document id and ordinal so equal
// scores come back in a stable order.
func SortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		if m[i].DocumentID != m[j].DocumentID {
			return m[i].DocumentID < m[j].DocumentID
		}
		return m[i].Ordinal < m[j].Ordinal
	})
}
