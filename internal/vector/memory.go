package vector

import (
	"context"
	"slices"
	"sync"
)

// MemoryIndex is an exact in-process index for tests and single-node dev.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]Point)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		p.Vector = slices.Clone(p.Vector)
		m.points[PointID(p.DocumentID, p.Ordinal)] = p
	}
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, f Filter) error {
	if len(f.DocumentIDs) == 0 {
		return errNoDocuments("memory delete")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if matches(p, f) {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vec []float32, topK int, f Filter) ([]Match, error) {
	m.mu.RLock()
	out := make([]Match, 0, len(m.points))
	for _, p := range m.points {
		if !matches(p, f) {
			continue
		}
		out = append(out, Match{
			DocumentID: p.DocumentID,
			Ordinal:    p.Ordinal,
			Text:       p.Text,
			Start:      p.Start,
			End:        p.End,
			Model:      p.Model,
			Score:      cosine(vec, p.Vector),
		})
	}
	m.mu.RUnlock()
	SortMatches(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Count reports how many points a document has.
func (m *MemoryIndex) Count(documentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.points {
		if p.DocumentID == documentID {
			n++
		}
	}
	return n
}

func matches(p Point, f Filter) bool {
	if f.Model != "" && p.Model != f.Model {
		return false
	}
	return len(f.DocumentIDs) == 0 || slices.Contains(f.DocumentIDs, p.DocumentID)
}
