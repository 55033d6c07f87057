package vector

import (
	"context"
	"fmt"

	"docrag/internal/models"
	"docrag/internal/util"
)

const DefaultUpsertBatch = 200

// Writer replaces a document's vectors as a unit.
type Writer struct {
	index Index
	batch int
}

func NewWriter(index Index, batch int) *Writer {
	if batch <= 0 {
		batch = DefaultUpsertBatch
	}
	return &Writer{index: index, batch: batch}
}

// Replace deletes every vector of documentID and writes the new ones in
// ordinal order. Chunks must be ordinals 0..n-1 of documentID, and vectors
// must line up with them.
func (w *Writer) Replace(ctx context.Context, documentID, model string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", util.ErrIndex, len(chunks), len(vectors))
	}
	for i, c := range chunks {
		if c.Ordinal != i || c.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %d is %s/%d", util.ErrIndex, i, c.DocumentID, c.Ordinal)
		}
	}
	if err := w.Delete(ctx, documentID); err != nil {
		return err
	}
	for start := 0; start < len(chunks); start += w.batch {
		end := min(start+w.batch, len(chunks))
		points := make([]Point, 0, end-start)
		for i := start; i < end; i++ {
			c := chunks[i]
			points = append(points, Point{
				DocumentID: documentID,
				Ordinal:    c.Ordinal,
				Text:       c.Text,
				Start:      c.StartOffset,
				End:        c.EndOffset,
				Model:      model,
				Vector:     vectors[i],
			})
		}
		if err := w.index.Upsert(ctx, points); err != nil {
			return fmt.Errorf("%w: upsert %s[%d:%d]: %w", util.ErrIndex, documentID, start, end, err)
		}
	}
	return nil
}

func (w *Writer) Delete(ctx context.Context, documentID string) error {
	if err := w.index.Delete(ctx, Filter{DocumentIDs: []string{documentID}}); err != nil {
		return fmt.Errorf("%w: delete %s: %w", util.ErrIndex, documentID, err)
	}
	return nil
}
