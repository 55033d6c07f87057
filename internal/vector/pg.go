package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"
)

type Queryer interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgIndex stores vectors in the chunks table next to the chunk text.
type PgIndex struct {
	q Queryer
}

func NewPgIndex(q Queryer) *PgIndex {
	return &PgIndex{q: q}
}

func (s *PgIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
INSERT INTO chunks (document_id, ordinal, text, start_offset, end_offset, embedding_model, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
ON CONFLICT (document_id, ordinal)
DO UPDATE SET
  text = EXCLUDED.text,
  start_offset = EXCLUDED.start_offset,
  end_offset = EXCLUDED.end_offset,
  embedding_model = EXCLUDED.embedding_model,
  embedding = EXCLUDED.embedding`,
			p.DocumentID, p.Ordinal, p.Text, p.Start, p.End, p.Model, pgvector.NewVector(p.Vector),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (s *PgIndex) Delete(ctx context.Context, f Filter) error {
	if len(f.DocumentIDs) == 0 {
		return errNoDocuments("pgvector delete")
	}
	sql := `DELETE FROM chunks WHERE document_id = ANY($1)`
	args := []any{f.DocumentIDs}
	if f.Model != "" {
		sql += ` AND embedding_model = $2`
		args = append(args, f.Model)
	}
	if _, err := s.q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *PgIndex) Query(ctx context.Context, vec []float32, topK int, f Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	args := []any{pgvector.NewVector(vec), topK}
	filterSQL := ""
	if len(f.DocumentIDs) > 0 {
		args = append(args, f.DocumentIDs)
		filterSQL += fmt.Sprintf(" AND c.document_id = ANY($%d)", len(args))
	}
	if f.Model != "" {
		args = append(args, f.Model)
		filterSQL += fmt.Sprintf(" AND c.embedding_model = $%d", len(args))
	}

	query := `
SELECT c.document_id,
       c.ordinal,
       c.text,
       c.start_offset,
       c.end_offset,
       c.embedding_model,
       1 - (c.embedding <=> $1::vector) AS score
FROM chunks c
WHERE c.embedding IS NOT NULL` + filterSQL + `
ORDER BY c.embedding <=> $1::vector, c.document_id, c.ordinal
LIMIT $2`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	out := make([]Match, 0, topK)
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.DocumentID, &m.Ordinal, &m.Text, &m.Start, &m.End, &m.Model, &m.Score); err != nil {
			return nil, fmt.Errorf("scan chunk match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}
