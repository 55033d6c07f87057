package storage

import (
	"context"
	"errors"
	"fmt"

	"docrag/internal/models"
	"docrag/internal/util"

	"github.com/jackc/pgx/v5"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = `document_id, filename, locator, status, COALESCE(error_type,''), COALESCE(error_detail,''),
       COALESCE(embedding_model,''), chunk_count, COALESCE(extraction_strategy,''), created_at, updated_at`

func scanDocument(row pgx.Row) (models.Document, error) {
	var d models.Document
	err := row.Scan(&d.DocumentID, &d.Filename, &d.Locator, &d.Status, &d.ErrorType, &d.ErrorDetail,
		&d.EmbeddingModel, &d.ChunkCount, &d.ExtractionStrategy, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *DocumentRepo) Register(ctx context.Context, doc models.Document) (models.Document, error) {
	row := r.db.Pool.QueryRow(ctx, `
INSERT INTO documents (document_id, filename, locator, status)
VALUES ($1, $2, $3, 'uploaded')
ON CONFLICT (document_id)
DO UPDATE SET
  filename = EXCLUDED.filename,
  locator = EXCLUDED.locator,
  status = 'uploaded',
  error_type = NULL,
  error_detail = NULL,
  chunk_count = 0,
  extraction_strategy = NULL,
  updated_at = NOW()
RETURNING `+documentColumns, doc.DocumentID, doc.Filename, doc.Locator)
	out, err := scanDocument(row)
	if err != nil {
		return models.Document{}, fmt.Errorf("register document: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, documentID string, to models.DocumentStatus) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents SET status=$2, updated_at=NOW()
WHERE document_id=$1 AND status = ANY($3)`, documentID, string(to), statusStrings(models.Predecessors(to)))
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, documentID, to)
	}
	return nil
}

func (r *DocumentRepo) MarkIndexed(ctx context.Context, documentID string, info IndexedInfo) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents
SET status='indexed', embedding_model=$2, chunk_count=$3, extraction_strategy=NULLIF($4,''),
    error_type=NULL, error_detail=NULL, updated_at=NOW()
WHERE document_id=$1 AND status = ANY($5)`,
		documentID, info.EmbeddingModel, info.ChunkCount, string(info.ExtractionStrategy),
		statusStrings(models.Predecessors(models.StatusIndexed)))
	if err != nil {
		return fmt.Errorf("mark document indexed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, documentID, models.StatusIndexed)
	}
	return nil
}

func (r *DocumentRepo) MarkFailed(ctx context.Context, documentID, errorType, detail string) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents
SET status='failed', error_type=$2, error_detail=$3, chunk_count=0, embedding_model=NULL, updated_at=NOW()
WHERE document_id=$1 AND status = ANY($4)`,
		documentID, errorType, util.SanitizeText(detail), statusStrings(models.Predecessors(models.StatusFailed)))
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, documentID, models.StatusFailed)
	}
	return nil
}

func (r *DocumentRepo) transitionError(ctx context.Context, documentID string, to models.DocumentStatus) error {
	d, err := r.Get(ctx, documentID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s %s -> %s", util.ErrInvalidTransition, documentID, d.Status, to)
}

func (r *DocumentRepo) Get(ctx context.Context, documentID string) (models.Document, error) {
	d, err := scanDocument(r.db.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id=$1`, documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("%w: document %s", util.ErrNotFound, documentID)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) GetMany(ctx context.Context, documentIDs []string) (map[string]models.Document, error) {
	out := make(map[string]models.Document, len(documentIDs))
	if len(documentIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = ANY($1)`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out[d.DocumentID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) List(ctx context.Context, f ListFilter) ([]models.Document, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR COALESCE(embedding_model,'') <> $2)
ORDER BY updated_at DESC, document_id
LIMIT $3`, string(f.Status), f.StaleModel, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := make([]models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func statusStrings(s []models.DocumentStatus) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = string(v)
	}
	return out
}
