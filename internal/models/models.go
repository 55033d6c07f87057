package models

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusExtracting DocumentStatus = "extracting"
	StatusChunked    DocumentStatus = "chunked"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusExtracting, StatusChunked, StatusIndexed, StatusFailed:
		return true
	}
	return false
}

// predecessors lists the statuses a document may move from. Re-applying the
// current status is always allowed so retried updates stay idempotent.
// uploaded has no entry: it is only reached by registering the document.
var predecessors = map[DocumentStatus][]DocumentStatus{
	StatusExtracting: {StatusUploaded},
	StatusChunked:    {StatusExtracting},
	StatusIndexed:    {StatusChunked},
	StatusFailed:     {StatusUploaded, StatusExtracting, StatusChunked},
}

// Predecessors returns the statuses from which to is reachable, including to.
func Predecessors(to DocumentStatus) []DocumentStatus {
	out := []DocumentStatus{to}
	return append(out, predecessors[to]...)
}

func CanTransition(from, to DocumentStatus) bool {
	for _, s := range Predecessors(to) {
		if s == from {
			return true
		}
	}
	return false
}

type ExtractionStrategy string

const (
	StrategyTextLayer ExtractionStrategy = "text-layer"
	StrategyOCR       ExtractionStrategy = "ocr"
)

type Document struct {
	DocumentID         string             `json:"document_id"`
	Filename           string             `json:"filename"`
	Locator            string             `json:"locator"`
	Status             DocumentStatus     `json:"status"`
	ErrorType          string             `json:"error_type,omitempty"`
	ErrorDetail        string             `json:"error_detail,omitempty"`
	EmbeddingModel     string             `json:"embedding_model,omitempty"`
	ChunkCount         int                `json:"chunk_count"`
	ExtractionStrategy ExtractionStrategy `json:"extraction_strategy,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type Chunk struct {
	DocumentID     string    `json:"document_id"`
	Ordinal        int       `json:"ordinal"`
	Text           string    `json:"text"`
	StartOffset    int       `json:"start_offset"`
	EndOffset      int       `json:"end_offset"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	Vector         []float32 `json:"-"`
}

type QueryFilter struct {
	DocumentIDs []string `json:"document_ids,omitempty"`
}

type Query struct {
	Text   string      `json:"text"`
	TopK   int         `json:"top_k,omitempty"`
	Filter QueryFilter `json:"filter"`
}

type RetrievedChunk struct {
	Chunk
	Score    float64 `json:"score"`
	Filename string  `json:"filename"`
	Locator  string  `json:"locator"`
}

type Source struct {
	DocumentID  string    `json:"document_id"`
	Filename    string    `json:"filename"`
	Ordinal     int       `json:"chunk_ordinal"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"download_expires_at"`
	Score       float64   `json:"score"`
	Snippet     string    `json:"snippet,omitempty"`
}

type Answer struct {
	Text        string    `json:"answer"`
	Sources     []Source  `json:"sources"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

type DownloadRef struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}
