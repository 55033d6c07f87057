package activities

import "docrag/internal/models"

// UpdateDocumentStatusInput moves a document along the ingestion state
// machine. The indexed and failed targets carry their extra fields.
type UpdateDocumentStatusInput struct {
	DocumentID         string                    `json:"document_id"`
	Status             models.DocumentStatus     `json:"status"`
	ErrorType          string                    `json:"error_type,omitempty"`
	ErrorDetail        string                    `json:"error_detail,omitempty"`
	EmbeddingModel     string                    `json:"embedding_model,omitempty"`
	ChunkCount         int                       `json:"chunk_count,omitempty"`
	ExtractionStrategy models.ExtractionStrategy `json:"extraction_strategy,omitempty"`
}

type ExtractTextInput struct {
	DocumentID string `json:"document_id"`
	Locator    string `json:"locator"`
}

type ExtractTextOutput struct {
	Text     string                    `json:"text"`
	Strategy models.ExtractionStrategy `json:"strategy"`
	Pages    int                       `json:"pages"`
}

type ChunkTextInput struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

type ChunkTextOutput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedAndIndexChunksInput struct {
	DocumentID string         `json:"document_id"`
	Chunks     []models.Chunk `json:"chunks"`
}

type EmbedAndIndexChunksOutput struct {
	EmbeddingModel string `json:"embedding_model"`
	ChunkCount     int    `json:"chunk_count"`
}

type DeleteDocumentVectorsInput struct {
	DocumentID string `json:"document_id"`
}

type WriteDocumentArtifactsInput struct {
	DocumentID    string         `json:"document_id"`
	Filename      string         `json:"filename"`
	Chunks        []models.Chunk `json:"chunks"`
	ProcessingLog map[string]any `json:"processing_log"`
}

// RegisterDocumentInput resets a stored document to uploaded so it can be
// ingested again from its stored blob. A set ExpectStatus or StaleOnly turns
// the reset into a no-op for documents that no longer match.
type RegisterDocumentInput struct {
	DocumentID   string                `json:"document_id"`
	ExpectStatus models.DocumentStatus `json:"expect_status,omitempty"`
	StaleOnly    bool                  `json:"stale_only,omitempty"`
}

type RegisterDocumentOutput struct {
	Document models.Document `json:"document"`
	Skipped  bool            `json:"skipped,omitempty"`
}

type ListDocumentsInput struct {
	Status models.DocumentStatus `json:"status,omitempty"`
	// StaleOnly keeps documents whose embedding model is not the worker's
	// current one.
	StaleOnly bool `json:"stale_only,omitempty"`
	Limit     int  `json:"limit,omitempty"`
}

type ListDocumentsOutput struct {
	Documents []models.Document `json:"documents"`
}
