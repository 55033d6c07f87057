package workflows

import (
	"time"

	"docrag/internal/models"
	"docrag/internal/retry"
)

type DocumentIngestInput struct {
	DocumentID      string            `json:"document_id"`
	Filename        string            `json:"filename"`
	Locator         string            `json:"locator"`
	ActivityTimeout time.Duration     `json:"activity_timeout,omitempty"`
	Retry           retry.RetryConfig `json:"retry"`

	// Reset re-registers the stored document as the first step of the run.
	// ResetFrom and StaleOnly skip the run when the document no longer needs
	// it; Filename and Locator are then taken from the stored record.
	Reset     bool                  `json:"reset,omitempty"`
	ResetFrom models.DocumentStatus `json:"reset_from,omitempty"`
	StaleOnly bool                  `json:"stale_only,omitempty"`
}

// DocumentIngestResult is returned for failed ingestions too. ErrorType
// names the failure class; the workflow itself only errors when it cannot
// record the outcome.
type DocumentIngestResult struct {
	DocumentID         string                    `json:"document_id"`
	Status             models.DocumentStatus     `json:"status"`
	ErrorType          string                    `json:"error_type,omitempty"`
	ErrorDetail        string                    `json:"error_detail,omitempty"`
	ChunkCount         int                       `json:"chunk_count"`
	EmbeddingModel     string                    `json:"embedding_model,omitempty"`
	ExtractionStrategy models.ExtractionStrategy `json:"extraction_strategy,omitempty"`
	// Skipped is set when a reset run found the document already handled.
	Skipped bool `json:"skipped,omitempty"`
}

type IngestStatus struct {
	DocumentID  string            `json:"document_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	ErrorType   string            `json:"error_type,omitempty"`
	Steps       map[string]string `json:"steps"`
}

const (
	BackfillRetryFailed  = "RETRY_FAILED"
	BackfillReembedStale = "REEMBED_STALE"
)

type BackfillInput struct {
	Mode                  string            `json:"mode"`
	Limit                 int               `json:"limit,omitempty"`
	MaxConcurrentChildren int               `json:"max_concurrent_children,omitempty"`
	ActivityTimeout       time.Duration     `json:"activity_timeout,omitempty"`
	Retry                 retry.RetryConfig `json:"retry"`
}

type BackfillResult struct {
	Mode      string            `json:"mode"`
	Total     int               `json:"total"`
	Indexed   int               `json:"indexed"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	PerDoc    map[string]string `json:"per_document_status"`
	StartedAt time.Time         `json:"started_at"`
}
