package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"docrag/internal/activities"
	"docrag/internal/models"
	"docrag/internal/retry"
	"docrag/internal/util"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetIngestStatus = "GetIngestStatus"

	defaultActivityTimeout = 10 * time.Minute
	embedHeartbeatTimeout  = 5 * time.Minute
	cleanupTimeout         = time.Minute
	cleanupWindow          = time.Hour
	cleanupMaxBackoff      = time.Minute
	maxDetailRunes         = 500
)

// IngestWorkflowID is the workflow id for a document's ingestion. At most one
// run per document is open at a time.
func IngestWorkflowID(documentID string) string {
	return "ingest-" + documentID
}

// DocumentIngestWorkflow drives one document through
// uploaded -> extracting -> chunked -> indexed. Any step failure removes the
// document's vectors and records it as failed. With Reset set the document is
// re-registered inside this run, so backfills share the per-document exclusion.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (DocumentIngestResult, error) {
	logger := workflow.GetLogger(ctx)
	status := IngestStatus{
		DocumentID:  input.DocumentID,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (IngestStatus, error) {
		return status, nil
	}); err != nil {
		return DocumentIngestResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: durationOr(input.ActivityTimeout, defaultActivityTimeout),
		RetryPolicy:         input.Retry.ToTemporalPolicy(),
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	result := DocumentIngestResult{DocumentID: input.DocumentID}

	begin := func(step string) {
		status.CurrentStep = step
		status.Steps[step] = "processing"
	}
	done := func(step string) {
		status.Steps[step] = "done"
	}
	fail := func(err error) (DocumentIngestResult, error) {
		errType, detail := describeFailure(err)
		step := status.CurrentStep
		status.Steps[step] = "failed"
		status.Status = string(models.StatusFailed)
		status.ErrorType = errType
		logger.Warn("document ingestion failed", "document_id", input.DocumentID, "step", step, "error_type", errType, "error", detail)

		// Cleanup must run even when the caller canceled the workflow.
		cleanupCtx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		deleteCtx := workflow.WithActivityOptions(cleanupCtx, workflow.ActivityOptions{
			StartToCloseTimeout:    cleanupTimeout,
			ScheduleToCloseTimeout: cleanupWindow,
			RetryPolicy:            cleanupPolicy(input.Retry),
		})
		cleanupCtx = workflow.WithActivityOptions(cleanupCtx, workflow.ActivityOptions{
			StartToCloseTimeout: cleanupTimeout,
			RetryPolicy:         input.Retry.ToTemporalPolicy(),
		})
		// A failed document must not keep vectors. If they cannot be removed the
		// document keeps its in-flight status, which retrieval never serves.
		if err := workflow.ExecuteActivity(deleteCtx, "DeleteDocumentVectorsActivity", activities.DeleteDocumentVectorsInput{DocumentID: input.DocumentID}).Get(deleteCtx, nil); err != nil {
			logger.Error("vector cleanup failed", "document_id", input.DocumentID, "error", err)
			return DocumentIngestResult{}, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("remove vectors of failed document %s: %v", input.DocumentID, err), util.TypeIndexError, err)
		}
		if err := workflow.ExecuteActivity(cleanupCtx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
			DocumentID:  input.DocumentID,
			Status:      models.StatusFailed,
			ErrorType:   errType,
			ErrorDetail: detail,
		}).Get(cleanupCtx, nil); err != nil {
			return DocumentIngestResult{}, fmt.Errorf("record failure of %s: %w", input.DocumentID, err)
		}
		result.Status = models.StatusFailed
		result.ErrorType = errType
		result.ErrorDetail = detail
		result.ChunkCount = 0
		return result, nil
	}
	setStatus := func(to models.DocumentStatus) error {
		return workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{DocumentID: input.DocumentID, Status: to}).Get(ctx, nil)
	}

	if input.Reset {
		begin("register")
		var reg activities.RegisterDocumentOutput
		if err := workflow.ExecuteActivity(ctx, "RegisterDocumentActivity", activities.RegisterDocumentInput{
			DocumentID:   input.DocumentID,
			ExpectStatus: input.ResetFrom,
			StaleOnly:    input.StaleOnly,
		}).Get(ctx, &reg); err != nil {
			// Nothing changed yet, so there is nothing to clean up.
			status.Steps["register"] = "failed"
			return DocumentIngestResult{}, err
		}
		if reg.Skipped {
			status.Steps["register"] = "skipped"
			status.CurrentStep = "done"
			status.Status = "skipped"
			return DocumentIngestResult{
				DocumentID:         input.DocumentID,
				Status:             reg.Document.Status,
				Skipped:            true,
				ChunkCount:         reg.Document.ChunkCount,
				EmbeddingModel:     reg.Document.EmbeddingModel,
				ExtractionStrategy: reg.Document.ExtractionStrategy,
			}, nil
		}
		input.Filename = reg.Document.Filename
		input.Locator = reg.Document.Locator
		done("register")
	}

	begin("extract_text")
	if err := setStatus(models.StatusExtracting); err != nil {
		return fail(err)
	}
	var textOut activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{DocumentID: input.DocumentID, Locator: input.Locator}).Get(ctx, &textOut); err != nil {
		return fail(err)
	}
	result.ExtractionStrategy = textOut.Strategy
	done("extract_text")

	begin("chunk_text")
	var chunkOut activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkTextActivity", activities.ChunkTextInput{DocumentID: input.DocumentID, Text: textOut.Text}).Get(ctx, &chunkOut); err != nil {
		return fail(err)
	}
	if err := setStatus(models.StatusChunked); err != nil {
		return fail(err)
	}
	done("chunk_text")

	begin("embed_and_index")
	embedCtx := workflow.WithHeartbeatTimeout(ctx, embedHeartbeatTimeout)
	var indexOut activities.EmbedAndIndexChunksOutput
	if err := workflow.ExecuteActivity(embedCtx, "EmbedAndIndexChunksActivity", activities.EmbedAndIndexChunksInput{DocumentID: input.DocumentID, Chunks: chunkOut.Chunks}).Get(ctx, &indexOut); err != nil {
		return fail(err)
	}
	result.EmbeddingModel = indexOut.EmbeddingModel
	result.ChunkCount = indexOut.ChunkCount
	done("embed_and_index")

	begin("write_artifacts")
	if err := workflow.ExecuteActivity(ctx, "WriteDocumentArtifactsActivity", activities.WriteDocumentArtifactsInput{
		DocumentID: input.DocumentID,
		Filename:   input.Filename,
		Chunks:     chunkOut.Chunks,
		ProcessingLog: map[string]any{
			"status":              "indexed",
			"steps":               status.Steps,
			"extraction_strategy": textOut.Strategy,
			"pages":               textOut.Pages,
			"embedding_model":     indexOut.EmbeddingModel,
			"generated_at":        workflow.Now(ctx),
		},
	}).Get(ctx, nil); err != nil {
		// Missing artifacts do not fail the document.
		logger.Warn("write artifacts failed", "document_id", input.DocumentID, "error", err)
		status.Steps["write_artifacts"] = "skipped"
	} else {
		done("write_artifacts")
	}

	begin("mark_indexed")
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID:         input.DocumentID,
		Status:             models.StatusIndexed,
		EmbeddingModel:     indexOut.EmbeddingModel,
		ChunkCount:         indexOut.ChunkCount,
		ExtractionStrategy: textOut.Strategy,
	}).Get(ctx, nil); err != nil {
		return fail(err)
	}
	done("mark_indexed")
	status.CurrentStep = "done"
	status.Status = string(models.StatusIndexed)
	result.Status = models.StatusIndexed
	return result, nil
}

// BackfillWorkflow re-ingests stored documents from their blobs: failed ones
// (RETRY_FAILED) or indexed ones embedded with another model (REEMBED_STALE).
func BackfillWorkflow(ctx workflow.Context, input BackfillInput) (BackfillResult, error) {
	logger := workflow.GetLogger(ctx)
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: durationOr(input.ActivityTimeout, defaultActivityTimeout),
		RetryPolicy:         input.Retry.ToTemporalPolicy(),
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	mode := strings.ToUpper(strings.TrimSpace(input.Mode))
	result := BackfillResult{Mode: mode, PerDoc: map[string]string{}, StartedAt: workflow.Now(ctx)}

	var list activities.ListDocumentsInput
	switch mode {
	case BackfillRetryFailed:
		list = activities.ListDocumentsInput{Status: models.StatusFailed, Limit: input.Limit}
	case BackfillReembedStale:
		list = activities.ListDocumentsInput{Status: models.StatusIndexed, StaleOnly: true, Limit: input.Limit}
	default:
		return result, temporal.NewNonRetryableApplicationError("unsupported backfill mode: "+input.Mode, util.TypeInvalidQuery, nil)
	}
	var listed activities.ListDocumentsOutput
	if err := workflow.ExecuteActivity(ctx, "ListDocumentsActivity", list).Get(ctx, &listed); err != nil {
		return result, err
	}
	result.Total = len(listed.Documents)

	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}
	docs := listed.Documents
	for i := 0; i < len(docs); i += maxChildren {
		end := min(i+maxChildren, len(docs))
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		ids := make([]string, 0, end-i)
		for _, d := range docs[i:end] {
			// The child resets the document itself, under its ingest workflow id.
			cwo := workflow.ChildWorkflowOptions{WorkflowID: IngestWorkflowID(d.DocumentID)}
			childCtx := workflow.WithChildOptions(ctx, cwo)
			f := workflow.ExecuteChildWorkflow(childCtx, DocumentIngestWorkflow, DocumentIngestInput{
				DocumentID:      d.DocumentID,
				Filename:        d.Filename,
				Locator:         d.Locator,
				Reset:           true,
				ResetFrom:       list.Status,
				StaleOnly:       list.StaleOnly,
				ActivityTimeout: input.ActivityTimeout,
				Retry:           input.Retry,
			})
			futures = append(futures, f)
			ids = append(ids, d.DocumentID)
			result.PerDoc[d.DocumentID] = "processing"
		}
		for idx, f := range futures {
			var child DocumentIngestResult
			id := ids[idx]
			if err := f.Get(ctx, &child); err != nil {
				if temporal.IsWorkflowExecutionAlreadyStartedError(err) {
					// An upload of the same document is being ingested right now.
					result.Skipped++
					result.PerDoc[id] = "busy"
					continue
				}
				result.Failed++
				result.PerDoc[id] = "failed"
				continue
			}
			switch {
			case child.Skipped:
				result.Skipped++
				result.PerDoc[id] = "skipped"
			case child.Status == models.StatusIndexed:
				result.Indexed++
				result.PerDoc[id] = string(child.Status)
			default:
				result.Failed++
				result.PerDoc[id] = string(child.Status)
			}
		}
	}
	logger.Info("backfill finished", "mode", mode, "total", result.Total, "indexed", result.Indexed, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

// describeFailure extracts the taxonomy type and a readable detail from an
// activity failure.
func describeFailure(err error) (string, string) {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		t := appErr.Type()
		if util.ErrorFromType(t) == nil {
			t = util.TypeInternal
		}
		return t, util.DisplaySnippet(appErr.Error(), maxDetailRunes)
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return util.TypeCollaboratorTimeout, util.DisplaySnippet(timeoutErr.Error(), maxDetailRunes)
	}
	if temporal.IsCanceledError(err) {
		return util.TypeInternal, "ingestion canceled"
	}
	return util.TypeInternal, util.DisplaySnippet(err.Error(), maxDetailRunes)
}

// cleanupPolicy retries without an attempt limit; the activity's
// ScheduleToCloseTimeout bounds it instead.
func cleanupPolicy(rc retry.RetryConfig) *temporal.RetryPolicy {
	p := rc.ToTemporalPolicy()
	p.MaximumAttempts = 0
	p.MaximumInterval = max(p.MaximumInterval, cleanupMaxBackoff)
	return p
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
