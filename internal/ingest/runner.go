package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docrag/internal/util"
	"docrag/internal/workflows"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
)

// Runner executes the ingestion workflow for one document.
type Runner interface {
	// AwaitIdle returns once no ingestion run for documentID is open.
	AwaitIdle(ctx context.Context, documentID string) error
	// Run starts the ingestion and waits for its result. When ctx ends
	// first the run is canceled.
	Run(ctx context.Context, in workflows.DocumentIngestInput) (workflows.DocumentIngestResult, error)
}

const (
	cancelTimeout = 10 * time.Second
	startAttempts = 3
)

type TemporalRunner struct {
	client    client.Client
	taskQueue string
}

func NewTemporalRunner(c client.Client, taskQueue string) *TemporalRunner {
	return &TemporalRunner{client: c, taskQueue: taskQueue}
}

func (r *TemporalRunner) AwaitIdle(ctx context.Context, documentID string) error {
	id := workflows.IngestWorkflowID(documentID)
	desc, err := r.client.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("describe %s: %w", id, err)
	}
	if desc.GetWorkflowExecutionInfo().GetStatus() != enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
		return nil
	}
	// The outcome of the previous run does not matter, only that it ended.
	if err := r.client.GetWorkflow(ctx, id, "").Get(ctx, nil); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (r *TemporalRunner) Run(ctx context.Context, in workflows.DocumentIngestInput) (workflows.DocumentIngestResult, error) {
	id := workflows.IngestWorkflowID(in.DocumentID)
	opts := client.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                r.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	var (
		run client.WorkflowRun
		err error
	)
	for attempt := 0; attempt < startAttempts; attempt++ {
		run, err = r.client.ExecuteWorkflow(ctx, opts, workflows.DocumentIngestWorkflow, in)
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if !errors.As(err, &started) {
			break
		}
		// Another process won the race for this document.
		if err := r.AwaitIdle(ctx, in.DocumentID); err != nil {
			return workflows.DocumentIngestResult{}, err
		}
	}
	if err != nil {
		return workflows.DocumentIngestResult{}, fmt.Errorf("start %s: %w", id, err)
	}

	var res workflows.DocumentIngestResult
	if err := run.Get(ctx, &res); err != nil {
		if ctx.Err() != nil {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
			defer cancel()
			_ = r.client.CancelWorkflow(cctx, run.GetID(), run.GetRunID())
			return res, ctx.Err()
		}
		return res, workflowError(id, err)
	}
	return res, nil
}

// workflowError keeps the failure class of a workflow that could not finish,
// such as one whose failed-document cleanup never succeeded.
func workflowError(id string, err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		if sentinel := util.ErrorFromType(appErr.Type()); sentinel != nil {
			return fmt.Errorf("ingest workflow %s: %w: %w", id, sentinel, err)
		}
	}
	return fmt.Errorf("ingest workflow %s: %w", id, err)
}
