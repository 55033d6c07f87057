package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docrag/internal/activities"
	"docrag/internal/blob"
	"docrag/internal/config"
	"docrag/internal/models"
	"docrag/internal/providers"
	"docrag/internal/storage"
	"docrag/internal/testutil"
	"docrag/internal/util"
	"docrag/internal/vector"
	"docrag/internal/workflows"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

// envRunner executes each ingestion in a fresh Temporal test environment
// with the real activities.
type envRunner struct {
	acts    *activities.Activities
	runs    atomic.Int32
	active  sync.Map
	overlap atomic.Bool
}

func (r *envRunner) AwaitIdle(context.Context, string) error { return nil }

func (r *envRunner) Run(ctx context.Context, in workflows.DocumentIngestInput) (workflows.DocumentIngestResult, error) {
	r.runs.Add(1)
	if _, busy := r.active.LoadOrStore(in.DocumentID, true); busy {
		r.overlap.Store(true)
	}
	defer r.active.Delete(in.DocumentID)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(workflows.DocumentIngestWorkflow)
	env.RegisterActivity(r.acts)
	env.ExecuteWorkflow(workflows.DocumentIngestWorkflow, in)
	if err := env.GetWorkflowError(); err != nil {
		return workflows.DocumentIngestResult{}, workflowError(workflows.IngestWorkflowID(in.DocumentID), err)
	}
	var res workflows.DocumentIngestResult
	err := env.GetWorkflowResult(&res)
	return res, err
}

// thresholdEmbedder fails every call once it has been handed failAt inputs
// in total. A zero failAt never fails.
type thresholdEmbedder struct {
	providers.Embedder
	failAt atomic.Int32
	seen   atomic.Int32
}

func (e *thresholdEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	n := e.seen.Add(int32(len(texts)))
	if at := e.failAt.Load(); at > 0 && n >= at {
		return nil, errors.New("embedding provider returned 500")
	}
	return e.Embedder.Embed(ctx, texts)
}

type failingRegister struct {
	*storage.MemoryDocumentStore
}

func (failingRegister) Register(context.Context, models.Document) (models.Document, error) {
	return models.Document{}, errors.New("metadata store unavailable")
}

type fixture struct {
	cfg      config.Config
	docs     *storage.MemoryDocumentStore
	blobs    *blob.MemoryStore
	index    *vector.MemoryIndex
	embedder *thresholdEmbedder
	runner   *envRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testutil.Config()
	f := &fixture{
		cfg:      cfg,
		docs:     storage.NewMemoryDocumentStore(),
		blobs:    blob.NewMemoryStore(time.Hour),
		index:    vector.NewMemoryIndex(),
		embedder: &thresholdEmbedder{Embedder: providers.NewMockProvider(cfg.Embed.Dim)},
	}
	acts, err := activities.New(cfg, activities.Deps{
		Docs:     f.docs,
		Blobs:    f.blobs,
		Index:    f.index,
		Embedder: f.embedder,
	})
	require.NoError(t, err)
	f.runner = &envRunner{acts: acts}
	return f
}

func (f *fixture) service() *Service {
	return NewService(f.blobs, f.docs, f.runner, f.cfg)
}

func TestIngestIndexesDocument(t *testing.T) {
	f := newFixture(t)
	pdf := testutil.ManualPDF(t)

	doc, err := f.service().Ingest(context.Background(), pdf, "../Pump Manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, util.ContentID(pdf), doc.DocumentID)
	assert.Equal(t, "Pump_Manual.pdf", doc.Filename)
	assert.Equal(t, models.StatusIndexed, doc.Status)
	assert.Equal(t, "mock-embed-256", doc.EmbeddingModel)
	assert.Greater(t, doc.ChunkCount, 1)
	assert.Equal(t, doc.ChunkCount, f.index.Count(doc.DocumentID))

	stored, err := f.blobs.Get(context.Background(), doc.Locator)
	require.NoError(t, err)
	assert.Equal(t, pdf, stored)
}

func TestIngestRejectsNonPDF(t *testing.T) {
	f := newFixture(t)
	_, err := f.service().Ingest(context.Background(), []byte("just some text"), "notes.txt")
	require.ErrorIs(t, err, util.ErrInvalidFormat)
	assert.Zero(t, f.blobs.Len())
	assert.Zero(t, f.runner.runs.Load())
}

func TestIngestRejectsOversizedUpload(t *testing.T) {
	f := newFixture(t)
	f.cfg.Ingest.MaxUploadBytes = 10
	_, err := f.service().Ingest(context.Background(), testutil.ManualPDF(t), "manual.pdf")
	require.ErrorIs(t, err, util.ErrInvalidFormat)
	assert.Zero(t, f.blobs.Len())
}

func TestIngestWithoutTextReportsFailure(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	doc, err := svc.Ingest(context.Background(), testutil.PDF(t, ""), "scan.pdf")
	require.ErrorIs(t, err, util.ErrNoExtractableText)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, util.TypeNoExtractableText, doc.ErrorType)

	got, err := svc.Document(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Zero(t, f.index.Count(doc.DocumentID))
}

func TestIngestEmbeddingFailureRemovesPreviousVectors(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()
	pdf := testutil.ManualPDF(t)

	first, err := svc.Ingest(ctx, pdf, "manual.pdf")
	require.NoError(t, err)
	require.GreaterOrEqual(t, first.ChunkCount, 3)
	require.Equal(t, first.ChunkCount, f.index.Count(first.DocumentID))

	f.embedder.seen.Store(0)
	f.embedder.failAt.Store(3)
	doc, err := svc.Ingest(ctx, pdf, "manual.pdf")
	require.ErrorIs(t, err, util.ErrEmbeddingFailure)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, util.TypeEmbeddingFailure, doc.ErrorType)
	assert.Zero(t, doc.ChunkCount)
	assert.Empty(t, doc.EmbeddingModel)
	assert.Zero(t, f.index.Count(doc.DocumentID))
}

func TestWorkflowErrorKeepsFailureClass(t *testing.T) {
	err := workflowError("ingest-abc", temporal.NewNonRetryableApplicationError("remove vectors", util.TypeIndexError, nil))
	require.ErrorIs(t, err, util.ErrIndex)
	assert.Contains(t, err.Error(), "ingest-abc")

	err = workflowError("ingest-abc", errors.New("worker gone"))
	require.NotErrorIs(t, err, util.ErrIndex)
	assert.Equal(t, util.TypeInternal, util.ErrorType(err))
}

func TestIngestDeletesNewBlobWhenRegisterFails(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.blobs, failingRegister{f.docs}, f.runner, f.cfg)

	_, err := svc.Ingest(context.Background(), testutil.ManualPDF(t), "manual.pdf")
	require.ErrorContains(t, err, "metadata store unavailable")
	assert.Zero(t, f.blobs.Len())
	assert.Zero(t, f.runner.runs.Load())
}

func TestIngestSameContentReplacesDocument(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	pdf := testutil.ManualPDF(t)

	first, err := svc.Ingest(context.Background(), pdf, "manual.pdf")
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), pdf, "manual-v2.pdf")
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, "manual-v2.pdf", second.Filename)
	assert.Equal(t, 1, f.blobs.Len())
	assert.Equal(t, second.ChunkCount, f.index.Count(second.DocumentID))
}

func TestIngestSerializesSameDocument(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	pdf := testutil.ManualPDF(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Ingest(context.Background(), pdf, "manual.pdf")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 4, f.runner.runs.Load())
	assert.False(t, f.runner.overlap.Load(), "runs for one document must not overlap")
	assert.Zero(t, svc.locks.size())
}

type blockingRunner struct{}

func (blockingRunner) AwaitIdle(context.Context, string) error { return nil }

func (blockingRunner) Run(ctx context.Context, _ workflows.DocumentIngestInput) (workflows.DocumentIngestResult, error) {
	<-ctx.Done()
	return workflows.DocumentIngestResult{}, ctx.Err()
}

func TestIngestCallerCancellation(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.blobs, f.docs, blockingRunner{}, f.cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Ingest(ctx, testutil.ManualPDF(t), "manual.pdf")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	other, err := k.Lock(context.Background(), "b")
	require.NoError(t, err, "different keys do not contend")
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	again, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()
	assert.Zero(t, k.size())
}
