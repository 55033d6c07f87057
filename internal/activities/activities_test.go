package activities

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docrag/internal/blob"
	"docrag/internal/models"
	"docrag/internal/providers"
	"docrag/internal/storage"
	"docrag/internal/testutil"
	"docrag/internal/util"
	"docrag/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

type harness struct {
	env   *testsuite.TestActivityEnvironment
	acts  *Activities
	docs  *storage.MemoryDocumentStore
	blobs *blob.MemoryStore
	index *vector.MemoryIndex
}

func newHarness(t *testing.T, dataOut string) *harness {
	t.Helper()
	cfg := testutil.Config()
	cfg.DataOutRoot = dataOut
	h := &harness{
		docs:  storage.NewMemoryDocumentStore(),
		blobs: blob.NewMemoryStore(cfg.Blob.URLTTL),
		index: vector.NewMemoryIndex(),
	}
	acts, err := New(cfg, Deps{
		Docs:     h.docs,
		Blobs:    h.blobs,
		Index:    h.index,
		Embedder: providers.NewMockProvider(cfg.Embed.Dim),
	})
	require.NoError(t, err)
	h.acts = acts

	var suite testsuite.WorkflowTestSuite
	h.env = suite.NewTestActivityEnvironment()
	h.env.RegisterActivity(acts)
	return h
}

func (h *harness) upload(t *testing.T, id string, data []byte) models.Document {
	t.Helper()
	loc, err := h.blobs.Put(context.Background(), id+".pdf", data, "application/pdf")
	require.NoError(t, err)
	d, err := h.docs.Register(context.Background(), models.Document{DocumentID: id, Filename: id + ".pdf", Locator: loc})
	require.NoError(t, err)
	return d
}

func requireAppError(t *testing.T, err error, wantType string, nonRetryable bool) {
	t.Helper()
	require.Error(t, err)
	var ae *temporal.ApplicationError
	require.True(t, errors.As(err, &ae), "expected application error, got %T: %v", err, err)
	assert.Equal(t, wantType, ae.Type())
	assert.Equal(t, nonRetryable, ae.NonRetryable())
}

// Registering the struct turns every exported method into an activity, so
// each one must have an activity signature.
func TestActivitiesRegisterAsStruct(t *testing.T) {
	acts, err := New(testutil.Config(), Deps{
		Docs:     storage.NewMemoryDocumentStore(),
		Blobs:    blob.NewMemoryStore(0),
		Index:    vector.NewMemoryIndex(),
		Embedder: providers.NewMockProvider(8),
	})
	require.NoError(t, err)

	var suite testsuite.WorkflowTestSuite
	require.NotPanics(t, func() {
		suite.NewTestWorkflowEnvironment().RegisterActivity(acts)
	})
	require.NotPanics(t, func() {
		suite.NewTestActivityEnvironment().RegisterActivity(acts)
	})
}

func TestExtractChunkEmbedAndIndex(t *testing.T) {
	h := newHarness(t, "")
	d := h.upload(t, "doc-1", testutil.ManualPDF(t))

	val, err := h.env.ExecuteActivity(h.acts.ExtractTextActivity, ExtractTextInput{DocumentID: d.DocumentID, Locator: d.Locator})
	require.NoError(t, err)
	var ext ExtractTextOutput
	require.NoError(t, val.Get(&ext))
	assert.Equal(t, models.StrategyTextLayer, ext.Strategy)
	assert.NotEmpty(t, strings.TrimSpace(ext.Text))

	val, err = h.env.ExecuteActivity(h.acts.ChunkTextActivity, ChunkTextInput{DocumentID: d.DocumentID, Text: ext.Text})
	require.NoError(t, err)
	var chunks ChunkTextOutput
	require.NoError(t, val.Get(&chunks))
	require.NotEmpty(t, chunks.Chunks)
	for i, c := range chunks.Chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, d.DocumentID, c.DocumentID)
	}

	val, err = h.env.ExecuteActivity(h.acts.EmbedAndIndexChunksActivity, EmbedAndIndexChunksInput{DocumentID: d.DocumentID, Chunks: chunks.Chunks})
	require.NoError(t, err)
	var idx EmbedAndIndexChunksOutput
	require.NoError(t, val.Get(&idx))
	assert.Equal(t, "mock-embed-256", idx.EmbeddingModel)
	assert.Equal(t, len(chunks.Chunks), idx.ChunkCount)
	assert.Equal(t, len(chunks.Chunks), h.index.Count(d.DocumentID))

	_, err = h.env.ExecuteActivity(h.acts.DeleteDocumentVectorsActivity, DeleteDocumentVectorsInput{DocumentID: d.DocumentID})
	require.NoError(t, err)
	assert.Zero(t, h.index.Count(d.DocumentID))
}

func TestExtractRejectsNonPDF(t *testing.T) {
	h := newHarness(t, "")
	d := h.upload(t, "not-a-pdf", []byte("plain text, not a pdf"))

	_, err := h.env.ExecuteActivity(h.acts.ExtractTextActivity, ExtractTextInput{DocumentID: d.DocumentID, Locator: d.Locator})
	requireAppError(t, err, util.TypeInvalidFormat, true)
}

func TestChunkEmptyTextIsNoExtractableText(t *testing.T) {
	h := newHarness(t, "")
	_, err := h.env.ExecuteActivity(h.acts.ChunkTextActivity, ChunkTextInput{DocumentID: "empty", Text: "   "})
	requireAppError(t, err, util.TypeNoExtractableText, true)
}

func TestUpdateStatusRejectsSkippedStep(t *testing.T) {
	h := newHarness(t, "")
	d := h.upload(t, "doc-2", testutil.ManualPDF(t))

	_, err := h.env.ExecuteActivity(h.acts.UpdateDocumentStatusActivity, UpdateDocumentStatusInput{
		DocumentID: d.DocumentID,
		Status:     models.StatusIndexed,
	})
	require.Error(t, err)
	var ae *temporal.ApplicationError
	require.True(t, errors.As(err, &ae))
	assert.True(t, ae.NonRetryable())

	_, err = h.env.ExecuteActivity(h.acts.UpdateDocumentStatusActivity, UpdateDocumentStatusInput{
		DocumentID:  d.DocumentID,
		Status:      models.StatusFailed,
		ErrorType:   util.TypeNoExtractableText,
		ErrorDetail: "blank\x00 scan",
	})
	require.NoError(t, err)
	got, err := h.docs.Get(context.Background(), d.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, util.TypeNoExtractableText, got.ErrorType)
	assert.NotContains(t, got.ErrorDetail, "\x00")
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	chunks := []models.Chunk{
		{DocumentID: "doc-3", Ordinal: 0, Text: "first", StartOffset: 0, EndOffset: 5},
		{DocumentID: "doc-3", Ordinal: 1, Text: "second", StartOffset: 5, EndOffset: 11},
	}
	_, err := h.env.ExecuteActivity(h.acts.WriteDocumentArtifactsActivity, WriteDocumentArtifactsInput{
		DocumentID:    "doc-3",
		Filename:      "doc-3.pdf",
		Chunks:        chunks,
		ProcessingLog: map[string]any{"strategy": "text-layer"},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "doc-3", "chunks.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	var first models.Chunk
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "first", first.Text)

	raw, err = os.ReadFile(filepath.Join(dir, "doc-3", "processing_log.json"))
	require.NoError(t, err)
	var log map[string]any
	require.NoError(t, json.Unmarshal(raw, &log))
	assert.Equal(t, "doc-3.pdf", log["filename"])
	assert.EqualValues(t, 2, log["chunk_count"])
	assert.Equal(t, "text-layer", log["strategy"])
}

func TestWriteArtifactsWithoutDataOut(t *testing.T) {
	h := newHarness(t, "")
	_, err := h.env.ExecuteActivity(h.acts.WriteDocumentArtifactsActivity, WriteDocumentArtifactsInput{DocumentID: "doc-4"})
	require.NoError(t, err)
}

func TestListStaleDocuments(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	for id, model := range map[string]string{"old": "text-embedding-ada-002", "current": "mock-embed-256"} {
		d := h.upload(t, id, testutil.ManualPDF(t))
		for _, s := range []models.DocumentStatus{models.StatusExtracting, models.StatusChunked} {
			require.NoError(t, h.docs.UpdateStatus(ctx, d.DocumentID, s))
		}
		require.NoError(t, h.docs.MarkIndexed(ctx, d.DocumentID, storage.IndexedInfo{EmbeddingModel: model, ChunkCount: 1}))
	}

	val, err := h.env.ExecuteActivity(h.acts.ListDocumentsActivity, ListDocumentsInput{Status: models.StatusIndexed, StaleOnly: true})
	require.NoError(t, err)
	var out ListDocumentsOutput
	require.NoError(t, val.Get(&out))
	require.Len(t, out.Documents, 1)
	assert.Equal(t, "old", out.Documents[0].DocumentID)

	val, err = h.env.ExecuteActivity(h.acts.RegisterDocumentActivity, RegisterDocumentInput{DocumentID: "old"})
	require.NoError(t, err)
	var reg RegisterDocumentOutput
	require.NoError(t, val.Get(&reg))
	assert.Equal(t, models.StatusUploaded, reg.Document.Status)
	assert.Equal(t, "old.pdf", reg.Document.Filename)
}

func TestRegisterDocumentSkipsHandledDocuments(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	d := h.upload(t, "current", testutil.ManualPDF(t))
	for _, s := range []models.DocumentStatus{models.StatusExtracting, models.StatusChunked} {
		require.NoError(t, h.docs.UpdateStatus(ctx, d.DocumentID, s))
	}
	require.NoError(t, h.docs.MarkIndexed(ctx, d.DocumentID, storage.IndexedInfo{EmbeddingModel: "mock-embed-256", ChunkCount: 1}))

	for name, in := range map[string]RegisterDocumentInput{
		"status moved on": {DocumentID: d.DocumentID, ExpectStatus: models.StatusFailed},
		"model current":   {DocumentID: d.DocumentID, ExpectStatus: models.StatusIndexed, StaleOnly: true},
	} {
		t.Run(name, func(t *testing.T) {
			val, err := h.env.ExecuteActivity(h.acts.RegisterDocumentActivity, in)
			require.NoError(t, err)
			var reg RegisterDocumentOutput
			require.NoError(t, val.Get(&reg))
			assert.True(t, reg.Skipped)
			assert.Equal(t, models.StatusIndexed, reg.Document.Status)
		})
	}

	got, err := h.docs.Get(ctx, d.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, got.Status)
	assert.Equal(t, "mock-embed-256", got.EmbeddingModel)
}
