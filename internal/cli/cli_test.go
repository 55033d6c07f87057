package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"docrag/internal/models"
	"docrag/internal/util"
	"docrag/internal/workflows"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

func TestPrintDocument(t *testing.T) {
	cmd, buf := captured()
	require.NoError(t, printDocument(cmd, models.Document{
		DocumentID:         "abc",
		Filename:           "manual.pdf",
		Status:             models.StatusIndexed,
		ChunkCount:         4,
		EmbeddingModel:     "text-embedding-3-small",
		ExtractionStrategy: models.StrategyOCR,
	}, false))
	out := buf.String()
	assert.Contains(t, out, "abc  manual.pdf")
	assert.Contains(t, out, "status:   indexed")
	assert.Contains(t, out, "chunks:   4 (text-embedding-3-small, ocr)")

	cmd, buf = captured()
	require.NoError(t, printDocument(cmd, models.Document{
		DocumentID:  "scan",
		Status:      models.StatusFailed,
		ErrorType:   util.TypeNoExtractableText,
		ErrorDetail: "all pages blank",
	}, false))
	assert.Contains(t, buf.String(), "error:    NoExtractableText: all pages blank")
	assert.NotContains(t, buf.String(), "chunks:")
}

func TestPrintAnswerJSON(t *testing.T) {
	cmd, buf := captured()
	ans := models.Answer{
		Text:        "Every 90 days [C1].",
		Sources:     []models.Source{{DocumentID: "abc", Filename: "manual.pdf", Ordinal: 2, Score: 0.9}},
		GeneratedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
	require.NoError(t, printAnswer(cmd, ans, true))
	var got models.Answer
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, ans.Text, got.Text)
	assert.Equal(t, 2, got.Sources[0].Ordinal)
}

func TestPrintAnswerListsSources(t *testing.T) {
	cmd, buf := captured()
	require.NoError(t, printAnswer(cmd, models.Answer{
		Text:    "Check the gauge [C1].",
		Sources: []models.Source{{Filename: "manual.pdf", Ordinal: 1, Score: 0.5, DownloadURL: "https://x/manual.pdf"}},
	}, false))
	assert.Contains(t, buf.String(), "[C1] manual.pdf (chunk 1, 0.500)")
	assert.Contains(t, buf.String(), "https://x/manual.pdf")
}

func TestPrintBackfillSortsDocuments(t *testing.T) {
	cmd, buf := captured()
	require.NoError(t, printBackfill(cmd, workflows.BackfillResult{
		Mode:    workflows.BackfillRetryFailed,
		Total:   2,
		Indexed: 1,
		Failed:  1,
		PerDoc:  map[string]string{"b": "failed", "a": "indexed"},
	}, false))
	out := buf.String()
	assert.Contains(t, out, "RETRY_FAILED: 2 documents, 1 indexed, 1 failed")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("  a  indexed")), bytes.Index(buf.Bytes(), []byte("  b  failed")))
}

func TestPrintBackfillReportsSkipped(t *testing.T) {
	cmd, buf := captured()
	require.NoError(t, printBackfill(cmd, workflows.BackfillResult{
		Mode:    workflows.BackfillReembedStale,
		Total:   2,
		Indexed: 1,
		Skipped: 1,
		PerDoc:  map[string]string{"a": "indexed", "b": "busy"},
	}, false))
	assert.Contains(t, buf.String(), "REEMBED_STALE: 2 documents, 1 indexed, 0 failed, 1 skipped\n")
	assert.Contains(t, buf.String(), "  b  busy")
}

func TestBackfillRejectsUnknownMode(t *testing.T) {
	root := NewRootCmd()
	_, buf := captured()
	root.SetOut(buf)
	root.SetArgs([]string{"backfill", "--mode", "EVERYTHING"})
	err := root.Execute()
	require.ErrorIs(t, err, util.ErrInvalidQuery)
	assert.Contains(t, err.Error(), "RETRY_FAILED")
}

func TestCommandArgs(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"status"})
	require.Error(t, root.Execute())

	root = NewRootCmd()
	root.SetArgs([]string{"ingest"})
	require.Error(t, root.Execute())
}
