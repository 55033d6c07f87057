package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"docrag/internal/config"
	"docrag/internal/models"
	"docrag/internal/testutil"
	"docrag/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageRunner fakes pdftoppm by writing empty page images and tesseract by
// returning canned text per page.
type pageRunner struct {
	pages    int
	text     map[string]string
	err      error
	calls    []string
	scratch  string
	blockFor time.Duration
}

func (m *pageRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, name)
	if m.err != nil {
		return nil, m.err
	}
	if m.blockFor > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.blockFor):
		}
	}
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		m.scratch = filepath.Dir(prefix)
		for i := 1; i <= m.pages; i++ {
			p := prefix + "-" + strconv.Itoa(i) + ".png"
			if err := os.WriteFile(p, nil, 0o600); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "tesseract":
		return []byte(m.text[strings.TrimSuffix(filepath.Base(args[0]), ".png")]), nil
	}
	return nil, errors.New("unexpected command " + name)
}

func testConfig() config.ExtractConfig {
	return config.ExtractConfig{
		MinTextChars: 20,
		OCREnabled:   true,
		OCRLanguage:  "eng",
		OCRDPI:       150,
		OCRTimeout:   time.Second,
	}
}

func TestValidatePDF(t *testing.T) {
	require.NoError(t, ValidatePDF(testutil.ManualPDF(t)))

	err := ValidatePDF([]byte("hello, this is plain text"))
	require.ErrorIs(t, err, util.ErrInvalidFormat)

	err = ValidatePDF(nil)
	require.ErrorIs(t, err, util.ErrInvalidFormat)
}

func TestValidatePDF_CorruptedBody(t *testing.T) {
	b := testutil.ManualPDF(t)
	corrupt := append([]byte{}, b[:64]...)
	corrupt = append(corrupt, []byte("garbage garbage garbage")...)

	err := ValidatePDF(corrupt)
	require.ErrorIs(t, err, util.ErrInvalidFormat)
}

func TestExtract_TextLayer(t *testing.T) {
	runner := &pageRunner{}
	e := NewWithRunner(testConfig(), runner)

	res, err := e.Extract(context.Background(), testutil.ManualPDF(t))
	require.NoError(t, err)
	assert.Equal(t, models.StrategyTextLayer, res.Strategy)
	assert.Equal(t, 2, res.Pages)
	assert.Contains(t, res.Text, "Pump maintenance manual")
	assert.Contains(t, res.Text, "Troubleshooting")
	assert.Empty(t, runner.calls, "ocr must not run when the text layer is usable")
}

func TestExtract_FallsBackToOCR(t *testing.T) {
	runner := &pageRunner{
		pages: 2,
		text: map[string]string{
			"page-1": "Scanned invoice number 4411\n",
			"page-2": "Total due within thirty days\n",
		},
	}
	e := NewWithRunner(testConfig(), runner)

	res, err := e.Extract(context.Background(), testutil.PDF(t, "", ""))
	require.NoError(t, err)
	assert.Equal(t, models.StrategyOCR, res.Strategy)
	assert.Equal(t, "Scanned invoice number 4411\n\nTotal due within thirty days", res.Text)
	assert.Equal(t, []string{"pdftoppm", "tesseract", "tesseract"}, runner.calls)

	_, statErr := os.Stat(runner.scratch)
	assert.True(t, os.IsNotExist(statErr), "scratch dir must be removed")
}

func TestExtract_OCRDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.OCREnabled = false
	e := NewWithRunner(cfg, &pageRunner{})

	_, err := e.Extract(context.Background(), testutil.PDF(t, ""))
	require.ErrorIs(t, err, util.ErrNoExtractableText)
}

func TestExtract_OCRFindsNothing(t *testing.T) {
	runner := &pageRunner{pages: 1, text: map[string]string{"page-1": "  \n"}}
	e := NewWithRunner(testConfig(), runner)

	_, err := e.Extract(context.Background(), testutil.PDF(t, ""))
	require.ErrorIs(t, err, util.ErrNoExtractableText)
}

func TestExtract_OCRToolMissing(t *testing.T) {
	runner := &pageRunner{err: ErrOCRToolNotFound}
	e := NewWithRunner(testConfig(), runner)

	_, err := e.Extract(context.Background(), testutil.PDF(t, ""))
	require.ErrorIs(t, err, ErrOCRToolNotFound)
	require.ErrorIs(t, err, util.ErrNoExtractableText)
}

func TestExtract_OCRCommandFails(t *testing.T) {
	runner := &pageRunner{err: errors.New("tesseract: exit status 1")}
	e := NewWithRunner(testConfig(), runner)

	_, err := e.Extract(context.Background(), testutil.PDF(t, "Short"))
	require.ErrorIs(t, err, util.ErrNoExtractableText)
	assert.Equal(t, util.TypeNoExtractableText, util.ErrorType(err))
	assert.False(t, util.Retryable(err))
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Contains(t, err.Error(), "text layer has")
}

func TestExtract_OCRTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.OCRTimeout = 10 * time.Millisecond
	runner := &pageRunner{pages: 1, blockFor: time.Second}
	e := NewWithRunner(cfg, runner)

	_, err := e.Extract(context.Background(), testutil.PDF(t, ""))
	require.ErrorIs(t, err, util.ErrCollaboratorTimeout)
	assert.Equal(t, util.TypeCollaboratorTimeout, util.ErrorType(err))
}

func TestExtract_InvalidBytes(t *testing.T) {
	e := NewWithRunner(testConfig(), &pageRunner{})
	_, err := e.Extract(context.Background(), []byte("%PDF-1.4 truncated"))
	require.ErrorIs(t, err, util.ErrInvalidFormat)
}

func TestSortPages(t *testing.T) {
	paths := []string{"/t/page-10.png", "/t/page-2.png", "/t/page-1.png"}
	sortPages(paths)
	assert.Equal(t, []string{"/t/page-1.png", "/t/page-2.png", "/t/page-10.png"}, paths)
}
