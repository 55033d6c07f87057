package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"docrag/internal/config"
	"docrag/internal/models"
	"docrag/internal/util"

	"github.com/ledongthuc/pdf"
)

// pdfMagicWindow is how far into the file the %PDF- header may appear.
// Some producers prepend junk bytes before the header.
const pdfMagicWindow = 1024

type Result struct {
	Text     string                    `json:"text"`
	Strategy models.ExtractionStrategy `json:"strategy"`
	Pages    int                       `json:"pages"`
}

// Extractor turns PDF bytes into normalized text. It reads the embedded text
// layer first and falls back to OCR when the layer carries too little text.
type Extractor struct {
	cfg    config.ExtractConfig
	runner CommandRunner
}

func New(cfg config.ExtractConfig) *Extractor {
	return NewWithRunner(cfg, execRunner{})
}

// NewWithRunner is New with a custom command runner for the OCR tools.
func NewWithRunner(cfg config.ExtractConfig, runner CommandRunner) *Extractor {
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 1
	}
	if cfg.OCRDPI <= 0 {
		cfg.OCRDPI = 200
	}
	if cfg.OCRLanguage == "" {
		cfg.OCRLanguage = "eng"
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}
	return &Extractor{cfg: cfg, runner: runner}
}

// ValidatePDF reports ErrInvalidFormat unless b parses as a PDF with at
// least one page.
func ValidatePDF(b []byte) error {
	_, err := openPDF(b)
	return err
}

func (e *Extractor) Extract(ctx context.Context, b []byte) (Result, error) {
	r, err := openPDF(b)
	if err != nil {
		return Result{}, err
	}
	pages := r.NumPage()

	text, err := textLayer(r)
	if err == nil && util.CountNonSpace(text) >= e.cfg.MinTextChars {
		return Result{Text: text, Strategy: models.StrategyTextLayer, Pages: pages}, nil
	}
	if !e.cfg.OCREnabled {
		return Result{}, fmt.Errorf("%w: text layer below %d characters and ocr disabled", util.ErrNoExtractableText, e.cfg.MinTextChars)
	}

	ocrText, ocrErr := e.ocr(ctx, b)
	if ocrErr != nil {
		// Timeouts and cancellation are worth another attempt; any other OCR
		// failure leaves the text layer as the better result, which is too short.
		if ctx.Err() != nil || errors.Is(ocrErr, util.ErrCollaboratorTimeout) {
			return Result{}, ocrErr
		}
		return Result{}, fmt.Errorf("%w: text layer has %d characters, ocr failed: %w",
			util.ErrNoExtractableText, util.CountNonSpace(text), ocrErr)
	}
	if util.CountNonSpace(ocrText) < e.cfg.MinTextChars {
		return Result{}, fmt.Errorf("%w: ocr produced %d characters", util.ErrNoExtractableText, util.CountNonSpace(ocrText))
	}
	return Result{Text: ocrText, Strategy: models.StrategyOCR, Pages: pages}, nil
}

func openPDF(b []byte) (r *pdf.Reader, err error) {
	head := b
	if len(head) > pdfMagicWindow {
		head = head[:pdfMagicWindow]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", util.ErrInvalidFormat)
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("%w: %v", util.ErrInvalidFormat, p)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidFormat, err)
	}
	if r.NumPage() == 0 {
		return nil, fmt.Errorf("%w: no pages", util.ErrInvalidFormat)
	}
	return r, nil
}

// textLayer concatenates the plain text of every page, separated by blank
// lines so page breaks survive as paragraph boundaries.
func textLayer(r *pdf.Reader) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("read text layer: %v", p)
		}
	}()
	fonts := make(map[string]*pdf.Font)
	parts := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := p.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if s := strings.TrimSpace(pageText); s != "" {
			parts = append(parts, s)
		}
	}
	return util.NormalizeText(strings.Join(parts, "\n\n")), nil
}
