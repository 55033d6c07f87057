package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"docrag/internal/util"
)

// ErrOCRToolNotFound is returned when pdftoppm or tesseract is not installed.
var ErrOCRToolNotFound = errors.New("ocr tool not found")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOCRToolNotFound, name)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// ocr rasterizes every page with pdftoppm and runs tesseract over the
// images. Scratch files live in a private temp dir removed on return.
func (e *Extractor) ocr(ctx context.Context, b []byte) (string, error) {
	dir, err := os.MkdirTemp("", "docrag-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, b, 0o600); err != nil {
		return "", fmt.Errorf("ocr stage input: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	if _, err := e.run(ctx, e.cfg.PdftoppmPath, "-r", strconv.Itoa(e.cfg.OCRDPI), "-png", input, prefix); err != nil {
		return "", fmt.Errorf("rasterize pdf: %w", err)
	}
	images, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", fmt.Errorf("list page images: %w", err)
	}
	if len(images) == 0 {
		return "", fmt.Errorf("%w: rasterizer produced no pages", util.ErrNoExtractableText)
	}
	sortPages(images)

	parts := make([]string, 0, len(images))
	for _, img := range images {
		out, err := e.run(ctx, e.cfg.TesseractPath, img, "stdout", "-l", e.cfg.OCRLanguage)
		if err != nil {
			return "", fmt.Errorf("ocr %s: %w", filepath.Base(img), err)
		}
		if s := strings.TrimSpace(string(out)); s != "" {
			parts = append(parts, s)
		}
	}
	return util.NormalizeText(strings.Join(parts, "\n\n")), nil
}

func (e *Extractor) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if e.cfg.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.OCRTimeout)
		defer cancel()
	}
	out, err := e.runner.Run(ctx, name, args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrCollaboratorTimeout, name, err)
	}
	return out, err
}

// sortPages orders pdftoppm output by page number. Its zero padding depends
// on the page count, so a plain string sort is not enough.
func sortPages(paths []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		i := strings.LastIndexByte(base, '-')
		n, err := strconv.Atoi(base[i+1:])
		if err != nil {
			return 0
		}
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}
