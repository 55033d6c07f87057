// Package testutil builds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// PDF renders one page per entry of pages. An empty entry yields a page with
// no text layer, which is how scanned documents look to the extractor.
func PDF(t testing.TB, pages ...string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		if text != "" {
			doc.MultiCell(0, 6, text, "", "L", false)
		}
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("render pdf fixture: %v", err)
	}
	return buf.Bytes()
}

// ManualPDF is a two-page document with enough text to index.
func ManualPDF(t testing.TB) []byte {
	return PDF(t,
		"Pump maintenance manual. Replace the intake filter every 90 days. "+
			"Check the pressure gauge before starting the pump and log the reading.",
		"Troubleshooting. If the pump vibrates, inspect the mounting bolts and the impeller "+
			"for damage. Warranty claims require the serial number printed on the housing.",
	)
}
