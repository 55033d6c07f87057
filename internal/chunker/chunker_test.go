package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitHardCut(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)

	spans := c.Split("abcdefghijklmnopqrstuvwxyz")
	require.Len(t, spans, 3)
	require.Equal(t, Span{Ordinal: 0, Text: "abcdefghij", Start: 0, End: 10}, spans[0])
	require.Equal(t, Span{Ordinal: 1, Text: "ijklmnopqr", Start: 8, End: 18}, spans[1])
	require.Equal(t, Span{Ordinal: 2, Text: "qrstuvwxyz", Start: 16, End: 26}, spans[2])
}

func TestSplitPrefersParagraphBreak(t *testing.T) {
	c, err := New(20, 0)
	require.NoError(t, err)

	spans := c.Split("aaaa bbbb\n\ncccc. dddd eeee")
	require.Len(t, spans, 2)
	require.Equal(t, "aaaa bbbb\n\n", spans[0].Text)
	require.Equal(t, "cccc. dddd eeee", spans[1].Text)
	require.Equal(t, 11, spans[1].Start)
}

func TestSplitPrefersSentenceOverSpace(t *testing.T) {
	c, err := New(15, 0)
	require.NoError(t, err)

	spans := c.Split("one two. three four five")
	require.Len(t, spans, 2)
	require.Equal(t, "one two. ", spans[0].Text)
	require.Equal(t, "three four five", spans[1].Text)
}

func TestSplitBoundaryWindowLimitsSearch(t *testing.T) {
	// The only space is outside the last 3 runes, so the window is cut hard.
	c, err := New(10, 0, WithBoundaryWindow(3))
	require.NoError(t, err)

	spans := c.Split("ab cdefghijklmn")
	require.Equal(t, "ab cdefghi", spans[0].Text)
}

func TestSplitEmpty(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)
	require.Empty(t, c.Split(""))
	require.Empty(t, c.Split(" \n\t "))
}

func TestSplitReconstructsText(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Le café ouvre à huit heures. ")
		if i%7 == 0 {
			b.WriteString("\n\n")
		}
		if i%5 == 0 {
			b.WriteString("Überprüfen Sie die Lüftung!\n")
		}
	}
	text := b.String()

	const size, overlap = 50, 10
	c, err := New(size, overlap, WithBoundaryWindow(20))
	require.NoError(t, err)
	spans := c.Split(text)
	require.NotEmpty(t, spans)

	runes := []rune(text)
	var rebuilt strings.Builder
	for i, s := range spans {
		require.Equal(t, i, s.Ordinal)
		require.LessOrEqual(t, len([]rune(s.Text)), size)
		require.Equal(t, string(runes[s.Start:s.End]), s.Text)
		if i == 0 {
			require.Equal(t, 0, s.Start)
			rebuilt.WriteString(s.Text)
			continue
		}
		require.Equal(t, spans[i-1].End-overlap, s.Start)
		rebuilt.WriteString(string([]rune(s.Text)[overlap:]))
	}
	require.Equal(t, len(runes), spans[len(spans)-1].End)
	require.Equal(t, text, rebuilt.String())
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	_, err := New(0, 0)
	require.Error(t, err)
	_, err = New(10, -1)
	require.Error(t, err)
	_, err = New(10, 10)
	require.Error(t, err)
}
