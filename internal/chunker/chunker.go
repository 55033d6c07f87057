package chunker

import (
	"fmt"
	"strings"
)

// Separator classes in order of preference. The first class with a match
// inside the boundary window decides where a window ends.
var separators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

type Span struct {
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

type Chunker struct {
	size     int
	overlap  int
	boundary int
}

type Option func(*Chunker)

// WithBoundaryWindow sets how many trailing runes of a window are searched
// for a separator. Zero means the whole window.
func WithBoundaryWindow(n int) Option {
	return func(c *Chunker) {
		c.boundary = n
	}
}

func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	c := &Chunker{size: size, overlap: overlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.boundary <= 0 || c.boundary > size {
		c.boundary = size
	}
	return c, nil
}

// Split cuts text into windows of at most size runes. Offsets are rune
// offsets into text, end exclusive. Each window after the first starts
// exactly overlap runes before the previous end, so dropping that prefix
// from every later span and concatenating gives back text.
func (c *Chunker) Split(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)

	var out []Span
	start := 0
	for {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.cut(runes, start, end)
		}
		out = append(out, Span{
			Ordinal: len(out),
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
		})
		if end == n {
			return out
		}
		start = end - c.overlap
	}
}

// cut returns the window end for runes[start:limit]. Candidates must leave
// the window longer than the overlap so the next start moves forward.
func (c *Chunker) cut(runes []rune, start, limit int) int {
	lo := limit - c.boundary
	if floor := start + c.overlap + 1; lo < floor {
		lo = floor
	}
	for _, class := range separators {
		best := -1
		for _, sep := range class {
			if e := lastEnd(runes, lo, limit, []rune(sep)); e > best {
				best = e
			}
		}
		if best > 0 {
			return best
		}
	}
	return limit
}

// lastEnd finds the last occurrence of sep fully inside runes[:limit] whose
// end is at least lo, and returns the offset just after it, or -1.
func lastEnd(runes []rune, lo, limit int, sep []rune) int {
	for e := limit; e >= lo && e-len(sep) >= 0; e-- {
		if hasAt(runes, e-len(sep), sep) {
			return e
		}
	}
	return -1
}

func hasAt(runes []rune, i int, sep []rune) bool {
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
