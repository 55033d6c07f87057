package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisplaySnippetCutsAndCleans(t *testing.T) {
	out := DisplaySnippet("Hello\x00   world \n\t again", 100)
	require.Equal(t, "Hello world again", out)

	long := DisplaySnippet(strings.Repeat("x", 50), 10)
	require.Equal(t, strings.Repeat("x", 10)+"...", long)
}

func TestEvidenceSnippetPrefersMatchingSentence(t *testing.T) {
	chunk := "This manual covers installation. Section two explains maintenance schedules for pumps. Unrelated appendix text."
	out := EvidenceSnippet(chunk, "What does section two explain about maintenance?", 200)
	require.Contains(t, strings.ToLower(out), "maintenance")
	require.NotContains(t, out, "appendix")
}

func TestTerms(t *testing.T) {
	require.Equal(t, []string{"covered", "section"}, Terms("What is covered in section 2? Section!"))
}
