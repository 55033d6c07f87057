package answer

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a careful research assistant. You answer questions strictly from the document excerpts you are given."

// citationRef is the marker the model uses for the i-th admitted chunk.
func citationRef(i int) string {
	return fmt.Sprintf("[C%d]", i+1)
}

func blockHeader(i int, filename string, ordinal int) string {
	return fmt.Sprintf("%s %s (chunk %d)\n", citationRef(i), filename, ordinal)
}

func buildPrompt(question string) string {
	var b strings.Builder
	b.WriteString("Question: " + strings.TrimSpace(question) + "\n\n")

	b.WriteString("You must answer using ONLY the provided document excerpts.\n")
	b.WriteString("Do NOT use outside knowledge.\n")
	b.WriteString("If the excerpts do not contain enough information, explicitly state what is missing.\n\n")

	b.WriteString("Citation rules:\n")
	b.WriteString("- Use citations like [C1], [C2], etc. whenever making a factual claim.\n")
	b.WriteString("- Cite the excerpt immediately after the sentence it supports.\n")
	b.WriteString("- Multiple citations may be used together like [C1][C3] if needed.\n")
	b.WriteString("- Do NOT cite anything not present in the provided excerpts.\n\n")

	b.WriteString("Answer guidelines:\n")
	b.WriteString("- Write a clear explanation in natural paragraphs. Bullet points are optional.\n")
	b.WriteString("- Be specific: include figures, names, dates and constraints when the excerpts give them.\n")
	b.WriteString("- If excerpts conflict, explain the disagreement and cite both.\n\n")

	b.WriteString("Document excerpts (cite as [C#]):")
	return b.String()
}
