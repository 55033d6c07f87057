package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"docrag/internal/models"
	"docrag/internal/workflows"

	"github.com/spf13/cobra"
)

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printDocument(cmd *cobra.Command, d models.Document, asJSON bool) error {
	if asJSON {
		return printJSON(cmd, d)
	}
	cmd.Printf("%s  %s\n", d.DocumentID, d.Filename)
	cmd.Printf("  status:   %s\n", d.Status)
	if d.Status == models.StatusIndexed {
		cmd.Printf("  chunks:   %d (%s, %s)\n", d.ChunkCount, d.EmbeddingModel, d.ExtractionStrategy)
	}
	if d.ErrorType != "" {
		cmd.Printf("  error:    %s: %s\n", d.ErrorType, d.ErrorDetail)
	}
	return nil
}

func printAnswer(cmd *cobra.Command, a models.Answer, asJSON bool) error {
	if asJSON {
		return printJSON(cmd, a)
	}
	cmd.Println(a.Text)
	if len(a.Sources) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, s := range a.Sources {
		cmd.Printf("  [C%d] %s (chunk %d, %.3f)\n", i+1, s.Filename, s.Ordinal, s.Score)
		cmd.Printf("       %s\n", s.DownloadURL)
	}
	return nil
}

func printBackfill(cmd *cobra.Command, r workflows.BackfillResult, asJSON bool) error {
	if asJSON {
		return printJSON(cmd, r)
	}
	cmd.Printf("%s: %d documents, %d indexed, %d failed", r.Mode, r.Total, r.Indexed, r.Failed)
	if r.Skipped > 0 {
		cmd.Printf(", %d skipped", r.Skipped)
	}
	cmd.Println()
	ids := make([]string, 0, len(r.PerDoc))
	for id := range r.PerDoc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cmd.Printf("  %s  %s\n", id, r.PerDoc[id])
	}
	return nil
}
