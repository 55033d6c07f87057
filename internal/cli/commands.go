package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docrag/internal/models"
	"docrag/internal/storage"
	"docrag/internal/util"
	"docrag/internal/workflows"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

func newMigrateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := storage.RunMigrations(s.cfg.Postgres.URL); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}

func newIngestCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Ingest PDF files and wait until they are indexed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := s.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			svc, err := a.RAG()
			if err != nil {
				return err
			}

			var failed int
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				doc, err := svc.Ingest(ctx, data, filepath.Base(path))
				if err != nil {
					failed++
					s.logger.Error("ingest failed", zap.String("path", path), zap.Error(err))
				}
				if doc.DocumentID != "" {
					if perr := printDocument(cmd, doc, s.json); perr != nil {
						return perr
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to ingest", failed, len(args))
			}
			return nil
		},
	}
}

func newQueryCmd(s *session) *cobra.Command {
	var (
		topK int
		docs []string
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := s.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			svc, err := a.RAG()
			if err != nil {
				return err
			}
			ans, err := svc.Query(ctx, models.Query{
				Text:   strings.Join(args, " "),
				TopK:   topK,
				Filter: models.QueryFilter{DocumentIDs: docs},
			})
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			return printAnswer(cmd, ans, s.json)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (0 uses the server default)")
	cmd.Flags().StringSliceVar(&docs, "document", nil, "restrict retrieval to these document ids")
	return cmd
}

func newStatusCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's ingestion status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := s.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			doc, err := a.Docs.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printDocument(cmd, doc, s.json)
		},
	}
}

func newBackfillCmd(s *session) *cobra.Command {
	var (
		mode  string
		limit int
		async bool
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-run ingestion for failed or stale documents",
		Long: `Starts a backfill workflow.
RETRY_FAILED re-ingests documents whose last ingestion failed.
REEMBED_STALE re-embeds documents indexed with another embedding model.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			mode = strings.ToUpper(strings.TrimSpace(mode))
			if mode != workflows.BackfillRetryFailed && mode != workflows.BackfillReembedStale {
				return fmt.Errorf("%w: mode must be %s or %s", util.ErrInvalidQuery, workflows.BackfillRetryFailed, workflows.BackfillReembedStale)
			}
			if limit < 0 {
				return errors.New("limit must not be negative")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := s.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			tc, err := a.Temporal()
			if err != nil {
				return err
			}
			run, err := tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:        "backfill-" + strings.ToLower(mode) + "-" + uuid.NewString(),
				TaskQueue: s.cfg.Temporal.TaskQueue,
			}, workflows.BackfillWorkflow, workflows.BackfillInput{
				Mode:                  mode,
				Limit:                 limit,
				MaxConcurrentChildren: s.cfg.Ingest.MaxChildren,
				ActivityTimeout:       s.cfg.Ingest.ActivityTimeout,
				Retry:                 s.cfg.Retry,
			})
			if err != nil {
				return fmt.Errorf("start backfill: %w", err)
			}
			cmd.Printf("started %s run %s\n", run.GetID(), run.GetRunID())
			if async {
				return nil
			}
			var res workflows.BackfillResult
			if err := run.Get(ctx, &res); err != nil {
				return fmt.Errorf("backfill %s: %w", run.GetID(), err)
			}
			return printBackfill(cmd, res, s.json)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", workflows.BackfillRetryFailed, "RETRY_FAILED or REEMBED_STALE")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of documents (0 means all)")
	cmd.Flags().BoolVar(&async, "async", false, "return after starting the workflow")
	return cmd
}
