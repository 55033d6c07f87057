// Package cli implements docragctl, the operator command line.
package cli

import (
	"context"
	"fmt"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session is the state shared by subcommands once flags are parsed.
type session struct {
	cfg    config.Config
	logger *zap.Logger
	json   bool
	open   func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)
}

func (s *session) app(ctx context.Context) (*app.App, error) {
	return s.open(ctx, s.cfg, s.logger)
}

func NewRootCmd() *cobra.Command {
	s := &session{open: app.New}
	root := &cobra.Command{
		Use:           "docragctl",
		Short:         "Operate a docrag deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.LogLevel, "console")
			if err != nil {
				return err
			}
			s.cfg = cfg
			s.logger = logger
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&s.json, "json", false, "print results as JSON")

	root.AddCommand(
		newMigrateCmd(s),
		newIngestCmd(s),
		newQueryCmd(s),
		newStatusCmd(s),
		newBackfillCmd(s),
	)
	return root
}
