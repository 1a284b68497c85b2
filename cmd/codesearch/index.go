package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loganmoon/codesearch/internal/watch"
)

func newIndexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index [path]",
		Short: "Run the full indexing pipeline once, then drain the outbox",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := repoRootArg(args)
			if err != nil {
				return err
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withLock(ctx, func() error {
				if err := a.orchestrator().Ensure(ctx); err != nil {
					return err
				}
				if err := a.connect(ctx); err != nil {
					return err
				}
				defer a.close(ctx)

				p, err := a.newPipeline()
				if err != nil {
					return err
				}

				// A repository outside git control is indexed without a
				// commit marker; catch-up will then always fall back to a
				// full run.
				gitCommit, err := watch.HeadCommit(root)
				if err != nil {
					a.log.Warn("no git HEAD, indexing without commit marker", zap.String("root", root), zap.Error(err))
					gitCommit = ""
				}

				stats, err := p.Run(ctx, root, gitCommit)
				if err != nil {
					return err
				}
				a.log.Info("index run complete",
					zap.Int("files", stats.TotalFiles), zap.Int("failed_files", stats.FailedFiles),
					zap.Int("entities", stats.EntitiesExtracted), zap.Int("stale_deleted", stats.StaleEntitiesDeleted))

				if err := a.newProcessor().Drain(ctx); err != nil {
					return err
				}

				fmt.Printf("indexed %d files (%d failed), %d entities\n",
					stats.TotalFiles, stats.FailedFiles, stats.EntitiesExtracted)
				return nil
			})
		},
	}
}
