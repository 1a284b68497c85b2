package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loganmoon/codesearch/internal/ident"
	"github.com/loganmoon/codesearch/internal/watch"
)

func newCatchUpCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "catch-up [path]",
		Short: "Reindex only the files changed since the last indexed commit",
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

				repositoryID, err := ident.RepositoryID(root)
				if err != nil {
					return err
				}

				c := &watch.CatchUp{Store: a.meta, Index: p, Log: a.log}
				stats, err := c.Run(ctx, root, repositoryID)
				if err != nil {
					return err
				}

				if err := a.newProcessor().Drain(ctx); err != nil {
					return err
				}

				fmt.Printf("caught up %d files (%d failed)\n", stats.TotalFiles, stats.FailedFiles)
				return nil
			})
		},
	}
}
