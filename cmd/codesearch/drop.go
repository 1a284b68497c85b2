package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loganmoon/codesearch/internal/ident"
)

func newDropCmd(configPath *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "drop [path]",
		Short: "Remove a repository (or every repository with --all) from all stores",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("drop: a repository path is required unless --all is given")
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withLock(ctx, func() error {
				if err := a.connect(ctx); err != nil {
					return err
				}
				defer a.close(ctx)

				if all {
					return a.dropAll(ctx)
				}
				root, err := repoRootArg(args)
				if err != nil {
					return err
				}
				return a.dropOne(ctx, root)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every indexed repository")
	return cmd
}

func (a *app) dropOne(ctx context.Context, root string) error {
	collectionName, err := ident.CollectionName(root)
	if err != nil {
		return err
	}
	repositoryID, err := a.meta.GetRepositoryID(ctx, collectionName)
	if err != nil {
		return err
	}
	if repositoryID == "" {
		return fmt.Errorf("drop: %s is not an indexed repository", root)
	}

	if err := a.vectors.DropCollection(ctx, collectionName); err != nil {
		return err
	}
	if err := a.graph.DropDatabase(ctx, collectionName); err != nil {
		return err
	}
	if err := a.meta.DeleteRepository(ctx, repositoryID); err != nil {
		return err
	}
	fmt.Printf("dropped %s (%s)\n", root, repositoryID)
	return nil
}

func (a *app) dropAll(ctx context.Context) error {
	repos, err := a.meta.ListRepositories(ctx)
	if err != nil {
		return err
	}
	for _, repo := range repos {
		if err := a.vectors.DropCollection(ctx, repo.CollectionName); err != nil {
			a.log.Warn("dropping collection failed", zap.String("collection", repo.CollectionName), zap.Error(err))
		}
		if err := a.graph.DropDatabase(ctx, repo.CollectionName); err != nil {
			a.log.Warn("dropping graph database failed", zap.String("database", repo.CollectionName), zap.Error(err))
		}
	}
	if err := a.meta.DropAllData(ctx); err != nil {
		return err
	}
	fmt.Printf("dropped %d repositories\n", len(repos))
	return nil
}
