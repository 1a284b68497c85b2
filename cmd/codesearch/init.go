package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loganmoon/codesearch/internal/ident"
)

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Register a repository and create its collection and graph database",
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

				collectionName, err := ident.CollectionName(root)
				if err != nil {
					return err
				}
				repositoryID, err := a.meta.EnsureRepository(ctx, root, collectionName, filepath.Base(root))
				if err != nil {
					return err
				}
				if err := a.vectors.EnsureCollection(ctx, collectionName); err != nil {
					return err
				}
				if err := a.graph.EnsureDatabase(ctx, collectionName); err != nil {
					return err
				}

				fmt.Printf("repository_id:   %s\ncollection_name: %s\n", repositoryID, collectionName)
				return nil
			})
		},
	}
}

func repoRootArg(args []string) (string, error) {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving repository path %q: %w", root, err)
	}
	return abs, nil
}
