package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loganmoon/codesearch/internal/embedprovider"
	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/ident"
	"github.com/loganmoon/codesearch/internal/search"
)

func newSearchCmd(configPath *string) *cobra.Command {
	var (
		repoPath string
		topK     int
		expand   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search against one indexed repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			defer a.close(ctx)

			root, err := repoRootArg([]string{repoPath})
			if err != nil {
				return err
			}
			collectionName, err := ident.CollectionName(root)
			if err != nil {
				return err
			}
			repositoryID, err := a.meta.GetRepositoryID(ctx, collectionName)
			if err != nil {
				return err
			}
			if repositoryID == "" {
				return fmt.Errorf("search: %s is not an indexed repository", root)
			}

			dense, err := embedprovider.NewDenseProvider(a.cfg.Embeddings)
			if err != nil {
				return err
			}
			sparse, err := embedprovider.NewSparseProvider(a.cfg.Sparse)
			if err != nil {
				return err
			}
			reranker, err := embedprovider.NewReranker(a.cfg.Reranking)
			if err != nil {
				return err
			}

			s := &search.Searcher{
				Dense:    dense,
				Sparse:   sparse,
				Reranker: reranker,
				Vectors:  a.vectors,
				Graph:    a.graph,
				Entities: a.meta,
				Log:      a.log,
			}

			repo := entity.Repository{RepositoryID: repositoryID, CollectionName: collectionName, RootPath: root}
			results, err := s.Search(ctx, repo, args[0], search.Options{
				TopK:        topK,
				ExpandGraph: expand,
				Rerank:      a.cfg.Reranking.Enabled,
			})
			if err != nil {
				return err
			}

			for i, r := range results {
				fmt.Printf("%2d. %-8.4f %-50s %s:%d\n", i+1, r.Score,
					r.Entity.QualifiedName, r.Entity.FilePath, r.Entity.Location.StartLine)
			}
			if len(results) == 0 {
				fmt.Println("no results")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository path")
	cmd.Flags().IntVar(&topK, "top-k", 10, "number of results")
	cmd.Flags().BoolVar(&expand, "expand-graph", false, "expand results along call/use/contains edges")
	return cmd
}
