package watch

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/loganmoon/codesearch/internal/langextract/registry"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/pipeline"
)

// Indexer is the subset of internal/pipeline's contract catch-up
// needs: a full run for never-indexed repositories, and the
// explicit-file path shared with the live watcher for everything else.
type Indexer interface {
	Run(ctx context.Context, rootPath, gitCommit string) (*pipeline.Stats, error)
	RunFiles(ctx context.Context, rootPath, gitCommit string, changed, deleted []string) (*pipeline.Stats, error)
}

// CommitStore is the subset of internal/metadatastore's contract
// catch-up needs to find where the last successful index stopped.
type CommitStore interface {
	GetLastIndexedCommit(ctx context.Context, repositoryID string) (string, error)
}

// CatchUp brings a previously-indexed repository up to HEAD by git
// diff. Running it twice with no git changes is a no-op: it neither
// moves last_indexed_commit nor emits outbox entries.
type CatchUp struct {
	Store CommitStore
	Index Indexer
	Log   *logging.Logger
}

// Run diffs last_indexed_commit..HEAD and feeds the classified changes
// through the shared pipeline write path. A repository that has never
// been indexed gets a full run; one already at HEAD gets nothing.
func (c *CatchUp) Run(ctx context.Context, repoRoot, repositoryID string) (*pipeline.Stats, error) {
	head, err := HeadCommit(repoRoot)
	if err != nil {
		return nil, err
	}

	last, err := c.Store.GetLastIndexedCommit(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("watch: reading last indexed commit: %w", err)
	}

	if last == head {
		c.Log.Info("index is up to date", zap.String("commit", short(head)))
		return &pipeline.Stats{}, nil
	}

	if last == "" {
		c.Log.Info("no previous index, running full index", zap.String("commit", short(head)))
		return c.Index.Run(ctx, repoRoot, head)
	}

	diffs, err := ChangedFilesBetween(repoRoot, last, head)
	if err != nil {
		return nil, err
	}

	var changed, deleted []string
	for _, d := range diffs {
		if _, ok := registry.LanguageForExtension(filepath.Ext(d.Path)); !ok {
			continue
		}
		abs := filepath.Join(repoRoot, d.Path)
		switch d.Kind {
		case DiffAdded, DiffModified:
			changed = append(changed, abs)
		case DiffDeleted:
			deleted = append(deleted, abs)
		}
	}

	c.Log.Info("catching up index",
		zap.String("from", short(last)), zap.String("to", short(head)),
		zap.Int("changed", len(changed)), zap.Int("deleted", len(deleted)))

	// RunFiles advances last_indexed_commit to HEAD only after every
	// stage completes, so a failed catch-up is retried from the same
	// starting commit next time.
	return c.Index.RunFiles(ctx, repoRoot, head, changed, deleted)
}
