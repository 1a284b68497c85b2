package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loganmoon/codesearch/internal/ident"
	"github.com/loganmoon/codesearch/internal/telemetry"
)

// RunFiles indexes an explicit set of changed files through the same
// stage 2-5 write path Run uses, skipping discovery, and removes the
// entities of deleted paths. This is the entry point the file watcher
// and the git-diff catch-up engine share, so live edits and offline
// deltas take one code path.
//
// changed and deleted are absolute paths under rootPath. gitCommit may
// be "" when the repository has no git metadata; when set, it is
// recorded as the last-indexed commit after all stages complete.
func (p *Pipeline) RunFiles(ctx context.Context, rootPath, gitCommit string, changed, deleted []string) (*Stats, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, p.Tracer, "pipeline.run_files",
		attribute.String("root_path", rootPath), attribute.Int("changed", len(changed)), attribute.Int("deleted", len(deleted)))
	defer span.End()

	collectionName, err := ident.CollectionName(rootPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: deriving collection name: %w", err)
	}
	repositoryID, err := p.Repositories.EnsureRepository(ctx, rootPath, collectionName, "")
	if err != nil {
		return nil, fmt.Errorf("pipeline: ensuring repository: %w", err)
	}
	if p.Vectors != nil {
		if err := p.Vectors.EnsureCollection(ctx, collectionName); err != nil {
			return nil, fmt.Errorf("pipeline: ensuring collection: %w", err)
		}
	}
	if p.Graph != nil {
		if err := p.Graph.EnsureDatabase(ctx, collectionName); err != nil {
			return nil, fmt.Errorf("pipeline: ensuring graph database: %w", err)
		}
	}

	stats := &Stats{TotalFiles: len(changed) + len(deleted)}
	mu := newChanMutex()

	if len(deleted) > 0 {
		if err := p.removeDeletedFiles(ctx, repositoryID, gitCommit, deleted, stats); err != nil {
			return stats, fmt.Errorf("pipeline: removing deleted files: %w", err)
		}
	}

	if len(changed) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		chanCap := p.Config.PipelineChannelCapacity

		fileBatches := make(chan FileBatch, chanCap)
		extracted := make(chan ExtractedBatch, chanCap)
		embedded := make(chan EmbeddedBatch, chanCap)
		stored := make(chan StoredBatch, chanCap)

		g.Go(func() error {
			defer close(fileBatches)
			batchSize := p.Config.FilesPerDiscoveryBatch
			for i := 0; i < len(changed); i += batchSize {
				end := i + batchSize
				if end > len(changed) {
					end = len(changed)
				}
				select {
				case fileBatches <- FileBatch{Paths: changed[i:end]}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})

		runExtraction(gctx, g, p.Registry, repositoryID, collectionName, gitCommit,
			p.Config.MaxConcurrentFileExtractions, fileBatches, p.Log, extracted, stats, mu)

		runEmbedding(gctx, g, p.Dense, p.Sparse, p.Cache, p.RetryAttempts, p.Metrics, extracted, p.Log, embedded, stats, mu)

		runStore(gctx, g, p.Entities, p.MaxBatch, embedded, p.Log, stored, stats, mu)

		runSnapshots(gctx, g, p.Entities, stored, p.Log, stats, mu)

		if err := g.Wait(); err != nil {
			return stats, fmt.Errorf("pipeline: incremental run failed: %w", err)
		}
	}

	if gitCommit != "" {
		if err := p.Repositories.SetLastIndexedCommit(ctx, repositoryID, gitCommit); err != nil {
			return stats, fmt.Errorf("pipeline: recording last indexed commit: %w", err)
		}
	}

	p.Metrics.ObserveRun(stats.TotalFiles, stats.FailedFiles, stats.EntitiesExtracted, stats.StaleEntitiesDeleted, time.Since(start))

	p.Log.Info("incremental index complete", zap.Int("changed", len(changed)),
		zap.Int("deleted", len(deleted)), zap.Int("stale_entities_deleted", stats.StaleEntitiesDeleted))
	return stats, nil
}

// removeDeletedFiles soft-deletes every entity a removed file used to
// contain (with the DELETE outbox fan-out the metadata store attaches
// in the same transaction) and rewrites its snapshot to the empty set,
// preserving invariant 3: a file's snapshot always equals its set of
// non-deleted entities.
func (p *Pipeline) removeDeletedFiles(ctx context.Context, repositoryID, gitCommit string, deleted []string, stats *Stats) error {
	for _, path := range deleted {
		old, err := p.Entities.GetFileSnapshot(ctx, repositoryID, path)
		if err != nil {
			return err
		}
		if len(old) > 0 {
			for _, chunk := range chunkStrings(old, snapshotBatchSize) {
				if err := p.Entities.MarkEntitiesDeletedWithOutbox(ctx, repositoryID, chunk); err != nil {
					return err
				}
			}
			stats.StaleEntitiesDeleted += len(old)
		}
		if err := p.Entities.UpdateFileSnapshot(ctx, repositoryID, path, nil, gitCommit); err != nil {
			return err
		}
		stats.FileSnapshotsUpdated++
	}
	return nil
}
