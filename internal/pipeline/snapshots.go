package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loganmoon/codesearch/internal/logging"
)

// runSnapshots is Stage 5: aggregate every StoredBatch of the run by
// file path (a file's entities can span batches), diff each file's
// old snapshot against its new entity set, mark stale entities
// deleted, and write the new snapshot.
func runSnapshots(ctx context.Context, g *errgroup.Group, store EntityStore, in <-chan StoredBatch, log *logging.Logger, stats *Stats, mu chanMutex) {
	g.Go(func() error {
		aggregated := make(map[string][]string)
		var repositoryID, gitCommit string
		batches := 0

		for batch := range in {
			batches++
			if repositoryID == "" {
				repositoryID = batch.RepositoryID
				gitCommit = batch.GitCommit
			}
			for path, ids := range batch.FileEntityMap {
				aggregated[path] = append(aggregated[path], ids...)
			}
		}

		if batches == 0 {
			log.Info("stage 5: no batches received (empty repository)")
			return nil
		}
		if len(aggregated) == 0 {
			return nil
		}

		var allStale []string
		for path, newIDs := range aggregated {
			oldIDs, err := store.GetFileSnapshot(ctx, repositoryID, path)
			if err != nil {
				return err
			}
			stale := findStaleEntityIDs(oldIDs, newIDs)
			if len(stale) > 0 {
				allStale = append(allStale, stale...)
			}
		}

		if len(allStale) > 0 {
			log.Info("stage 5: marking stale entities deleted", zap.Int("count", len(allStale)))
			for _, chunk := range chunkStrings(allStale, snapshotBatchSize) {
				if err := store.MarkEntitiesDeletedWithOutbox(ctx, repositoryID, chunk); err != nil {
					return err
				}
			}
			mu.locked(func() { stats.StaleEntitiesDeleted += len(allStale) })
		}

		for path, ids := range aggregated {
			if err := store.UpdateFileSnapshot(ctx, repositoryID, path, ids, gitCommit); err != nil {
				return err
			}
		}
		mu.locked(func() { stats.FileSnapshotsUpdated += len(aggregated) })

		log.Info("stage 5: updated file snapshots", zap.Int("files", len(aggregated)))
		return nil
	})
}

// findStaleEntityIDs returns the entity ids present in old but absent
// from new: the entities a file used to contain that it no longer does.
func findStaleEntityIDs(old, new []string) []string {
	if len(old) == 0 {
		return nil
	}
	present := make(map[string]struct{}, len(new))
	for _, id := range new {
		present[id] = struct{}{}
	}
	var stale []string
	for _, id := range old {
		if _, ok := present[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}
