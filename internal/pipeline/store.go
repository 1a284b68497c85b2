package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/metadatastore"
)

const snapshotBatchSize = 1000

// EntityStore is the subset of internal/metadatastore's contract
// Stages 4 and 5 need.
type EntityStore interface {
	GetEntitiesMetadataBatch(ctx context.Context, repositoryID string, entityIDs []string) (map[string]metadatastore.EntityMetadata, error)
	StoreEntitiesWithOutboxBatch(ctx context.Context, repositoryID string, entries []metadatastore.EntityOutboxBatchEntry) ([]string, error)
	GetFileSnapshot(ctx context.Context, repositoryID, filePath string) ([]string, error)
	UpdateFileSnapshot(ctx context.Context, repositoryID, filePath string, entityIDs []string, gitCommit string) error
	MarkEntitiesDeletedWithOutbox(ctx context.Context, repositoryID string, entityIDs []string) error
}

// runStore is Stage 4: chunk each batch to at most maxChunkSize
// entities, dedup by entity_id within the chunk keeping the last
// occurrence, and write entities + outbox entries in one transaction
// per chunk. Point_id reuse for already-known entities happens inside
// store.StoreEntitiesWithOutboxBatch itself.
func runStore(ctx context.Context, g *errgroup.Group, store EntityStore, maxChunkSize int,
	in <-chan EmbeddedBatch, log *logging.Logger, out chan<- StoredBatch, stats *Stats, mu chanMutex) {

	g.Go(func() error {
		defer close(out)
		for batch := range in {
			stored, err := storeBatch(ctx, store, maxChunkSize, batch, log)
			if err != nil {
				return err
			}
			select {
			case out <- stored:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

func storeBatch(ctx context.Context, store EntityStore, maxChunkSize int, batch EmbeddedBatch, log *logging.Logger) (StoredBatch, error) {
	fileEntityMap := make(map[string][]string, len(batch.FileIndices))
	for path := range batch.FileIndices {
		fileEntityMap[path] = nil
	}

	for _, chunk := range chunkTriples(batch.Triples, maxChunkSize) {
		deduped := dedupByEntityID(chunk)

		entries := make([]metadatastore.EntityOutboxBatchEntry, len(deduped))
		for i, t := range deduped {
			embeddingID := t.EmbeddingID
			entries[i] = metadatastore.EntityOutboxBatchEntry{
				Entity:         t.Entity,
				EmbeddingID:    &embeddingID,
				CollectionName: batch.CollectionName,
			}
		}

		if _, err := store.StoreEntitiesWithOutboxBatch(ctx, batch.RepositoryID, entries); err != nil {
			return StoredBatch{}, err
		}
		for _, t := range deduped {
			fileEntityMap[t.Entity.FilePath] = append(fileEntityMap[t.Entity.FilePath], t.Entity.EntityID)
		}
	}

	log.Debug("stage 4: stored batch", zap.Int("entities", len(batch.Triples)), zap.Int("files", len(fileEntityMap)))

	return StoredBatch{
		FileEntityMap:  fileEntityMap,
		RepositoryID:   batch.RepositoryID,
		CollectionName: batch.CollectionName,
		GitCommit:      batch.GitCommit,
	}, nil
}

func chunkTriples(triples []embeddedTriple, size int) [][]embeddedTriple {
	if size <= 0 {
		size = len(triples)
		if size == 0 {
			return nil
		}
	}
	var chunks [][]embeddedTriple
	for i := 0; i < len(triples); i += size {
		end := i + size
		if end > len(triples) {
			end = len(triples)
		}
		chunks = append(chunks, triples[i:end])
	}
	return chunks
}

// dedupByEntityID keeps the last occurrence of each entity_id in
// chunk, preventing the "ON CONFLICT DO UPDATE command cannot affect
// row a second time" class of error a plain per-triple upsert would
// hit if one file batch produced two entities sharing an id.
func dedupByEntityID(chunk []embeddedTriple) []embeddedTriple {
	seen := make(map[string]int, len(chunk))
	order := make([]string, 0, len(chunk))
	for _, t := range chunk {
		if _, ok := seen[t.Entity.EntityID]; !ok {
			order = append(order, t.Entity.EntityID)
		}
		seen[t.Entity.EntityID] = -1
	}
	last := make(map[string]embeddedTriple, len(chunk))
	for _, t := range chunk {
		last[t.Entity.EntityID] = t
	}
	out := make([]embeddedTriple, 0, len(order))
	for _, id := range order {
		out = append(out, last[id])
	}
	return out
}
