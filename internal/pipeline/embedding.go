package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loganmoon/codesearch/internal/embedprovider"
	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/telemetry"
)

// EmbeddingCache is the subset of internal/metadatastore's contract
// Stage 3 needs: content-addressed lookup and insert.
type EmbeddingCache interface {
	GetCachedEmbedding(ctx context.Context, contentHash string) (*entity.EmbeddingRecord, error)
	StoreEmbedding(ctx context.Context, contentHash string, dense []float32, sparse *entity.SparseVector) (int64, error)
}

// runEmbedding is Stage 3: compute content_hash per entity, skip the
// provider call for hashes already cached, then request dense and
// sparse embeddings. Entities for which the dense provider produced
// nothing are dropped from the batch's triples but still counted in
// the per-file index stats.
func runEmbedding(ctx context.Context, g *errgroup.Group, dense embedprovider.DenseProvider, sparse embedprovider.SparseProvider,
	cache EmbeddingCache, retryAttempts int, metrics *telemetry.Metrics, in <-chan ExtractedBatch, log *logging.Logger, out chan<- EmbeddedBatch, stats *Stats, mu chanMutex) {

	g.Go(func() error {
		defer close(out)
		for batch := range in {
			embedded, err := embedBatch(ctx, dense, sparse, cache, retryAttempts, metrics, batch, log)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("embedding batch failed, entities left unembedded for this run", zap.Error(err))
				continue
			}
			select {
			case out <- embedded:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

func embedBatch(ctx context.Context, dense embedprovider.DenseProvider, sparseProv embedprovider.SparseProvider,
	cache EmbeddingCache, retryAttempts int, metrics *telemetry.Metrics, batch ExtractedBatch, log *logging.Logger) (EmbeddedBatch, error) {

	result := EmbeddedBatch{
		RepositoryID:   batch.RepositoryID,
		CollectionName: batch.CollectionName,
		GitCommit:      batch.GitCommit,
		FileIndices:    batch.FileIndices,
	}

	hashes := make([]string, len(batch.EntityInputs))
	var uncached []int
	var uncachedTexts []string
	records := make([]*entity.EmbeddingRecord, len(batch.EntityInputs))

	for i, in := range batch.EntityInputs {
		h := contentHash(in.EmbeddingText)
		hashes[i] = h
		rec, err := cache.GetCachedEmbedding(ctx, h)
		if err != nil {
			return EmbeddedBatch{}, err
		}
		metrics.EmbeddingCacheLookup(rec != nil)
		if rec != nil {
			records[i] = rec
			continue
		}
		uncached = append(uncached, i)
		uncachedTexts = append(uncachedTexts, in.EmbeddingText)
	}

	if len(uncachedTexts) > 0 {
		denseVecs, err := embedWithRetry(ctx, retryAttempts, func() ([][]float32, error) {
			return dense.Embed(ctx, uncachedTexts)
		})
		if err != nil {
			return EmbeddedBatch{}, err
		}

		var sparseVecs []entity.SparseVector
		if sparseProv != nil {
			sparseVecs, err = sparseEmbedWithRetry(ctx, retryAttempts, func() ([]entity.SparseVector, error) {
				return sparseProv.EmbedSparse(ctx, uncachedTexts)
			})
			if err != nil {
				log.Warn("sparse embedding failed, continuing dense-only", zap.Error(err))
				sparseVecs = nil
			}
		}

		for j, idx := range uncached {
			if j >= len(denseVecs) || denseVecs[j] == nil {
				continue
			}
			var sv *entity.SparseVector
			if j < len(sparseVecs) {
				sv = &sparseVecs[j]
			}
			embeddingID, err := cache.StoreEmbedding(ctx, hashes[idx], denseVecs[j], sv)
			if err != nil {
				return EmbeddedBatch{}, err
			}
			records[idx] = &entity.EmbeddingRecord{EmbeddingID: embeddingID, ContentHash: hashes[idx], Dense: denseVecs[j], Sparse: sv}
		}
	}

	for i, in := range batch.EntityInputs {
		rec := records[i]
		if rec == nil {
			continue
		}
		result.Triples = append(result.Triples, embeddedTriple{
			Entity:      in.Entity,
			EmbeddingID: rec.EmbeddingID,
			Sparse:      rec.Sparse,
		})
	}
	return result, nil
}

func embedWithRetry(ctx context.Context, attempts int, fn func() ([][]float32, error)) ([][]float32, error) {
	var lastErr error
	for i := 0; i < max(1, attempts); i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func sparseEmbedWithRetry(ctx context.Context, attempts int, fn func() ([]entity.SparseVector, error)) ([]entity.SparseVector, error) {
	var lastErr error
	for i := 0; i < max(1, attempts); i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
