package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/loganmoon/codesearch/internal/config"
	"github.com/loganmoon/codesearch/internal/embedprovider"
	"github.com/loganmoon/codesearch/internal/ident"
	"github.com/loganmoon/codesearch/internal/langextract/registry"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/telemetry"
)

// CollectionEnsurer is the subset of internal/vectorstore's contract
// the pipeline needs to prepare a repository's collection before its
// first write.
type CollectionEnsurer interface {
	EnsureCollection(ctx context.Context, collectionName string) error
}

// DatabaseEnsurer is the subset of internal/graphstore's contract the
// pipeline needs to prepare a repository's graph database.
type DatabaseEnsurer interface {
	EnsureDatabase(ctx context.Context, databaseName string) error
}

// RepositoryRegistrar is the subset of internal/metadatastore's
// contract the pipeline needs for repository bring-up and bookkeeping.
type RepositoryRegistrar interface {
	EnsureRepository(ctx context.Context, rootPath, collectionName, name string) (string, error)
	SetLastIndexedCommit(ctx context.Context, repositoryID, commitHash string) error
}

// Pipeline wires the five indexing stages together against one set of
// storage and provider backends. Vector/graph writes themselves are
// not performed here: entity and outbox rows land transactionally in
// the metadata store (Stage 4/5), and internal/outbox fans them out
// asynchronously.
type Pipeline struct {
	Registry      *registry.Registry
	Dense         embedprovider.DenseProvider
	Sparse        embedprovider.SparseProvider
	Repositories  RepositoryRegistrar
	Entities      EntityStore
	Cache         EmbeddingCache
	Vectors       CollectionEnsurer // optional
	Graph         DatabaseEnsurer   // optional
	Config        config.IndexerConfig
	MaxBatch      int // storage.max_entities_per_db_operation
	RetryAttempts int // embeddings.retry_attempts
	Log           *logging.Logger
	Metrics       *telemetry.Metrics // optional
	Tracer        trace.Tracer       // optional
}

// Run indexes rootPath end to end: discovery through snapshot
// reconciliation, then records gitCommit as the repository's
// last-indexed commit. gitCommit may be "" for a full index with no
// known commit.
func (p *Pipeline) Run(ctx context.Context, rootPath, gitCommit string) (*Stats, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, p.Tracer, "pipeline.run", attribute.String("root_path", rootPath))
	defer span.End()

	repositoryID, err := ident.RepositoryID(rootPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: deriving repository id: %w", err)
	}
	collectionName, err := ident.CollectionName(rootPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: deriving collection name: %w", err)
	}

	repositoryID, err = p.Repositories.EnsureRepository(ctx, rootPath, collectionName, "")
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

	stats := &Stats{}
	mu := newChanMutex()

	g, gctx := errgroup.WithContext(ctx)
	chanCap := p.Config.PipelineChannelCapacity

	fileBatches := make(chan FileBatch, chanCap)
	extracted := make(chan ExtractedBatch, chanCap)
	embedded := make(chan EmbeddedBatch, chanCap)
	stored := make(chan StoredBatch, chanCap)

	countCh, err := runDiscovery(gctx, g, rootPath, p.Config.FilesPerDiscoveryBatch, nil, p.Log, fileBatches)
	if err != nil {
		return nil, fmt.Errorf("pipeline: starting discovery: %w", err)
	}

	runExtraction(gctx, g, p.Registry, repositoryID, collectionName, gitCommit,
		p.Config.MaxConcurrentFileExtractions, fileBatches, p.Log, extracted, stats, mu)

	runEmbedding(gctx, g, p.Dense, p.Sparse, p.Cache, p.RetryAttempts, p.Metrics, extracted, p.Log, embedded, stats, mu)

	runStore(gctx, g, p.Entities, p.MaxBatch, embedded, p.Log, stored, stats, mu)

	runSnapshots(gctx, g, p.Entities, stored, p.Log, stats, mu)

	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("pipeline: run failed: %w", err)
	}

	select {
	case total := <-countCh:
		stats.TotalFiles = total
	default:
	}

	p.Metrics.ObserveRun(stats.TotalFiles, stats.FailedFiles, stats.EntitiesExtracted, stats.StaleEntitiesDeleted, time.Since(start))

	if gitCommit != "" {
		if err := p.Repositories.SetLastIndexedCommit(ctx, repositoryID, gitCommit); err != nil {
			return stats, fmt.Errorf("pipeline: recording last indexed commit: %w", err)
		}
	}

	return stats, nil
}
