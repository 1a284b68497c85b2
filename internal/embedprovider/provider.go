// Package embedprovider defines the dense, sparse, and reranker
// embedding provider contracts and a factory selecting a concrete
// implementation by configured provider name.
package embedprovider

import (
	"context"
	"fmt"

	"github.com/loganmoon/codesearch/internal/config"
	"github.com/loganmoon/codesearch/internal/embedprovider/bm25"
	"github.com/loganmoon/codesearch/internal/embedprovider/fastembed"
	"github.com/loganmoon/codesearch/internal/embedprovider/openaicompat"
	"github.com/loganmoon/codesearch/internal/embedprovider/reranker"
	"github.com/loganmoon/codesearch/internal/embedprovider/sparse"
	"github.com/loganmoon/codesearch/internal/entity"
)

// DenseProvider turns text into dense embeddings, preserving input
// ordering and chunking internally to the configured batch size.
type DenseProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Close() error
}

// SparseProvider turns text into sparse embeddings.
type SparseProvider interface {
	EmbedSparse(ctx context.Context, texts []string) ([]entity.SparseVector, error)
	Close() error
}

// Reranker scores (query, candidate) pairs with a cross-encoder and
// returns indices into candidates in descending relevance order.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string, topK int) ([]int, error)
	Close() error
}

// NewDenseProvider builds the configured dense embedding provider.
func NewDenseProvider(cfg config.EmbeddingsConfig) (DenseProvider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return fastembed.New(fastembed.Config{
			Model:    cfg.Model,
			CacheDir: cfg.ModelCacheDir,
		})
	case "openaicompat":
		return openaicompat.New(openaicompat.Config{
			BaseURL:    cfg.APIBaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimension:  cfg.EmbeddingDimension,
			MaxWorkers: cfg.MaxWorkers,
		})
	default:
		return nil, fmt.Errorf("embedprovider: unknown dense provider %q", cfg.Provider)
	}
}

// NewSparseProvider builds the configured sparse embedding provider.
func NewSparseProvider(cfg config.SparseConfig) (SparseProvider, error) {
	switch cfg.Provider {
	case "bm25", "":
		return bm25.New(bm25.Config{TopK: cfg.TopK}), nil
	case "learned":
		return sparse.New(sparse.Config{TopK: cfg.TopK}), nil
	default:
		return nil, fmt.Errorf("embedprovider: unknown sparse provider %q", cfg.Provider)
	}
}

// NewReranker builds the configured reranker, or nil if reranking is disabled.
func NewReranker(cfg config.RerankingConfig) (Reranker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return reranker.New(reranker.Config{
		BaseURL:               cfg.APIBaseURL,
		Model:                 cfg.Model,
		TimeoutSecs:           cfg.TimeoutSecs,
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
	})
}
