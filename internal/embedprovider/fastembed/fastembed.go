// Package fastembed implements the local, ONNX-backed dense
// embedding provider. The underlying runtime is not safe for
// concurrent use, so one model instance is guarded by a mutex.
package fastembed

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// Config configures the FastEmbed provider.
type Config struct {
	Model     string
	CacheDir  string
	MaxLength int
}

var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.AllMiniLML6V2: 384,
}

// Provider generates embeddings with a locally-run ONNX model.
type Provider struct {
	model     *fastembed.FlagEmbedding
	dimension int
	mu        sync.RWMutex
}

// New initializes a FastEmbed provider, downloading the model into
// CacheDir on first use.
func New(cfg Config) (*Provider, error) {
	model, ok := modelMapping[cfg.Model]
	if !ok {
		model = fastembed.EmbeddingModel(cfg.Model)
		if _, known := modelDimensions[model]; !known {
			return nil, fmt.Errorf("fastembed: unsupported model %q", cfg.Model)
		}
	}
	dimension := modelDimensions[model]

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".cache", "codesearch", "models")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("fastembed: initializing: %w", err)
	}

	return &Provider{model: flagEmbed, dimension: dimension}, nil
}

// Embed generates dense embeddings for a batch of entity texts, using
// the "passage: " prefix BGE-family models expect for indexed content.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("fastembed: texts must not be empty")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	embeddings, err := p.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("fastembed: embedding failed: %w", err)
	}
	return embeddings, nil
}

// Dimension returns the model's embedding dimension.
func (p *Provider) Dimension() int { return p.dimension }

// Close releases the underlying model. FastEmbed's Go binding has no
// explicit teardown, so this is a no-op kept for interface symmetry.
func (p *Provider) Close() error { return nil }
