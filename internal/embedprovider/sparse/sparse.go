// Package sparse implements the learned-sparse embedding provider
// as a fixed-vocabulary hashed bag-of-words over the bm25 package's
// tokenizer, without BM25's length normalization. It stands in for a
// served sparse model; swapping one in means implementing the same
// interface against its HTTP surface.
package sparse

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/loganmoon/codesearch/internal/embedprovider/bm25"
	"github.com/loganmoon/codesearch/internal/entity"
)

const vocabSize = 100_000

// Config configures the learned-sparse stand-in provider.
type Config struct {
	TopK int // number of highest-weight dimensions to keep per vector
}

// Provider computes fixed-vocabulary hashed bag-of-words vectors.
type Provider struct {
	topK int
}

// New builds a learned-sparse stand-in provider.
func New(cfg Config) *Provider {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 128
	}
	return &Provider{topK: topK}
}

// EmbedSparse computes one sparse vector per input text, keeping at
// most topK highest-count dimensions.
func (p *Provider) EmbedSparse(ctx context.Context, texts []string) ([]entity.SparseVector, error) {
	out := make([]entity.SparseVector, len(texts))
	for i, text := range texts {
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *Provider) embedOne(text string) entity.SparseVector {
	tokens := bm25.Tokenize(text)
	if len(tokens) == 0 {
		return entity.SparseVector{}
	}

	counts := make(map[uint32]int, len(tokens))
	for _, tok := range tokens {
		counts[uint32(xxhash.Sum64String(tok)%vocabSize)]++
	}

	type kv struct {
		idx   uint32
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for idx, c := range counts {
		kvs = append(kvs, kv{idx, c})
	}
	// simple selection of the topK highest counts; stable enough for
	// a small per-document vocabulary and deterministic given equal counts
	// are broken by index order.
	for i := 0; i < len(kvs); i++ {
		for j := i + 1; j < len(kvs); j++ {
			if kvs[j].count > kvs[i].count || (kvs[j].count == kvs[i].count && kvs[j].idx < kvs[i].idx) {
				kvs[i], kvs[j] = kvs[j], kvs[i]
			}
		}
	}
	if len(kvs) > p.topK {
		kvs = kvs[:p.topK]
	}

	indices := make([]uint32, len(kvs))
	values := make([]float32, len(kvs))
	for i, e := range kvs {
		indices[i] = e.idx
		values[i] = float32(e.count)
	}
	return entity.SparseVector{Indices: indices, Values: values}
}

// Close releases resources; this provider holds none.
func (p *Provider) Close() error { return nil }
