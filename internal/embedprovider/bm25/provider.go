package bm25

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/loganmoon/codesearch/internal/entity"
)

// Vocab size Qdrant sparse vectors default to; hashing tokens into
// this range keeps vectors fixed-dimension without a persisted
// vocabulary, the same approach the `bm25` crate's hash-based indexer
// uses upstream.
const vocabSize = 100_000

const (
	k1 = 1.2
	b  = 0.75
)

// Config configures the BM25 provider.
type Config struct {
	TopK int // retained for symmetry with other providers; unused by embedding itself
	// AvgDocLength is the average document length (in tokens) used for
	// BM25 length normalization. Updated externally as the corpus is
	// learned; a fixed estimate is fine since it only affects ranking
	// smoothness, not correctness.
	AvgDocLength float32
}

// Provider computes hash-indexed BM25 sparse vectors.
type Provider struct {
	avgdl float32
}

// New builds a BM25 provider. A zero AvgDocLength defaults to 64,
// a reasonable estimate for single-entity code snippets.
func New(cfg Config) *Provider {
	avgdl := cfg.AvgDocLength
	if avgdl == 0 {
		avgdl = 64
	}
	return &Provider{avgdl: avgdl}
}

// EmbedSparse computes one BM25 sparse vector per input text. Empty
// texts and texts that tokenize to nothing produce an empty
// SparseVector rather than an error.
func (p *Provider) EmbedSparse(ctx context.Context, texts []string) ([]entity.SparseVector, error) {
	out := make([]entity.SparseVector, len(texts))
	for i, text := range texts {
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *Provider) embedOne(text string) entity.SparseVector {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return entity.SparseVector{}
	}

	termFreq := make(map[uint32]int, len(tokens))
	for _, tok := range tokens {
		termFreq[tokenIndex(tok)]++
	}

	docLen := float32(len(tokens))
	norm := 1 - b + b*(docLen/p.avgdl)

	indices := make([]uint32, 0, len(termFreq))
	values := make([]float32, 0, len(termFreq))
	for idx, freq := range termFreq {
		tf := float32(freq)
		score := (tf * (k1 + 1)) / (tf + k1*norm)
		indices = append(indices, idx)
		values = append(values, score)
	}

	return entity.SparseVector{Indices: indices, Values: values}
}

// Close releases resources; the BM25 provider holds none.
func (p *Provider) Close() error { return nil }

func tokenIndex(token string) uint32 {
	return uint32(xxhash.Sum64String(token) % vocabSize)
}
