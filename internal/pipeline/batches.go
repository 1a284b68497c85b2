// Package pipeline implements the five-stage indexing pipeline:
// Discovery, Extraction, Embedding, Store, and Snapshot
// Reconciliation, each its own goroutine group connected to its
// neighbors by a bounded channel. Closing a stage's inbound channel
// is the shutdown signal; no goroutine is aborted mid-transaction.
package pipeline

import (
	"github.com/loganmoon/codesearch/internal/entity"
)

// FileBatch is Stage 1's output unit: a set of file paths discovered
// together, forwarded as soon as it fills rather than waiting for
// discovery to finish.
type FileBatch struct {
	Paths []string
}

// entityInput pairs one extracted entity with the text its embedding
// is computed from.
type entityInput struct {
	Entity        entity.CodeEntity
	EmbeddingText string
}

// ExtractedBatch is Stage 2's output unit.
type ExtractedBatch struct {
	EntityInputs   []entityInput
	FileIndices    map[string][]int
	RepositoryID   string
	CollectionName string
	GitCommit      string
}

// embeddedTriple is one entity plus the embedding row it now maps to.
type embeddedTriple struct {
	Entity      entity.CodeEntity
	EmbeddingID int64
	Sparse      *entity.SparseVector
}

// EmbeddedBatch is Stage 3's output unit.
type EmbeddedBatch struct {
	Triples        []embeddedTriple
	RepositoryID   string
	CollectionName string
	GitCommit      string
	FileIndices    map[string][]int
}

// StoredBatch is Stage 4's output unit, consumed by Stage 5.
type StoredBatch struct {
	FileEntityMap  map[string][]string
	RepositoryID   string
	CollectionName string
	GitCommit      string
}

// Stats summarizes one indexing run, mirroring the original indexer's
// IndexStats (total/failed files, entities and relationships
// extracted, entities skipped for size, processing time).
type Stats struct {
	TotalFiles             int
	FailedFiles            int
	EntitiesExtracted      int
	RelationshipsExtracted int
	EntitiesSkippedSize    int
	FileSnapshotsUpdated   int
	StaleEntitiesDeleted   int
	Errors                 []string
}
