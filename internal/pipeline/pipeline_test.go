package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganmoon/codesearch/internal/config"
	"github.com/loganmoon/codesearch/internal/embedprovider/bm25"
	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/langextract/registry"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/metadatastore"
)

type fakeDense struct{ dim int }

func (f *fakeDense) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(texts[i]))
		out[i] = v
	}
	return out, nil
}
func (f *fakeDense) Dimension() int { return f.dim }
func (f *fakeDense) Close() error   { return nil }

type fakeEntityStore struct {
	mu         chanMutex
	entities   map[string]entity.CodeEntity
	snapshots  map[string][]string
	deleted    map[string]bool
	lastCommit string
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		mu:        newChanMutex(),
		entities:  map[string]entity.CodeEntity{},
		snapshots: map[string][]string{},
		deleted:   map[string]bool{},
	}
}

func (f *fakeEntityStore) EnsureRepository(_ context.Context, rootPath, collectionName, _ string) (string, error) {
	return "repo-1", nil
}

func (f *fakeEntityStore) SetLastIndexedCommit(_ context.Context, _, commitHash string) error {
	f.lastCommit = commitHash
	return nil
}

func (f *fakeEntityStore) GetEntitiesMetadataBatch(_ context.Context, _ string, ids []string) (map[string]metadatastore.EntityMetadata, error) {
	out := make(map[string]metadatastore.EntityMetadata)
	for _, id := range ids {
		if e, ok := f.entities[id]; ok {
			out[id] = metadatastore.EntityMetadata{PointID: e.EntityID}
		}
	}
	return out, nil
}

func (f *fakeEntityStore) StoreEntitiesWithOutboxBatch(_ context.Context, _ string, entries []metadatastore.EntityOutboxBatchEntry) ([]string, error) {
	ids := make([]string, len(entries))
	for i, e := range entries {
		f.entities[e.Entity.EntityID] = e.Entity
		delete(f.deleted, e.Entity.EntityID)
		ids[i] = e.Entity.EntityID
	}
	return ids, nil
}

func (f *fakeEntityStore) GetFileSnapshot(_ context.Context, _, filePath string) ([]string, error) {
	return f.snapshots[filePath], nil
}

func (f *fakeEntityStore) UpdateFileSnapshot(_ context.Context, _, filePath string, entityIDs []string, _ string) error {
	f.snapshots[filePath] = entityIDs
	return nil
}

func (f *fakeEntityStore) MarkEntitiesDeletedWithOutbox(_ context.Context, _ string, ids []string) error {
	for _, id := range ids {
		f.deleted[id] = true
	}
	return nil
}

type fakeCache struct {
	records map[string]*entity.EmbeddingRecord
	nextID  int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{records: map[string]*entity.EmbeddingRecord{}}
}

func (c *fakeCache) GetCachedEmbedding(_ context.Context, hash string) (*entity.EmbeddingRecord, error) {
	return c.records[hash], nil
}

func (c *fakeCache) StoreEmbedding(_ context.Context, hash string, dense []float32, sparse *entity.SparseVector) (int64, error) {
	c.nextID++
	rec := &entity.EmbeddingRecord{EmbeddingID: c.nextID, ContentHash: hash, Dense: dense, Sparse: sparse}
	c.records[hash] = rec
	return c.nextID, nil
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n"), 0o644))

	reg, err := registry.New([]string{"go"})
	require.NoError(t, err)

	log, err := logging.New(logging.NewDefaultConfig())
	require.NoError(t, err)

	store := newFakeEntityStore()
	cache := newFakeCache()

	p := &Pipeline{
		Registry:      reg,
		Dense:         &fakeDense{dim: 4},
		Sparse:        bm25.New(bm25.Config{TopK: 32}),
		Repositories:  store,
		Entities:      store,
		Cache:         cache,
		Config:        config.IndexerConfig{FilesPerDiscoveryBatch: 10, PipelineChannelCapacity: 4, MaxConcurrentFileExtractions: 2, MaxConcurrentSnapshotUpdates: 2},
		MaxBatch:      1000,
		RetryAttempts: 1,
		Log:           log,
	}

	stats, err := p.Run(context.Background(), dir, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.NotZero(t, stats.EntitiesExtracted)
	assert.Equal(t, "abc123", store.lastCommit)
	assert.NotEmpty(t, store.entities)
}

func TestPipeline_RunFiles_ChangedAndDeleted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n"), 0o644))

	reg, err := registry.New([]string{"go"})
	require.NoError(t, err)

	log, err := logging.New(logging.NewDefaultConfig())
	require.NoError(t, err)

	store := newFakeEntityStore()
	cache := newFakeCache()

	p := &Pipeline{
		Registry:      reg,
		Dense:         &fakeDense{dim: 4},
		Sparse:        bm25.New(bm25.Config{TopK: 32}),
		Repositories:  store,
		Entities:      store,
		Cache:         cache,
		Config:        config.IndexerConfig{FilesPerDiscoveryBatch: 10, PipelineChannelCapacity: 4, MaxConcurrentFileExtractions: 2, MaxConcurrentSnapshotUpdates: 2},
		MaxBatch:      1000,
		RetryAttempts: 1,
		Log:           log,
	}

	_, err = p.RunFiles(context.Background(), dir, "commit-1", []string{path}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, store.snapshots[path])
	indexed := store.snapshots[path]

	// Re-running the same file keeps the same entity ids (stable identity).
	_, err = p.RunFiles(context.Background(), dir, "commit-2", []string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, indexed, store.snapshots[path])
	assert.Equal(t, "commit-2", store.lastCommit)

	// Deleting the file soft-deletes its entities and empties the snapshot.
	stats, err := p.RunFiles(context.Background(), dir, "commit-3", nil, []string{path})
	require.NoError(t, err)
	assert.Equal(t, len(indexed), stats.StaleEntitiesDeleted)
	assert.Empty(t, store.snapshots[path])
	for _, id := range indexed {
		assert.True(t, store.deleted[id])
	}
}

func TestDedupByEntityID_KeepsLastOccurrence(t *testing.T) {
	a := embeddedTriple{Entity: entity.CodeEntity{EntityID: "x", Name: "first"}}
	b := embeddedTriple{Entity: entity.CodeEntity{EntityID: "x", Name: "second"}}
	out := dedupByEntityID([]embeddedTriple{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, "second", out[0].Entity.Name)
}

func TestFindStaleEntityIDs(t *testing.T) {
	stale := findStaleEntityIDs([]string{"a", "b", "c"}, []string{"b", "c", "d"})
	assert.ElementsMatch(t, []string{"a"}, stale)
}

func TestChunkStrings(t *testing.T) {
	chunks := chunkStrings([]string{"a", "b", "c"}, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"a", "b"}, chunks[0])
	assert.Equal(t, []string{"c"}, chunks[1])
}
