package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganmoon/codesearch/internal/config"
	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/vectorstore"
)

type fakeStore struct {
	entries       map[entity.TargetStore][]entity.OutboxEntry
	processed     []string
	failed        map[string]string
	embeddings    map[int64]*entity.EmbeddingRecord
	repos         []entity.Repository
	relationships map[string][]entity.CodeEntity
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:       map[entity.TargetStore][]entity.OutboxEntry{},
		failed:        map[string]string{},
		embeddings:    map[int64]*entity.EmbeddingRecord{},
		relationships: map[string][]entity.CodeEntity{},
	}
}

func (f *fakeStore) GetUnprocessedOutboxEntries(_ context.Context, target entity.TargetStore, limit int) ([]entity.OutboxEntry, error) {
	entries := f.entries[target]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeStore) MarkOutboxProcessed(_ context.Context, outboxID string) error {
	f.processed = append(f.processed, outboxID)
	for target, entries := range f.entries {
		var remaining []entity.OutboxEntry
		for _, e := range entries {
			if e.OutboxID != outboxID {
				remaining = append(remaining, e)
			}
		}
		f.entries[target] = remaining
	}
	return nil
}

func (f *fakeStore) RecordOutboxFailure(_ context.Context, outboxID, errMsg string) error {
	f.failed[outboxID] = errMsg
	for target, entries := range f.entries {
		for i, e := range entries {
			if e.OutboxID == outboxID {
				f.entries[target][i].RetryCount++
			}
		}
	}
	return nil
}

func (f *fakeStore) GetEmbeddingByID(_ context.Context, embeddingID int64) (*entity.EmbeddingRecord, error) {
	return f.embeddings[embeddingID], nil
}

func (f *fakeStore) ListRepositories(_ context.Context) ([]entity.Repository, error) {
	return f.repos, nil
}

func (f *fakeStore) GetEntitiesWithRelationships(_ context.Context, repositoryID string) ([]entity.CodeEntity, error) {
	return f.relationships[repositoryID], nil
}

type fakeVector struct {
	upserted []vectorstore.EntityPoint
	deleted  []string
}

func (f *fakeVector) Upsert(_ context.Context, _ string, points []vectorstore.EntityPoint) error {
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeVector) Delete(_ context.Context, _ string, pointIDs []string) error {
	f.deleted = append(f.deleted, pointIDs...)
	return nil
}

type fakeGraph struct {
	upsertedNodes []entity.CodeEntity
	deletedNodes  []string
	resolvedEdges []entity.Relationship
	resolvable    map[string]bool // ToQualifiedName -> exists
}

func (f *fakeGraph) UpsertNode(_ context.Context, _ string, e entity.CodeEntity) error {
	f.upsertedNodes = append(f.upsertedNodes, e)
	return nil
}

func (f *fakeGraph) DeleteNode(_ context.Context, _ string, entityID string) error {
	f.deletedNodes = append(f.deletedNodes, entityID)
	return nil
}

func (f *fakeGraph) UpsertResolvedEdge(_ context.Context, _ string, rel entity.Relationship) error {
	f.resolvedEdges = append(f.resolvedEdges, rel)
	return nil
}

func (f *fakeGraph) ResolveEdgeByQualifiedName(_ context.Context, _ string, rel entity.Relationship) (bool, error) {
	name := rel.ToQualifiedName
	if name == "" {
		name = rel.FromQualifiedName
	}
	if f.resolvable != nil && f.resolvable[name] {
		f.resolvedEdges = append(f.resolvedEdges, rel)
		return true, nil
	}
	return false, nil
}

func testProcessor(store *fakeStore, vec *fakeVector, graph *fakeGraph) *Processor {
	log, _ := logging.New(logging.NewDefaultConfig())
	return &Processor{
		Store:     store,
		Vectors:   vec,
		Graph:     graph,
		Resolvers: DefaultResolvers(),
		Config:    config.OutboxConfig{PollIntervalMS: 1000, EntriesPerPoll: 100, MaxRetries: 3, DrainTimeoutSecs: 5},
		Log:       log,
	}
}

func marshalPayload(t *testing.T, p outboxPayload) []byte {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return data
}

func TestProcessor_ApplyVector_Insert(t *testing.T) {
	store := newFakeStore()
	embID := int64(7)
	store.embeddings[embID] = &entity.EmbeddingRecord{EmbeddingID: embID, Dense: []float32{1, 2, 3}}
	ent := entity.CodeEntity{EntityID: "e1", Name: "Foo"}
	entry := entity.OutboxEntry{
		OutboxID:       "ob1",
		Operation:      entity.OpInsert,
		TargetStore:    entity.TargetVectorIndex,
		CollectionName: "coll",
		EmbeddingID:    &embID,
		Payload:        marshalPayload(t, outboxPayload{EntityID: "e1", PointID: "p1", EntityData: &ent}),
	}
	store.entries[entity.TargetVectorIndex] = []entity.OutboxEntry{entry}

	vec := &fakeVector{}
	p := testProcessor(store, vec, &fakeGraph{})

	require.NoError(t, p.processTarget(context.Background(), entity.TargetVectorIndex))
	require.Len(t, vec.upserted, 1)
	assert.Equal(t, "p1", vec.upserted[0].PointID)
	assert.Equal(t, []float32{1, 2, 3}, vec.upserted[0].Dense)
	assert.Contains(t, store.processed, "ob1")
}

func TestProcessor_ApplyVector_Delete(t *testing.T) {
	store := newFakeStore()
	entry := entity.OutboxEntry{
		OutboxID:       "ob2",
		Operation:      entity.OpDelete,
		TargetStore:    entity.TargetVectorIndex,
		CollectionName: "coll",
		Payload:        marshalPayload(t, outboxPayload{EntityID: "e1", PointID: "p1"}),
	}
	store.entries[entity.TargetVectorIndex] = []entity.OutboxEntry{entry}

	vec := &fakeVector{}
	p := testProcessor(store, vec, &fakeGraph{})

	require.NoError(t, p.processTarget(context.Background(), entity.TargetVectorIndex))
	assert.Equal(t, []string{"p1"}, vec.deleted)
	assert.Contains(t, store.processed, "ob2")
}

func TestProcessor_ApplyGraph_InsertResolvesKnownEdge(t *testing.T) {
	store := newFakeStore()
	embID := int64(1)
	ent := entity.CodeEntity{
		EntityID: "e1",
		Relationships: []entity.Relationship{
			{Type: entity.Calls, FromEntityID: "e1", ToEntityID: "e2"},
			{Type: entity.Uses, FromEntityID: "e1", ToQualifiedName: "pkg::Thing"},
		},
	}
	entry := entity.OutboxEntry{
		OutboxID:       "ob3",
		Operation:      entity.OpInsert,
		TargetStore:    entity.TargetGraphIndex,
		CollectionName: "coll",
		EmbeddingID:    &embID,
		Payload:        marshalPayload(t, outboxPayload{EntityID: "e1", PointID: "p1", EntityData: &ent}),
	}
	store.entries[entity.TargetGraphIndex] = []entity.OutboxEntry{entry}

	graph := &fakeGraph{resolvable: map[string]bool{"pkg::Thing": true}}
	p := testProcessor(store, &fakeVector{}, graph)

	require.NoError(t, p.processTarget(context.Background(), entity.TargetGraphIndex))
	require.Len(t, graph.upsertedNodes, 1)
	require.Len(t, graph.resolvedEdges, 2)
	assert.Contains(t, store.processed, "ob3")
}

func TestProcessor_PoisonPill_SkippedWithoutApply(t *testing.T) {
	store := newFakeStore()
	entry := entity.OutboxEntry{OutboxID: "ob4", Operation: entity.OpInsert, TargetStore: entity.TargetVectorIndex, RetryCount: 3}
	store.entries[entity.TargetVectorIndex] = []entity.OutboxEntry{entry}

	vec := &fakeVector{}
	p := testProcessor(store, vec, &fakeGraph{})

	require.NoError(t, p.processTarget(context.Background(), entity.TargetVectorIndex))
	assert.Empty(t, vec.upserted)
	assert.NotContains(t, store.processed, "ob4")
	assert.NotContains(t, store.failed, "ob4")
}

func TestProcessor_ApplyVector_BadPayload_RecordsFailure(t *testing.T) {
	store := newFakeStore()
	entry := entity.OutboxEntry{
		OutboxID:       "ob5",
		Operation:      entity.OpInsert,
		TargetStore:    entity.TargetVectorIndex,
		CollectionName: "coll",
		Payload:        []byte(`not json`),
	}
	store.entries[entity.TargetVectorIndex] = []entity.OutboxEntry{entry}

	p := testProcessor(store, &fakeVector{}, &fakeGraph{})

	require.NoError(t, p.processTarget(context.Background(), entity.TargetVectorIndex))
	assert.Contains(t, store.failed, "ob5")
	require.Len(t, store.entries[entity.TargetVectorIndex], 1)
	assert.Equal(t, 1, store.entries[entity.TargetVectorIndex][0].RetryCount)
}

func TestProcessor_Drain_ReturnsImmediatelyWhenEmpty(t *testing.T) {
	store := newFakeStore()
	p := testProcessor(store, &fakeVector{}, &fakeGraph{})
	require.NoError(t, p.Drain(context.Background()))
}

func TestKindResolver_Resolve(t *testing.T) {
	entities := []entity.CodeEntity{{
		EntityID: "e1",
		Relationships: []entity.Relationship{
			{Type: entity.Calls, FromEntityID: "e1", ToQualifiedName: "pkg::Fn"},
			{Type: entity.Imports, FromEntityID: "e1", ToQualifiedName: "pkg::Other"},
		},
	}}
	graph := &fakeGraph{resolvable: map[string]bool{"pkg::Fn": true}}
	r := NewKindResolver("call_graph", entity.Calls)

	resolved, err := r.Resolve(context.Background(), graph, "db", entities)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	require.Len(t, graph.resolvedEdges, 1)
	assert.Equal(t, entity.Calls, graph.resolvedEdges[0].Type)
}

func TestResolveContains(t *testing.T) {
	// The child carries its parent's qualified name; the edge resolves
	// once the parent node exists.
	entities := []entity.CodeEntity{{
		EntityID: "child",
		Relationships: []entity.Relationship{
			{Type: entity.Contains, FromQualifiedName: "pkg", ToEntityID: "child"},
		},
	}}
	graph := &fakeGraph{resolvable: map[string]bool{"pkg": true}}

	resolved, err := resolveContains(context.Background(), graph, "db", entities)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
}
