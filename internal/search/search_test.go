package search

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/metadatastore"
	"github.com/loganmoon/codesearch/internal/vectorstore"
)

func TestFuse_DeterministicAndNaNSafe(t *testing.T) {
	dense := []vectorstore.SearchHit{
		{PointID: "p1", Score: 0.9, Payload: map[string]any{"entity_id": "e1"}},
		{PointID: "p2", Score: float32(math.NaN()), Payload: map[string]any{"entity_id": "e2"}},
		{PointID: "p3", Score: 0.5, Payload: map[string]any{"entity_id": "e3"}},
	}
	sparse := []vectorstore.SearchHit{
		{PointID: "p3", Score: 0.8},
		{PointID: "p4", Score: 0.7, Payload: map[string]any{"entity_id": "e4"}},
	}

	first := fuse(dense, sparse)
	second := fuse(dense, sparse)
	assert.Equal(t, first, second)

	require.Len(t, first, 4)
	// p1: 0.7*0.9 = 0.63; p3: 0.7*0.5 + 0.3*0.8 = 0.59; p4: 0.3*0.7 = 0.21; p2 (NaN): 0.
	assert.Equal(t, "p1", first[0].PointID)
	assert.Equal(t, "p3", first[1].PointID)
	assert.Equal(t, "p4", first[2].PointID)
	assert.Equal(t, "p2", first[3].PointID)
	for _, h := range first {
		assert.False(t, math.IsNaN(float64(h.Score)))
	}
}

func TestFuse_TieBreaksOnPointID(t *testing.T) {
	dense := []vectorstore.SearchHit{
		{PointID: "b", Score: 0.5},
		{PointID: "a", Score: 0.5},
	}
	out := fuse(dense, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].PointID)
	assert.Equal(t, "b", out[1].PointID)
}

type fakeDense struct{}

func (fakeDense) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}
func (fakeDense) Dimension() int { return 4 }
func (fakeDense) Close() error   { return nil }

type fakeVectors struct{ hits []vectorstore.SearchHit }

func (f *fakeVectors) SearchDense(_ context.Context, _ string, _ []float32, _ int) ([]vectorstore.SearchHit, error) {
	return f.hits, nil
}

func (f *fakeVectors) SearchSparse(_ context.Context, _ string, _ entity.SparseVector, _ int) ([]vectorstore.SearchHit, error) {
	return nil, nil
}

type fakeGraph struct{ neighbors map[string][]string }

func (f *fakeGraph) Neighbors(_ context.Context, _, entityID string, _ []entity.RelationshipType, _ int) ([]string, error) {
	return f.neighbors[entityID], nil
}

type fakeHydrator struct{ entities map[string]entity.CodeEntity }

func (f *fakeHydrator) GetEntitiesByIDs(_ context.Context, refs []metadatastore.EntityRef) ([]entity.CodeEntity, error) {
	var out []entity.CodeEntity
	for _, r := range refs {
		if e, ok := f.entities[r.EntityID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestSearcher_HydratesAndExpands(t *testing.T) {
	log, err := logging.New(logging.NewDefaultConfig())
	require.NoError(t, err)

	vectors := &fakeVectors{hits: []vectorstore.SearchHit{
		{PointID: "p1", Score: 0.9, Payload: map[string]any{"entity_id": "e1"}},
	}}
	graph := &fakeGraph{neighbors: map[string][]string{"e1": {"e2"}}}
	hydrator := &fakeHydrator{entities: map[string]entity.CodeEntity{
		"e1": {EntityID: "e1", QualifiedName: "demo::a", Language: entity.LangRust},
		"e2": {EntityID: "e2", QualifiedName: "demo::b", Language: entity.LangRust},
	}}

	s := &Searcher{
		Dense:    fakeDense{},
		Vectors:  vectors,
		Graph:    graph,
		Entities: hydrator,
		Log:      log,
	}

	repo := entity.Repository{RepositoryID: "repo-1", CollectionName: "demo_abc"}
	results, err := s.Search(context.Background(), repo, "fn a", Options{TopK: 10, ExpandGraph: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "demo::a", results[0].Entity.QualifiedName)
	assert.Equal(t, "demo::b", results[1].Entity.QualifiedName)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearcher_FiltersApply(t *testing.T) {
	log, err := logging.New(logging.NewDefaultConfig())
	require.NoError(t, err)

	vectors := &fakeVectors{hits: []vectorstore.SearchHit{
		{PointID: "p1", Score: 0.9, Payload: map[string]any{"entity_id": "e1"}},
		{PointID: "p2", Score: 0.8, Payload: map[string]any{"entity_id": "e2"}},
	}}
	hydrator := &fakeHydrator{entities: map[string]entity.CodeEntity{
		"e1": {EntityID: "e1", Language: entity.LangRust},
		"e2": {EntityID: "e2", Language: entity.LangPython},
	}}

	s := &Searcher{Dense: fakeDense{}, Vectors: vectors, Entities: hydrator, Log: log}

	repo := entity.Repository{RepositoryID: "repo-1", CollectionName: "demo_abc"}
	results, err := s.Search(context.Background(), repo, "query", Options{
		TopK:    10,
		Filters: Filters{Language: entity.LangPython},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e2", results[0].Entity.EntityID)
}
