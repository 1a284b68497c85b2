// Package search is the read side: vectorize the query, run dense
// and optionally sparse search against the
// repository's collection, fuse the two result lists, optionally
// expand along graph edges, rerank the top candidates, and hydrate
// entity records from the metadata store. The read side tolerates
// eventual consistency: a just-indexed entity may be absent from the
// vector store until the outbox drains.
package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/loganmoon/codesearch/internal/embedprovider"
	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/metadatastore"
	"github.com/loganmoon/codesearch/internal/vectorstore"
)

// VectorSearcher is the subset of internal/vectorstore's contract the
// read side needs.
type VectorSearcher interface {
	SearchDense(ctx context.Context, collectionName string, vector []float32, topK int) ([]vectorstore.SearchHit, error)
	SearchSparse(ctx context.Context, collectionName string, sparse entity.SparseVector, topK int) ([]vectorstore.SearchHit, error)
}

// GraphExpander is the subset of internal/graphstore's contract the
// read side needs for neighbor expansion.
type GraphExpander interface {
	Neighbors(ctx context.Context, databaseName, entityID string, kinds []entity.RelationshipType, depth int) ([]string, error)
}

// Hydrator loads full entity records for the ids a search surfaced.
type Hydrator interface {
	GetEntitiesByIDs(ctx context.Context, refs []metadatastore.EntityRef) ([]entity.CodeEntity, error)
}

// Options tunes one search call.
type Options struct {
	TopK        int
	Filters     Filters
	ExpandGraph bool
	GraphDepth  int
	Rerank      bool
}

// Filters narrows results after hydration. Zero values match everything.
type Filters struct {
	Language   entity.Language
	EntityType entity.EntityType
	FilePath   string
}

func (f Filters) matches(e entity.CodeEntity) bool {
	if f.Language != "" && e.Language != f.Language {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.FilePath != "" && e.FilePath != f.FilePath {
		return false
	}
	return true
}

// Result is one scored, hydrated search result.
type Result struct {
	Entity entity.CodeEntity
	Score  float32
}

// expansionKinds are the edge kinds followed during graph expansion.
var expansionKinds = []entity.RelationshipType{entity.Calls, entity.Uses, entity.Contains}

// Fusion weights for combining dense and sparse scores. The formula is
// fixed and documented at fuse below.
const (
	denseWeight  = 0.7
	sparseWeight = 0.3
)

// Searcher executes hybrid searches against one repository.
type Searcher struct {
	Dense    embedprovider.DenseProvider
	Sparse   embedprovider.SparseProvider // optional
	Reranker embedprovider.Reranker       // optional
	Vectors  VectorSearcher
	Graph    GraphExpander // optional
	Entities Hydrator
	Log      *logging.Logger
}

// Search runs the full read path for one query against repo.
func (s *Searcher) Search(ctx context.Context, repo entity.Repository, query string, opts Options) ([]Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	queryVecs, err := s.Dense.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: embedding query: %w", err)
	}
	if len(queryVecs) != 1 || len(queryVecs[0]) == 0 {
		return nil, fmt.Errorf("search: query produced no embedding")
	}

	// Fetch more candidates than requested so fusion, filtering, and
	// reranking have something to cut from.
	candidateK := opts.TopK * 3

	denseHits, err := s.Vectors.SearchDense(ctx, repo.CollectionName, queryVecs[0], candidateK)
	if err != nil {
		return nil, fmt.Errorf("search: dense search: %w", err)
	}

	var sparseHits []vectorstore.SearchHit
	if s.Sparse != nil {
		sparseVecs, err := s.Sparse.EmbedSparse(ctx, []string{query})
		if err != nil {
			s.Log.Warn("sparse query embedding failed, continuing dense-only", zap.Error(err))
		} else if len(sparseVecs) == 1 && len(sparseVecs[0].Indices) > 0 {
			sparseHits, err = s.Vectors.SearchSparse(ctx, repo.CollectionName, sparseVecs[0], candidateK)
			if err != nil {
				s.Log.Warn("sparse search failed, continuing dense-only", zap.Error(err))
				sparseHits = nil
			}
		}
	}

	fused := fuse(denseHits, sparseHits)

	entityIDs := make([]string, 0, len(fused))
	scoreByID := make(map[string]float32, len(fused))
	for _, f := range fused {
		id := payloadString(f.Payload, "entity_id")
		if id == "" {
			continue
		}
		if _, seen := scoreByID[id]; !seen {
			entityIDs = append(entityIDs, id)
		}
		scoreByID[id] = f.Score
	}

	if opts.ExpandGraph && s.Graph != nil {
		entityIDs = s.expand(ctx, repo.CollectionName, entityIDs, opts.GraphDepth, scoreByID)
	}

	results, err := s.hydrate(ctx, repo.RepositoryID, entityIDs, scoreByID, opts.Filters)
	if err != nil {
		return nil, err
	}

	if opts.Rerank && s.Reranker != nil {
		results, err = s.rerank(ctx, query, results, opts.TopK)
		if err != nil {
			s.Log.Warn("reranking failed, returning fused order", zap.Error(err))
		}
	}

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// fuse combines dense and sparse hit lists into one ranking.
//
// The formula is a fixed linear combination over the two normalized
// score spaces: fused = 0.7*dense + 0.3*sparse, where a point absent
// from one list contributes 0 from that list. NaN scores are treated
// as the lowest possible score. Ties break on point id, so the output
// is deterministic for identical inputs.
func fuse(dense, sparse []vectorstore.SearchHit) []vectorstore.SearchHit {
	combined := make(map[string]vectorstore.SearchHit, len(dense)+len(sparse))

	accumulate := func(hits []vectorstore.SearchHit, weight float32) {
		for _, h := range hits {
			score := h.Score
			if score != score { // NaN
				score = 0
			}
			prev, ok := combined[h.PointID]
			if !ok {
				h.Score = weight * score
				combined[h.PointID] = h
				continue
			}
			prev.Score += weight * score
			if prev.Payload == nil {
				prev.Payload = h.Payload
			}
			combined[h.PointID] = prev
		}
	}
	accumulate(dense, denseWeight)
	accumulate(sparse, sparseWeight)

	out := make([]vectorstore.SearchHit, 0, len(combined))
	for _, h := range combined {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PointID < out[j].PointID
	})
	return out
}

// expand appends graph neighbors of the seed ids, keeping seed
// ordering first and giving expanded ids a score just below the seed
// that surfaced them.
func (s *Searcher) expand(ctx context.Context, databaseName string, seeds []string, depth int, scoreByID map[string]float32) []string {
	if depth <= 0 {
		depth = 1
	}
	out := append([]string(nil), seeds...)
	seen := make(map[string]struct{}, len(seeds))
	for _, id := range seeds {
		seen[id] = struct{}{}
	}
	for _, seed := range seeds {
		neighbors, err := s.Graph.Neighbors(ctx, databaseName, seed, expansionKinds, depth)
		if err != nil {
			s.Log.Warn("graph expansion failed", zap.String("entity_id", seed), zap.Error(err))
			continue
		}
		for _, n := range neighbors {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			scoreByID[n] = scoreByID[seed] * 0.5
			out = append(out, n)
		}
	}
	return out
}

func (s *Searcher) hydrate(ctx context.Context, repositoryID string, ids []string, scoreByID map[string]float32, filters Filters) ([]Result, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	refs := make([]metadatastore.EntityRef, len(ids))
	for i, id := range ids {
		refs[i] = metadatastore.EntityRef{RepositoryID: repositoryID, EntityID: id}
	}
	entities, err := s.Entities.GetEntitiesByIDs(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("search: hydrating results: %w", err)
	}

	byID := make(map[string]entity.CodeEntity, len(entities))
	for _, e := range entities {
		byID[e.EntityID] = e
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok || e.DeletedAt != nil || !filters.matches(e) {
			continue
		}
		results = append(results, Result{Entity: e, Score: scoreByID[id]})
	}
	return results, nil
}

// rerank reorders the top candidates with the cross-encoder, keeping
// any tail beyond the reranked window in fused order.
func (s *Searcher) rerank(ctx context.Context, query string, results []Result, topK int) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}
	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Entity.Content
	}
	order, err := s.Reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		return results, err
	}
	reranked := make([]Result, 0, len(results))
	taken := make(map[int]struct{}, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(results) {
			continue
		}
		taken[idx] = struct{}{}
		reranked = append(reranked, results[idx])
	}
	for i, r := range results {
		if _, ok := taken[i]; !ok {
			reranked = append(reranked, r)
		}
	}
	return reranked, nil
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	v, _ := payload[key].(string)
	return v
}
