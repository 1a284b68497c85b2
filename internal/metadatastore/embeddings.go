package metadatastore

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/xerrors"
)

// GetCachedEmbedding looks up a previously computed embedding by its
// content hash, letting unchanged entity bodies skip re-embedding
// across reindex passes.
func (s *Store) GetCachedEmbedding(ctx context.Context, contentHash string) (*entity.EmbeddingRecord, error) {
	const q = `SELECT embedding_id, content_hash, dense, sparse_indices, sparse_values FROM embeddings WHERE content_hash = $1`
	var rec entity.EmbeddingRecord
	var sparseIdx []int64
	var sparseVal []float32
	err := s.pool.QueryRow(ctx, q, contentHash).Scan(&rec.EmbeddingID, &rec.ContentHash, &rec.Dense, &sparseIdx, &sparseVal)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "get_cached_embedding", err, true).WithKey(contentHash)
	}
	if len(sparseIdx) > 0 {
		indices := make([]uint32, len(sparseIdx))
		for i, v := range sparseIdx {
			indices[i] = uint32(v)
		}
		rec.Sparse = &entity.SparseVector{Indices: indices, Values: sparseVal}
	}
	return &rec, nil
}

// GetEmbeddingByID looks up an embedding by its primary key, used by
// the outbox processor to resolve an entry's embedding_id into actual
// vectors before upserting a point into the vector store.
func (s *Store) GetEmbeddingByID(ctx context.Context, embeddingID int64) (*entity.EmbeddingRecord, error) {
	const q = `SELECT embedding_id, content_hash, dense, sparse_indices, sparse_values FROM embeddings WHERE embedding_id = $1`
	var rec entity.EmbeddingRecord
	var sparseIdx []int64
	var sparseVal []float32
	err := s.pool.QueryRow(ctx, q, embeddingID).Scan(&rec.EmbeddingID, &rec.ContentHash, &rec.Dense, &sparseIdx, &sparseVal)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "get_embedding_by_id", err, true)
	}
	if len(sparseIdx) > 0 {
		indices := make([]uint32, len(sparseIdx))
		for i, v := range sparseIdx {
			indices[i] = uint32(v)
		}
		rec.Sparse = &entity.SparseVector{Indices: indices, Values: sparseVal}
	}
	return &rec, nil
}

// StoreEmbedding inserts a new content-addressed embedding, or returns
// the existing row's id if another writer raced it in first; the
// cache is content-addressed, so a collision means identical content.
func (s *Store) StoreEmbedding(ctx context.Context, contentHash string, dense []float32, sparse *entity.SparseVector) (int64, error) {
	var sparseIdx []int64
	var sparseVal []float32
	if sparse != nil {
		sparseIdx = make([]int64, len(sparse.Indices))
		for i, v := range sparse.Indices {
			sparseIdx[i] = int64(v)
		}
		sparseVal = sparse.Values
	}

	const q = `
		INSERT INTO embeddings (content_hash, dense, sparse_indices, sparse_values)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash) DO UPDATE SET content_hash = EXCLUDED.content_hash
		RETURNING embedding_id`
	var id int64
	if err := s.pool.QueryRow(ctx, q, contentHash, dense, sparseIdx, sparseVal).Scan(&id); err != nil {
		return 0, xerrors.Storage("metadatastore", "store_embedding", err, true).WithKey(contentHash)
	}
	return id, nil
}
