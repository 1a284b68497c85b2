// Package metadatastore is the authoritative Postgres-backed metadata
// store: entity records, file snapshots, the content-addressed
// embedding cache, and the transactional outbox that fans changes out
// to the vector and graph stores.
package metadatastore

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/xerrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxBatchSize bounds every batched operation, matching the trait's
// documented "max 1000 entries" contract.
const maxBatchSize = 1000

// Config configures the connection pool.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	PoolSize int
}

func (c Config) connString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.PoolSize)
}

// Store is the pgx-backed implementation of the metadata store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects a pooled client. Callers must call RunMigrations
// before using the store against a fresh database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.connString())
	if err != nil {
		return nil, xerrors.Infrastructure("metadatastore", "open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.Infrastructure("metadatastore", "ping", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return xerrors.Infrastructure("metadatastore", "ping", err)
	}
	return nil
}

// RunMigrations applies every embedded migration, in lexical filename
// order. Statements are written idempotently (CREATE TABLE IF NOT
// EXISTS), so this is safe to call on every startup.
func (s *Store) RunMigrations(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return xerrors.Infrastructure("metadatastore", "read_migrations", err)
	}
	for _, e := range entries {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return xerrors.Infrastructure("metadatastore", "read_migration", err).WithKey(e.Name())
		}
		if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
			return xerrors.Infrastructure("metadatastore", "apply_migration", err).WithKey(e.Name())
		}
	}
	return nil
}

// EnsureRepository returns the repository_id for rootPath, creating
// the row on first sight. Lookup and insert race safely under a
// unique constraint on path; a conflicting insert falls back to a
// lookup rather than erroring.
func (s *Store) EnsureRepository(ctx context.Context, rootPath, collectionName, name string) (string, error) {
	id := uuid.New()
	const q = `
		INSERT INTO repositories (repository_id, name, path, collection_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET path = EXCLUDED.path
		RETURNING repository_id`
	var got uuid.UUID
	if err := s.pool.QueryRow(ctx, q, id, name, rootPath, collectionName).Scan(&got); err != nil {
		return "", xerrors.Storage("metadatastore", "ensure_repository", err, true).WithKey(rootPath)
	}
	return got.String(), nil
}

// GetRepositoryID looks up a repository by its vector-store collection
// name, returning ("", nil) when none exists.
func (s *Store) GetRepositoryID(ctx context.Context, collectionName string) (string, error) {
	const q = `SELECT repository_id FROM repositories WHERE collection_name = $1`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, q, collectionName).Scan(&id)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", xerrors.Storage("metadatastore", "get_repository_id", err, true).WithKey(collectionName)
	}
	return id.String(), nil
}

// ListRepositories returns every known repository, for the outbox
// processor's periodic relationship-resolution sweep.
func (s *Store) ListRepositories(ctx context.Context) ([]entity.Repository, error) {
	const q = `SELECT repository_id, path, collection_name, COALESCE(last_indexed_commit, '') FROM repositories`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "list_repositories", err, true)
	}
	defer rows.Close()

	var out []entity.Repository
	for rows.Next() {
		var id uuid.UUID
		var r entity.Repository
		if err := rows.Scan(&id, &r.RootPath, &r.CollectionName, &r.LastIndexedCommit); err != nil {
			return nil, xerrors.Storage("metadatastore", "list_repositories", err, true)
		}
		r.RepositoryID = id.String()
		out = append(out, r)
	}
	return out, rows.Err()
}

// EntityMetadata is the (point id, soft-delete marker) pair used to
// decide whether a reindex should insert, update, or resurrect an entity.
type EntityMetadata struct {
	PointID   string
	DeletedAt *time.Time
}

// GetEntityMetadata returns the known point id and delete marker for
// a single entity, or (nil, nil) when the entity is unseen.
func (s *Store) GetEntityMetadata(ctx context.Context, repositoryID, entityID string) (*EntityMetadata, error) {
	const q = `SELECT point_id, deleted_at FROM entities WHERE repository_id = $1 AND entity_id = $2`
	var m EntityMetadata
	var pointID uuid.UUID
	err := s.pool.QueryRow(ctx, q, repositoryID, entityID).Scan(&pointID, &m.DeletedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "get_entity_metadata", err, true).WithKey(entityID)
	}
	m.PointID = pointID.String()
	return &m, nil
}

// GetEntitiesMetadataBatch returns the same pair as GetEntityMetadata
// for up to maxBatchSize entityIDs at once, keyed by entity id.
func (s *Store) GetEntitiesMetadataBatch(ctx context.Context, repositoryID string, entityIDs []string) (map[string]EntityMetadata, error) {
	if len(entityIDs) > maxBatchSize {
		return nil, xerrors.Consistency("metadatastore", "get_entities_metadata_batch",
			fmt.Errorf("batch of %d exceeds max %d", len(entityIDs), maxBatchSize))
	}
	if len(entityIDs) == 0 {
		return map[string]EntityMetadata{}, nil
	}
	const q = `SELECT entity_id, point_id, deleted_at FROM entities WHERE repository_id = $1 AND entity_id = ANY($2)`
	rows, err := s.pool.Query(ctx, q, repositoryID, entityIDs)
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "get_entities_metadata_batch", err, true)
	}
	defer rows.Close()

	out := make(map[string]EntityMetadata, len(entityIDs))
	for rows.Next() {
		var entityID string
		var pointID uuid.UUID
		var deletedAt *time.Time
		if err := rows.Scan(&entityID, &pointID, &deletedAt); err != nil {
			return nil, xerrors.Storage("metadatastore", "get_entities_metadata_batch", err, true)
		}
		out[entityID] = EntityMetadata{PointID: pointID.String(), DeletedAt: deletedAt}
	}
	return out, rows.Err()
}

// GetFileSnapshot returns the entity ids a file last resolved to, or
// nil when the file has never been indexed.
func (s *Store) GetFileSnapshot(ctx context.Context, repositoryID, filePath string) ([]string, error) {
	const q = `SELECT entity_ids FROM file_snapshots WHERE repository_id = $1 AND file_path = $2`
	var raw []byte
	err := s.pool.QueryRow(ctx, q, repositoryID, filePath).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "get_file_snapshot", err, true).WithKey(filePath)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, xerrors.Storage("metadatastore", "get_file_snapshot", err, false).WithKey(filePath)
	}
	return ids, nil
}

// UpdateFileSnapshot replaces the recorded entity set for a file.
func (s *Store) UpdateFileSnapshot(ctx context.Context, repositoryID, filePath string, entityIDs []string, gitCommit string) error {
	raw, err := json.Marshal(entityIDs)
	if err != nil {
		return xerrors.Consistency("metadatastore", "update_file_snapshot", err)
	}
	const q = `
		INSERT INTO file_snapshots (repository_id, file_path, entity_ids, git_commit, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (repository_id, file_path)
		DO UPDATE SET entity_ids = EXCLUDED.entity_ids, git_commit = EXCLUDED.git_commit, updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, repositoryID, filePath, raw, nullIfEmpty(gitCommit)); err != nil {
		return xerrors.Storage("metadatastore", "update_file_snapshot", err, true).WithKey(filePath)
	}
	return nil
}

// EntityRef names one entity within a repository for batch lookups.
type EntityRef struct {
	RepositoryID string
	EntityID     string
}

// GetEntitiesByIDs loads full entity records for up to maxBatchSize refs.
func (s *Store) GetEntitiesByIDs(ctx context.Context, refs []EntityRef) ([]entity.CodeEntity, error) {
	if len(refs) > maxBatchSize {
		return nil, xerrors.Consistency("metadatastore", "get_entities_by_ids",
			fmt.Errorf("batch of %d exceeds max %d", len(refs), maxBatchSize))
	}
	if len(refs) == 0 {
		return nil, nil
	}

	repoIDs := make([]string, len(refs))
	entityIDs := make([]string, len(refs))
	for i, r := range refs {
		repoIDs[i] = r.RepositoryID
		entityIDs[i] = r.EntityID
	}

	const q = `
		SELECT entity_data FROM entities
		WHERE deleted_at IS NULL
		AND (repository_id, entity_id) = ANY (SELECT unnest($1::uuid[]), unnest($2::text[]))`
	rows, err := s.pool.Query(ctx, q, repoIDs, entityIDs)
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "get_entities_by_ids", err, true)
	}
	defer rows.Close()

	var out []entity.CodeEntity
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, xerrors.Storage("metadatastore", "get_entities_by_ids", err, true)
		}
		var e entity.CodeEntity
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, xerrors.Storage("metadatastore", "get_entities_by_ids", err, false)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntitiesWithRelationships returns every non-deleted entity in
// repositoryID that carries at least one relationship, for the outbox
// processor's relationship resolvers to scan for unresolved targets.
func (s *Store) GetEntitiesWithRelationships(ctx context.Context, repositoryID string) ([]entity.CodeEntity, error) {
	const q = `
		SELECT entity_data FROM entities
		WHERE repository_id = $1 AND deleted_at IS NULL
		AND jsonb_array_length(entity_data->'Relationships') > 0`
	rows, err := s.pool.Query(ctx, q, repositoryID)
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "get_entities_with_relationships", err, true)
	}
	defer rows.Close()

	var out []entity.CodeEntity
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, xerrors.Storage("metadatastore", "get_entities_with_relationships", err, true)
		}
		var e entity.CodeEntity
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, xerrors.Storage("metadatastore", "get_entities_with_relationships", err, false)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkEntitiesDeleted soft-deletes up to maxBatchSize entities without
// recording an outbox fan-out. Used for snapshot reconciliation paths
// that have already queued their own deletion entries.
func (s *Store) MarkEntitiesDeleted(ctx context.Context, repositoryID string, entityIDs []string) error {
	if len(entityIDs) > maxBatchSize {
		return xerrors.Consistency("metadatastore", "mark_entities_deleted",
			fmt.Errorf("batch of %d exceeds max %d", len(entityIDs), maxBatchSize))
	}
	if len(entityIDs) == 0 {
		return nil
	}
	const q = `UPDATE entities SET deleted_at = now(), updated_at = now() WHERE repository_id = $1 AND entity_id = ANY($2)`
	if _, err := s.pool.Exec(ctx, q, repositoryID, entityIDs); err != nil {
		return xerrors.Storage("metadatastore", "mark_entities_deleted", err, true)
	}
	return nil
}

// MarkEntitiesDeletedWithOutbox soft-deletes up to maxBatchSize
// entities and queues a DELETE outbox entry per target store for each,
// atomically.
func (s *Store) MarkEntitiesDeletedWithOutbox(ctx context.Context, repositoryID string, entityIDs []string) error {
	if len(entityIDs) > maxBatchSize {
		return xerrors.Consistency("metadatastore", "mark_entities_deleted_with_outbox",
			fmt.Errorf("batch of %d exceeds max %d", len(entityIDs), maxBatchSize))
	}
	if len(entityIDs) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		const upd = `UPDATE entities SET deleted_at = now(), updated_at = now() WHERE repository_id = $1 AND entity_id = ANY($2)`
		if _, err := tx.Exec(ctx, upd, repositoryID, entityIDs); err != nil {
			return err
		}
		for _, id := range entityIDs {
			pointID, _, err := getEntityPointIDTx(ctx, tx, repositoryID, id)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(map[string]any{"entity_id": id, "point_id": pointID})
			if err != nil {
				return err
			}
			for _, target := range []entity.TargetStore{entity.TargetVectorIndex, entity.TargetGraphIndex} {
				if err := insertOutboxEntry(ctx, tx, outboxInsert{
					RepositoryID: repositoryID,
					EntityID:     id,
					Operation:    entity.OpDelete,
					TargetStore:  target,
					Payload:      payload,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// EntityOutboxBatchEntry pairs an entity with the content it should be
// embedded from, ready to be stored and fanned out transactionally.
type EntityOutboxBatchEntry struct {
	Entity         entity.CodeEntity
	EmbeddingID    *int64
	CollectionName string
}

// StoreEntitiesWithOutboxBatch inserts or updates up to maxBatchSize
// entities and their outbox fan-out entries in a single transaction,
// returning the (possibly freshly generated) point id per entity in
// input order. Re-running with the same entity_id is idempotent: the
// point id is preserved across updates so the vector store upsert
// target never changes underneath an entity.
func (s *Store) StoreEntitiesWithOutboxBatch(ctx context.Context, repositoryID string, entries []EntityOutboxBatchEntry) ([]string, error) {
	if len(entries) > maxBatchSize {
		return nil, xerrors.Consistency("metadatastore", "store_entities_with_outbox_batch",
			fmt.Errorf("batch of %d exceeds max %d", len(entries), maxBatchSize))
	}
	if len(entries) == 0 {
		return nil, nil
	}

	pointIDs := make([]string, len(entries))
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for i, entr := range entries {
			existing, deletedAt, err := getEntityPointIDTx(ctx, tx, repositoryID, entr.Entity.EntityID)
			if err != nil {
				return err
			}
			// A live row keeps its point id and becomes an UPDATE. A
			// missing row, or a soft-deleted one being reinstated,
			// gets a fresh point id and an INSERT: the old point may
			// still have a pending DELETE outbox entry addressed to
			// it, which must not be able to wipe the new point.
			pointID := existing
			op := entity.OpUpdate
			if existing == "" || deletedAt != nil {
				pointID = uuid.New().String()
				op = entity.OpInsert
			}
			pointIDs[i] = pointID

			data, err := json.Marshal(entr.Entity)
			if err != nil {
				return err
			}

			const upsert = `
				INSERT INTO entities (repository_id, entity_id, file_path, qualified_name, point_id, embedding_id, entity_data, deleted_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, now())
				ON CONFLICT (repository_id, entity_id) DO UPDATE SET
					file_path = EXCLUDED.file_path,
					qualified_name = EXCLUDED.qualified_name,
					point_id = EXCLUDED.point_id,
					embedding_id = EXCLUDED.embedding_id,
					entity_data = EXCLUDED.entity_data,
					deleted_at = NULL,
					updated_at = now()`
			if _, err := tx.Exec(ctx, upsert, repositoryID, entr.Entity.EntityID, entr.Entity.FilePath,
				entr.Entity.QualifiedName, pointID, entr.EmbeddingID, data); err != nil {
				return err
			}

			payload, err := json.Marshal(map[string]any{
				"entity_id":   entr.Entity.EntityID,
				"point_id":    pointID,
				"entity_data": entr.Entity,
			})
			if err != nil {
				return err
			}
			for _, target := range []entity.TargetStore{entity.TargetVectorIndex, entity.TargetGraphIndex} {
				if err := insertOutboxEntry(ctx, tx, outboxInsert{
					RepositoryID:   repositoryID,
					EntityID:       entr.Entity.EntityID,
					Operation:      op,
					TargetStore:    target,
					Payload:        payload,
					CollectionName: entr.CollectionName,
					EmbeddingID:    entr.EmbeddingID,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "store_entities_with_outbox_batch", err, true)
	}
	return pointIDs, nil
}

func getEntityPointIDTx(ctx context.Context, tx pgx.Tx, repositoryID, entityID string) (string, *time.Time, error) {
	const q = `SELECT point_id, deleted_at FROM entities WHERE repository_id = $1 AND entity_id = $2`
	var id uuid.UUID
	var deletedAt *time.Time
	err := tx.QueryRow(ctx, q, repositoryID, entityID).Scan(&id, &deletedAt)
	if err == pgx.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return id.String(), deletedAt, nil
}

type outboxInsert struct {
	RepositoryID   string
	EntityID       string
	Operation      entity.OutboxOperation
	TargetStore    entity.TargetStore
	Payload        []byte
	CollectionName string
	EmbeddingID    *int64
}

func insertOutboxEntry(ctx context.Context, tx pgx.Tx, e outboxInsert) error {
	const q = `
		INSERT INTO outbox (outbox_id, repository_id, entity_id, operation, target_store, payload, collection_name, embedding_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`
	_, err := tx.Exec(ctx, q, uuid.New(), e.RepositoryID, e.EntityID, string(e.Operation), string(e.TargetStore), e.Payload, nullIfEmpty(e.CollectionName), e.EmbeddingID)
	return err
}

// GetUnprocessedOutboxEntries polls up to limit pending entries for
// one target store, ordered oldest-first so relationship-dependent
// resolution sees its prerequisites in creation order.
func (s *Store) GetUnprocessedOutboxEntries(ctx context.Context, target entity.TargetStore, limit int) ([]entity.OutboxEntry, error) {
	const q = `
		SELECT outbox_id, repository_id, entity_id, operation, target_store, payload, collection_name, embedding_id, retry_count, last_error, created_at, processed_at
		FROM outbox
		WHERE target_store = $1 AND processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, string(target), limit)
	if err != nil {
		return nil, xerrors.Storage("metadatastore", "get_unprocessed_outbox_entries", err, true)
	}
	defer rows.Close()

	var out []entity.OutboxEntry
	for rows.Next() {
		var e entity.OutboxEntry
		var outboxID uuid.UUID
		var op, ts string
		var collectionName *string
		if err := rows.Scan(&outboxID, &e.RepositoryID, &e.EntityID, &op, &ts, &e.Payload,
			&collectionName, &e.EmbeddingID, &e.RetryCount, &e.LastError, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, xerrors.Storage("metadatastore", "get_unprocessed_outbox_entries", err, true)
		}
		e.OutboxID = outboxID.String()
		e.Operation = entity.OutboxOperation(op)
		e.TargetStore = entity.TargetStore(ts)
		if collectionName != nil {
			e.CollectionName = *collectionName
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkOutboxProcessed records an entry as successfully applied.
func (s *Store) MarkOutboxProcessed(ctx context.Context, outboxID string) error {
	const q = `UPDATE outbox SET processed_at = now() WHERE outbox_id = $1`
	if _, err := s.pool.Exec(ctx, q, outboxID); err != nil {
		return xerrors.Storage("metadatastore", "mark_outbox_processed", err, true).WithKey(outboxID)
	}
	return nil
}

// RecordOutboxFailure increments retry_count and records the error
// that caused this attempt to fail, leaving the entry unprocessed so
// the next poll retries it (until max_retries makes it a poison pill;
// see internal/outbox).
func (s *Store) RecordOutboxFailure(ctx context.Context, outboxID, errMsg string) error {
	const q = `UPDATE outbox SET retry_count = retry_count + 1, last_error = $2 WHERE outbox_id = $1`
	if _, err := s.pool.Exec(ctx, q, outboxID, errMsg); err != nil {
		return xerrors.Storage("metadatastore", "record_outbox_failure", err, true).WithKey(outboxID)
	}
	return nil
}

// GetLastIndexedCommit returns the git commit hash a repository was
// last fully indexed at, or "" if it has never completed a pass.
func (s *Store) GetLastIndexedCommit(ctx context.Context, repositoryID string) (string, error) {
	const q = `SELECT last_indexed_commit FROM repositories WHERE repository_id = $1`
	var commit *string
	if err := s.pool.QueryRow(ctx, q, repositoryID).Scan(&commit); err != nil {
		return "", xerrors.Storage("metadatastore", "get_last_indexed_commit", err, true).WithKey(repositoryID)
	}
	if commit == nil {
		return "", nil
	}
	return *commit, nil
}

// SetLastIndexedCommit records the commit a full index or catch-up
// pass completed at.
func (s *Store) SetLastIndexedCommit(ctx context.Context, repositoryID, commitHash string) error {
	const q = `UPDATE repositories SET last_indexed_commit = $2 WHERE repository_id = $1`
	if _, err := s.pool.Exec(ctx, q, repositoryID, commitHash); err != nil {
		return xerrors.Storage("metadatastore", "set_last_indexed_commit", err, true).WithKey(repositoryID)
	}
	return nil
}

// DeleteRepository removes one repository and every row that hangs
// off it, in one transaction. Callers are responsible for also
// dropping the repository's vector collection and graph database.
func (s *Store) DeleteRepository(ctx context.Context, repositoryID string) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, q := range []string{
			`DELETE FROM outbox WHERE repository_id = $1`,
			`DELETE FROM file_snapshots WHERE repository_id = $1`,
			`DELETE FROM entities WHERE repository_id = $1`,
			`DELETE FROM repositories WHERE repository_id = $1`,
		} {
			if _, err := tx.Exec(ctx, q, repositoryID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return xerrors.Storage("metadatastore", "delete_repository", err, false).WithKey(repositoryID)
	}
	return nil
}

// DropAllData truncates every table, used by the CLI's `drop --all`.
// Callers are responsible for also dropping the corresponding vector
// and graph store collections/graphs.
func (s *Store) DropAllData(ctx context.Context) error {
	const q = `TRUNCATE repositories, entities, file_snapshots, outbox, embeddings RESTART IDENTITY CASCADE`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return xerrors.Storage("metadatastore", "drop_all_data", err, false)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
