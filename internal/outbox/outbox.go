// Package outbox applies durable metadata changes to the vector and
// graph stores, polling the transactional outbox internal/metadatastore
// writes to in the same transaction as each entity mutation. Processing
// is at-least-once: a crash between apply and MarkOutboxProcessed is
// recovered by re-applying an already-idempotent upsert or delete on
// the next poll.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loganmoon/codesearch/internal/config"
	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/telemetry"
	"github.com/loganmoon/codesearch/internal/vectorstore"
)

// Store is the subset of internal/metadatastore's contract the
// processor needs: polling, outcome recording, and embedding lookup.
type Store interface {
	GetUnprocessedOutboxEntries(ctx context.Context, target entity.TargetStore, limit int) ([]entity.OutboxEntry, error)
	MarkOutboxProcessed(ctx context.Context, outboxID string) error
	RecordOutboxFailure(ctx context.Context, outboxID, errMsg string) error
	GetEmbeddingByID(ctx context.Context, embeddingID int64) (*entity.EmbeddingRecord, error)
	ListRepositories(ctx context.Context) ([]entity.Repository, error)
	GetEntitiesWithRelationships(ctx context.Context, repositoryID string) ([]entity.CodeEntity, error)
}

// VectorApplier is the subset of internal/vectorstore's contract the
// processor needs to apply a vector-index outbox entry.
type VectorApplier interface {
	Upsert(ctx context.Context, collectionName string, points []vectorstore.EntityPoint) error
	Delete(ctx context.Context, collectionName string, pointIDs []string) error
}

// GraphApplier is the subset of internal/graphstore's contract the
// processor needs to apply a graph-index outbox entry and resolve
// deferred relationships.
type GraphApplier interface {
	UpsertNode(ctx context.Context, databaseName string, e entity.CodeEntity) error
	DeleteNode(ctx context.Context, databaseName, entityID string) error
	UpsertResolvedEdge(ctx context.Context, databaseName string, rel entity.Relationship) error
	ResolveEdgeByQualifiedName(ctx context.Context, databaseName string, rel entity.Relationship) (bool, error)
}

// resolveEveryNPolls is how many poll cycles pass between relationship
// resolution sweeps: more frequent than the drain path, much less
// frequent than the apply path, since a sweep scans every entity with
// at least one relationship in every known repository.
const resolveEveryNPolls = 10

// Processor polls the outbox for both target stores, applies pending
// entries, and periodically sweeps for relationships whose target
// entity did not exist yet at apply time.
type Processor struct {
	Store     Store
	Vectors   VectorApplier
	Graph     GraphApplier
	Resolvers []*KindResolver
	Config    config.OutboxConfig
	Log       *logging.Logger
	Metrics   *telemetry.Metrics // optional

	polls int
}

// outboxPayload is the JSON shape internal/metadatastore writes into
// OutboxEntry.Payload for both insert/update and delete operations.
type outboxPayload struct {
	EntityID   string             `json:"entity_id"`
	PointID    string             `json:"point_id"`
	EntityData *entity.CodeEntity `json:"entity_data,omitempty"`
}

// Run polls on Config.PollIntervalMS until ctx is cancelled. It never
// returns an error for a single failed entry; per-entry failures are
// recorded via Store.RecordOutboxFailure and retried on a later poll.
func (p *Processor) Run(ctx context.Context) error {
	interval := time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.Log.Error("outbox poll failed", zap.Error(err))
			}
		}
	}
}

// Drain polls repeatedly until no outbox entry remains below
// max_retries, or Config.DrainTimeoutSecs elapses. A drained outbox
// plus durable metadata is the system's consistent-snapshot marker.
func (p *Processor) Drain(ctx context.Context) error {
	deadline := time.Now().Add(time.Duration(p.Config.DrainTimeoutSecs) * time.Second)
	for {
		pending, err := p.pendingCount(ctx)
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			p.Log.Warn("outbox drain timed out with entries still pending", zap.Int("pending", pending))
			return nil
		}
		if err := p.pollOnce(ctx); err != nil {
			return err
		}
	}
}

func (p *Processor) pendingCount(ctx context.Context) (int, error) {
	total := 0
	for _, target := range []entity.TargetStore{entity.TargetVectorIndex, entity.TargetGraphIndex} {
		entries, err := p.Store.GetUnprocessedOutboxEntries(ctx, target, p.Config.EntriesPerPoll)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			if e.RetryCount < p.Config.MaxRetries {
				total++
			}
		}
	}
	return total, nil
}

func (p *Processor) pollOnce(ctx context.Context) error {
	for _, target := range []entity.TargetStore{entity.TargetVectorIndex, entity.TargetGraphIndex} {
		if err := p.processTarget(ctx, target); err != nil {
			return err
		}
	}
	p.polls++
	if p.polls%resolveEveryNPolls == 0 {
		if err := p.resolveAll(ctx); err != nil {
			p.Log.Warn("relationship resolution sweep failed", zap.Error(err))
		}
	}
	return nil
}

// processTarget applies up to entries_per_poll pending entries for one
// target store, in creation order (so per-entity-id ordering is
// preserved; cross-entity ordering is not guaranteed).
func (p *Processor) processTarget(ctx context.Context, target entity.TargetStore) error {
	entries, err := p.Store.GetUnprocessedOutboxEntries(ctx, target, p.Config.EntriesPerPoll)
	if err != nil {
		return fmt.Errorf("outbox: polling %s: %w", target, err)
	}
	p.Metrics.OutboxPending(string(target), len(entries))

	for _, e := range entries {
		if e.RetryCount >= p.Config.MaxRetries {
			// Poison pill: leave it in the table for operator inspection,
			// but don't let it block progress on other entries.
			continue
		}

		var applyErr error
		switch target {
		case entity.TargetVectorIndex:
			applyErr = p.applyVector(ctx, e)
		case entity.TargetGraphIndex:
			applyErr = p.applyGraph(ctx, e)
		}

		if applyErr != nil {
			p.Metrics.OutboxFailed(string(target))
			if err := p.Store.RecordOutboxFailure(ctx, e.OutboxID, applyErr.Error()); err != nil {
				return fmt.Errorf("outbox: recording failure for %s: %w", e.OutboxID, err)
			}
			p.Log.Warn("outbox entry failed, will retry", zap.String("outbox_id", e.OutboxID),
				zap.String("target", string(target)), zap.Int("retry_count", e.RetryCount+1), zap.Error(applyErr))
			continue
		}

		if err := p.Store.MarkOutboxProcessed(ctx, e.OutboxID); err != nil {
			return fmt.Errorf("outbox: marking %s processed: %w", e.OutboxID, err)
		}
		p.Metrics.OutboxApplied(string(target))
	}
	return nil
}

func (p *Processor) applyVector(ctx context.Context, e entity.OutboxEntry) error {
	var payload outboxPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	switch e.Operation {
	case entity.OpDelete:
		if payload.PointID == "" {
			return nil
		}
		return p.Vectors.Delete(ctx, e.CollectionName, []string{payload.PointID})

	case entity.OpInsert, entity.OpUpdate:
		if payload.EntityData == nil {
			return fmt.Errorf("entry %s missing entity_data", e.OutboxID)
		}
		if e.EmbeddingID == nil {
			return fmt.Errorf("entry %s has no embedding_id", e.OutboxID)
		}
		rec, err := p.Store.GetEmbeddingByID(ctx, *e.EmbeddingID)
		if err != nil {
			return fmt.Errorf("loading embedding %d: %w", *e.EmbeddingID, err)
		}
		if rec == nil {
			return fmt.Errorf("embedding %d not found", *e.EmbeddingID)
		}
		point := vectorstore.EntityPoint{
			PointID: payload.PointID,
			Dense:   rec.Dense,
			Sparse:  rec.Sparse,
			Entity:  *payload.EntityData,
		}
		return p.Vectors.Upsert(ctx, e.CollectionName, []vectorstore.EntityPoint{point})

	default:
		return fmt.Errorf("unknown operation %q", e.Operation)
	}
}

func (p *Processor) applyGraph(ctx context.Context, e entity.OutboxEntry) error {
	switch e.Operation {
	case entity.OpDelete:
		return p.Graph.DeleteNode(ctx, e.CollectionName, e.EntityID)

	case entity.OpInsert, entity.OpUpdate:
		var payload outboxPayload
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return fmt.Errorf("decoding payload: %w", err)
		}
		if payload.EntityData == nil {
			return fmt.Errorf("entry %s missing entity_data", e.OutboxID)
		}
		if err := p.Graph.UpsertNode(ctx, e.CollectionName, *payload.EntityData); err != nil {
			return err
		}
		// Opportunistic resolution: a relationship whose target already
		// exists is wired immediately. One whose target isn't present
		// yet is left for the periodic sweep.
		for _, rel := range payload.EntityData.Relationships {
			if rel.Resolved() {
				if err := p.Graph.UpsertResolvedEdge(ctx, e.CollectionName, rel); err != nil {
					return err
				}
				continue
			}
			if _, err := p.Graph.ResolveEdgeByQualifiedName(ctx, e.CollectionName, rel); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown operation %q", e.Operation)
	}
}

// resolveAll sweeps every known repository's unresolved relationships,
// across all configured resolvers plus the dedicated Contains pass.
func (p *Processor) resolveAll(ctx context.Context) error {
	repos, err := p.Store.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("listing repositories: %w", err)
	}
	for _, repo := range repos {
		entities, err := p.Store.GetEntitiesWithRelationships(ctx, repo.RepositoryID)
		if err != nil {
			return fmt.Errorf("loading relationships for %s: %w", repo.RepositoryID, err)
		}
		if len(entities) == 0 {
			continue
		}

		resolvedContains, err := resolveContains(ctx, p.Graph, repo.CollectionName, entities)
		if err != nil {
			return fmt.Errorf("resolving contains relationships: %w", err)
		}
		if resolvedContains > 0 {
			p.Log.Info("resolved contains relationships", zap.String("repository_id", repo.RepositoryID), zap.Int("count", resolvedContains))
		}

		for _, r := range p.Resolvers {
			resolved, err := r.Resolve(ctx, p.Graph, repo.CollectionName, entities)
			if err != nil {
				return fmt.Errorf("resolver %s: %w", r.Name(), err)
			}
			if resolved > 0 {
				p.Log.Info("resolved relationships", zap.String("resolver", r.Name()),
					zap.String("repository_id", repo.RepositoryID), zap.Int("count", resolved))
			}
		}
	}
	return nil
}
