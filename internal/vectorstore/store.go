// Package vectorstore is the Qdrant-backed vector index: one
// collection per repository, a named dense vector with an optional
// named sparse companion so either can be queried independently at
// fusion time. The native gRPC client avoids the REST payload-size
// limit on large upsert batches; transient gRPC codes are retried
// with backoff behind a small circuit breaker.
package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/xerrors"
)

// collectionNamePattern restricts collection names to lowercase
// letters, digits, and underscores.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// ValidateCollectionName rejects anything Qdrant's naming rules (or
// this engine's conventions) would not accept.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("vectorstore: invalid collection name %q, must match %s", name, collectionNamePattern.String())
	}
	return nil
}

// Config configures the gRPC connection.
type Config struct {
	Host               string
	Port               int
	VectorSize         uint64
	UseTLS             bool
	MaxRetries         int
	RetryBackoff       time.Duration
	MaxMessageSize     int
	CircuitBreakerSize int
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerSize == 0 {
		c.CircuitBreakerSize = 5
	}
}

// EntityPoint is a single embedded entity ready to be upserted.
type EntityPoint struct {
	PointID string
	Dense   []float32
	Sparse  *entity.SparseVector
	Entity  entity.CodeEntity
}

// SearchHit is one scored result from a dense/sparse query.
type SearchHit struct {
	PointID string
	Score   float32
	Payload map[string]any
}

// Store is a Qdrant-gRPC-backed implementation of the vector store
// capability.
type Store struct {
	client *qdrant.Client
	cfg    Config

	collections sync.Map // collectionName -> struct{}

	breaker struct {
		mu       sync.Mutex
		failures int
		lastFail time.Time
	}
}

// Open connects the gRPC client and performs a health check.
func Open(cfg Config) (*Store, error) {
	cfg.applyDefaults()

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, xerrors.Infrastructure("vectorstore", "connect", err)
	}

	s := &Store{client: client, cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, xerrors.Infrastructure("vectorstore", "health_check", err)
	}
	return s, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Health probes the Qdrant instance.
func (s *Store) Health(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return xerrors.Infrastructure("vectorstore", "health_check", err)
	}
	return nil
}

// IsTransientError reports whether a gRPC status code should be
// retried.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	backoff := s.cfg.RetryBackoff
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			s.resetBreaker()
			return nil
		}
		if s.breakerOpen() {
			return xerrors.Storage("vectorstore", op, fmt.Errorf("circuit breaker open"), true)
		}
		if !IsTransientError(err) {
			return xerrors.Storage("vectorstore", op, err, false)
		}
		s.recordFailure()
		if attempt == s.cfg.MaxRetries {
			return xerrors.Storage("vectorstore", op, fmt.Errorf("failed after %d retries: %w", s.cfg.MaxRetries, err), true)
		}
		select {
		case <-ctx.Done():
			return xerrors.Storage("vectorstore", op, ctx.Err(), false)
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *Store) recordFailure() {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	s.breaker.failures++
	s.breaker.lastFail = time.Now()
}

func (s *Store) resetBreaker() {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	s.breaker.failures = 0
}

func (s *Store) breakerOpen() bool {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	if s.breaker.failures >= s.cfg.CircuitBreakerSize {
		if time.Since(s.breaker.lastFail) > 30*time.Second {
			s.breaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// EnsureCollection creates collectionName with dense+sparse named
// vectors if it does not already exist; a no-op otherwise.
func (s *Store) EnsureCollection(ctx context.Context, collectionName string) error {
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}
	exists, err := s.CollectionExists(ctx, collectionName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.retry(ctx, "create_collection", func() error {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collectionName,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				denseVectorName: {Size: s.cfg.VectorSize, Distance: qdrant.Distance_Cosine},
			}),
			SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
				sparseVectorName: {},
			}),
		})
		if err == nil {
			s.collections.Store(collectionName, struct{}{})
		}
		return err
	})
}

// CollectionExists reports whether collectionName is present, via a
// local cache consulted before the round trip.
func (s *Store) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	if _, ok := s.collections.Load(collectionName); ok {
		return true, nil
	}
	var exists bool
	err := s.retry(ctx, "collection_exists", func() error {
		_, err := s.client.GetCollectionInfo(ctx, collectionName)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if exists {
		s.collections.Store(collectionName, struct{}{})
	}
	return exists, nil
}

// DropCollection deletes collectionName and all its points.
func (s *Store) DropCollection(ctx context.Context, collectionName string) error {
	err := s.retry(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, collectionName)
	})
	if err != nil {
		return err
	}
	s.collections.Delete(collectionName)
	return nil
}

// Upsert writes (or overwrites, by PointID) a batch of embedded
// entities into collectionName. Upserts are idempotent: re-upserting
// the same PointID replaces its vectors and payload in place.
func (s *Store) Upsert(ctx context.Context, collectionName string, points []EntityPoint) error {
	if len(points) == 0 {
		return nil
	}
	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if _, err := uuid.Parse(p.PointID); err != nil {
			return xerrors.Consistency("vectorstore", "upsert", fmt.Errorf("point id %q is not a uuid", p.PointID)).WithKey(p.PointID)
		}

		namedVectors := map[string]*qdrant.Vector{
			denseVectorName: qdrant.NewVectorDense(p.Dense),
		}
		if p.Sparse != nil {
			if len(p.Sparse.Indices) != len(p.Sparse.Values) {
				return xerrors.Consistency("vectorstore", "upsert",
					fmt.Errorf("sparse indices/values length mismatch: %d vs %d", len(p.Sparse.Indices), len(p.Sparse.Values))).WithKey(p.PointID)
			}
			namedVectors[sparseVectorName] = qdrant.NewVectorSparse(p.Sparse.Indices, p.Sparse.Values)
		}

		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.PointID),
			Vectors: qdrant.NewVectorsMap(namedVectors),
			Payload: entityPayload(p.Entity),
		}
	}

	return s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collectionName,
			Points:         qdrantPoints,
		})
		return err
	})
}

// Delete removes points by id from collectionName.
func (s *Store) Delete(ctx context.Context, collectionName string, pointIDs []string) error {
	if len(pointIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(pointIDs))
	for i, id := range pointIDs {
		ids[i] = qdrant.NewIDUUID(id)
	}
	return s.retry(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collectionName,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: ids},
				},
			},
		})
		return err
	})
}

// SearchDense runs a dense k-NN query against collectionName, using
// one of the named vectors ("dense" or "sparse").
func (s *Store) SearchDense(ctx context.Context, collectionName string, vector []float32, topK int) ([]SearchHit, error) {
	var results []*qdrant.ScoredPoint
	err := s.retry(ctx, "search_dense", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collectionName,
			Query:          qdrant.NewQuery(vector...),
			Using:          qdrant.PtrOf(denseVectorName),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toHits(results), nil
}

// SearchSparse runs a sparse query against collectionName's sparse
// named vector.
func (s *Store) SearchSparse(ctx context.Context, collectionName string, sparse entity.SparseVector, topK int) ([]SearchHit, error) {
	var results []*qdrant.ScoredPoint
	err := s.retry(ctx, "search_sparse", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collectionName,
			Query:          qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
			Using:          qdrant.PtrOf(sparseVectorName),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toHits(results), nil
}

func toHits(results []*qdrant.ScoredPoint) []SearchHit {
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hit := SearchHit{Score: r.Score, Payload: map[string]any{}}
		if id := r.GetId(); id != nil {
			hit.PointID = id.GetUuid()
		}
		for k, v := range r.Payload {
			hit.Payload[k] = payloadValue(v)
		}
		hits[i] = hit
	}
	return hits
}

func payloadValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

// entityPayload builds the point payload: entity_id, repository_id,
// name, qualified_name, entity_type, file_path, start_line, end_line,
// language, visibility.
func entityPayload(e entity.CodeEntity) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"entity_id":      qdrant.NewValueString(e.EntityID),
		"repository_id":  qdrant.NewValueString(e.RepositoryID),
		"name":           qdrant.NewValueString(e.Name),
		"qualified_name": qdrant.NewValueString(e.QualifiedName),
		"entity_type":    qdrant.NewValueString(string(e.EntityType)),
		"file_path":      qdrant.NewValueString(e.FilePath),
		"start_line":     qdrant.NewValueInt(int64(e.Location.StartLine)),
		"end_line":       qdrant.NewValueInt(int64(e.Location.EndLine)),
		"language":       qdrant.NewValueString(string(e.Language)),
		"visibility":     qdrant.NewValueString(string(e.Visibility)),
	}
}
