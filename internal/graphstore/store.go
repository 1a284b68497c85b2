// Package graphstore is the Neo4j-backed relationship graph: one
// database per repository, nodes labelled by entity type + Entity,
// and one edge type per relationship kind. Edges whose target entity
// is not yet present are completed later by qualified name (see
// ResolveEdgeByQualifiedName).
package graphstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/xerrors"
)

// databaseNamePattern mirrors Neo4j's own database naming rule
// (letters, digits, dots, dashes) and guards the string-interpolated
// DDL statements below against injection through a crafted
// collection/database name.
var databaseNamePattern = regexp.MustCompile(`^[a-zA-Z0-9.-]{1,63}$`)

func validDatabaseName(name string) error {
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("graphstore: invalid database name %q", name)
	}
	return nil
}

// Config configures the Neo4j connection.
type Config struct {
	BoltURI  string
	User     string
	Password string
}

// Store wraps a Neo4j driver. One Neo4j database per repository is
// addressed by name on each session, rather than one driver per
// repository.
type Store struct {
	driver neo4j.DriverWithContext
}

// Open connects the driver and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.BoltURI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, xerrors.Infrastructure("graphstore", "connect", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, xerrors.Infrastructure("graphstore", "verify_connectivity", err)
	}
	return &Store{driver: driver}, nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Health probes the Neo4j instance.
func (s *Store) Health(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return xerrors.Infrastructure("graphstore", "health_check", err)
	}
	return nil
}

func (s *Store) session(ctx context.Context, databaseName string) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: databaseName})
}

// EnsureDatabase creates the per-repository database if it does not
// already exist. Requires Neo4j Enterprise multi-database support;
// community-edition deployments should set one shared database name
// and rely on repository_id-scoped queries instead (left to the
// operator via Config, not modeled here).
func (s *Store) EnsureDatabase(ctx context.Context, databaseName string) error {
	if err := validDatabaseName(databaseName); err != nil {
		return xerrors.Consistency("graphstore", "ensure_database", err)
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, fmt.Sprintf("CREATE DATABASE %s IF NOT EXISTS", databaseName), nil)
	})
	if err != nil {
		return xerrors.Infrastructure("graphstore", "ensure_database", err).WithKey(databaseName)
	}
	return nil
}

// DropDatabase removes a repository's database entirely.
func (s *Store) DropDatabase(ctx context.Context, databaseName string) error {
	if err := validDatabaseName(databaseName); err != nil {
		return xerrors.Consistency("graphstore", "drop_database", err)
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, fmt.Sprintf("DROP DATABASE %s IF EXISTS", databaseName), nil)
	})
	if err != nil {
		return xerrors.Infrastructure("graphstore", "drop_database", err).WithKey(databaseName)
	}
	return nil
}

// UpsertNode creates or updates the node for one entity, labelled by
// its entity type plus a shared `Entity` label.
func (s *Store) UpsertNode(ctx context.Context, databaseName string, e entity.CodeEntity) error {
	session := s.session(ctx, databaseName)
	defer session.Close(ctx)

	label := entityTypeLabel(e.EntityType)
	cypher := fmt.Sprintf(`
		MERGE (n:Entity:%s {id: $id})
		SET n.repository_id = $repository_id,
		    n.qualified_name = $qualified_name,
		    n.name = $name,
		    n.language = $language,
		    n.visibility = $visibility,
		    n.is_async = $is_async,
		    n.is_generic = $is_generic,
		    n.is_static = $is_static,
		    n.is_abstract = $is_abstract,
		    n.is_const = $is_const`, label)

	params := map[string]any{
		"id":             e.EntityID,
		"repository_id":  e.RepositoryID,
		"qualified_name": e.QualifiedName,
		"name":           e.Name,
		"language":       string(e.Language),
		"visibility":     string(e.Visibility),
		"is_async":       e.Metadata.IsAsync,
		"is_generic":     e.Metadata.IsGeneric,
		"is_static":      e.Metadata.IsStatic,
		"is_abstract":    e.Metadata.IsAbstract,
		"is_const":       e.Metadata.IsConst,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, params)
	})
	if err != nil {
		return xerrors.Storage("graphstore", "upsert_node", err, true).WithKey(e.EntityID)
	}
	return nil
}

// DeleteNode removes an entity's node and all of its edges.
func (s *Store) DeleteNode(ctx context.Context, databaseName, entityID string) error {
	session := s.session(ctx, databaseName)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `MATCH (n:Entity {id: $id}) DETACH DELETE n`, map[string]any{"id": entityID})
	})
	if err != nil {
		return xerrors.Storage("graphstore", "delete_node", err, true).WithKey(entityID)
	}
	return nil
}

// UpsertResolvedEdge creates an edge between two already-known
// entities. The relationship kind becomes the edge type; properties
// are stored as-is.
func (s *Store) UpsertResolvedEdge(ctx context.Context, databaseName string, rel entity.Relationship) error {
	if !rel.Resolved() {
		return xerrors.Consistency("graphstore", "upsert_resolved_edge",
			fmt.Errorf("relationship %s from %s has no resolved target", rel.Type, rel.FromEntityID))
	}
	session := s.session(ctx, databaseName)
	defer session.Close(ctx)

	cypher := fmt.Sprintf(`
		MATCH (a:Entity {id: $from_id}), (b:Entity {id: $to_id})
		MERGE (a)-[r:%s]->(b)
		SET r += $props`, edgeType(rel.Type))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{
			"from_id": rel.FromEntityID,
			"to_id":   rel.ToEntityID,
			"props":   stringMapToAny(rel.Properties),
		})
	})
	if err != nil {
		return xerrors.Storage("graphstore", "upsert_resolved_edge", err, true).WithKey(rel.FromEntityID)
	}
	return nil
}

// ResolveEdgeByQualifiedName attempts to complete a deferred edge
// whose missing endpoint was only named, matching against any node in
// the repository with that qualified_name. An outgoing stub
// (ToQualifiedName set) resolves its target; an incoming stub
// (FromQualifiedName set, the Contains case) resolves its source, so
// the edge runs from the named parent to the carrying entity. Returns
// false, nil when no matching node exists yet (the edge stays
// unresolved for a later outbox pass).
func (s *Store) ResolveEdgeByQualifiedName(ctx context.Context, databaseName string, rel entity.Relationship) (bool, error) {
	if rel.Resolved() {
		return false, xerrors.Consistency("graphstore", "resolve_edge_by_qualified_name",
			fmt.Errorf("relationship already resolved"))
	}

	var cypher string
	params := map[string]any{"props": stringMapToAny(rel.Properties)}
	switch {
	case rel.FromEntityID != "" && rel.ToQualifiedName != "":
		cypher = fmt.Sprintf(`
			MATCH (a:Entity {id: $from_id}), (b:Entity {qualified_name: $to_name})
			MERGE (a)-[r:%s]->(b)
			SET r += $props
			RETURN count(b) AS matched`, edgeType(rel.Type))
		params["from_id"] = rel.FromEntityID
		params["to_name"] = rel.ToQualifiedName
	case rel.ToEntityID != "" && rel.FromQualifiedName != "":
		cypher = fmt.Sprintf(`
			MATCH (a:Entity {qualified_name: $from_name}), (b:Entity {id: $to_id})
			MERGE (a)-[r:%s]->(b)
			SET r += $props
			RETURN count(a) AS matched`, edgeType(rel.Type))
		params["from_name"] = rel.FromQualifiedName
		params["to_id"] = rel.ToEntityID
	default:
		return false, xerrors.Consistency("graphstore", "resolve_edge_by_qualified_name",
			fmt.Errorf("relationship %s has no named endpoint to resolve", rel.Type))
	}

	session := s.session(ctx, databaseName)
	defer session.Close(ctx)

	var matched int64
	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, nil
		}
		v, _ := rec.Get("matched")
		if n, ok := v.(int64); ok {
			return n, nil
		}
		return nil, nil
	})
	if err != nil {
		return false, xerrors.Storage("graphstore", "resolve_edge_by_qualified_name", err, true).WithKey(rel.FromEntityID)
	}
	if n, ok := result.(int64); ok {
		matched = n
	}
	return matched > 0, nil
}

// Neighbors returns the entity ids reachable from entityID over edges
// of the given kinds, up to depth hops. Used by the read side to
// expand search results along Calls/Uses/Contains edges. An empty
// kinds slice means all relationship kinds.
func (s *Store) Neighbors(ctx context.Context, databaseName, entityID string, kinds []entity.RelationshipType, depth int) ([]string, error) {
	if depth <= 0 {
		depth = 1
	}
	if depth > maxExpansionDepth {
		depth = maxExpansionDepth
	}

	// Relationship types cannot be parameterized in a Cypher pattern;
	// the names come from edgeType's fixed table, never from input.
	typeFilter := ""
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = edgeType(k)
		}
		typeFilter = ":" + strings.Join(names, "|")
	}
	cypher := fmt.Sprintf(`
		MATCH (a:Entity {id: $id})-[%s*1..%d]-(b:Entity)
		RETURN DISTINCT b.id AS id`, typeFilter, depth)

	session := s.session(ctx, databaseName)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"id": entityID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for res.Next(ctx) {
			if v, ok := res.Record().Get("id"); ok {
				if id, ok := v.(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, xerrors.Storage("graphstore", "neighbors", err, true).WithKey(entityID)
	}
	ids, _ := result.([]string)
	return ids, nil
}

const maxExpansionDepth = 3

func entityTypeLabel(t entity.EntityType) string {
	switch t {
	case entity.Function:
		return "Function"
	case entity.Method:
		return "Method"
	case entity.Class:
		return "Class"
	case entity.Struct:
		return "Struct"
	case entity.Interface:
		return "Interface"
	case entity.Trait:
		return "Trait"
	case entity.Impl:
		return "Impl"
	case entity.Enum:
		return "Enum"
	case entity.EnumVariant:
		return "EnumVariant"
	case entity.Module:
		return "Module"
	case entity.Package:
		return "Package"
	case entity.Constant:
		return "Constant"
	case entity.Variable:
		return "Variable"
	case entity.TypeAlias:
		return "TypeAlias"
	case entity.Macro:
		return "Macro"
	case entity.Property:
		return "Property"
	case entity.Union:
		return "Union"
	default:
		return "Entity"
	}
}

func edgeType(t entity.RelationshipType) string {
	switch t {
	case entity.Contains:
		return "CONTAINS"
	case entity.Calls:
		return "CALLS"
	case entity.Implements:
		return "IMPLEMENTS"
	case entity.Associates:
		return "ASSOCIATES"
	case entity.ExtendsInterface:
		return "EXTENDS_INTERFACE"
	case entity.InheritsFrom:
		return "INHERITS_FROM"
	case entity.Uses:
		return "USES"
	case entity.Imports:
		return "IMPORTS"
	default:
		return "RELATES_TO"
	}
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
