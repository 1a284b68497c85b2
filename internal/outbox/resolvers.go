package outbox

import (
	"context"

	"github.com/loganmoon/codesearch/internal/entity"
)

// KindResolver resolves every relationship of a fixed set of kinds
// across a batch of entities, matching each unresolved target against
// nodes already present in the graph by qualified name. Grounded on
// the Rust RelationshipResolver trait's per-kind implementations
// (TraitImplResolver, InheritanceResolver, TypeUsageResolver,
// CallGraphResolver, ImportsResolver); the Go port collapses them to
// one parameterized type since they share identical resolution logic
// and differ only in which relationship kinds they scan for.
type KindResolver struct {
	name  string
	kinds map[entity.RelationshipType]struct{}
}

// NewKindResolver builds a resolver covering the given relationship kinds.
func NewKindResolver(name string, kinds ...entity.RelationshipType) *KindResolver {
	set := make(map[entity.RelationshipType]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return &KindResolver{name: name, kinds: set}
}

// Name identifies this resolver in logs.
func (r *KindResolver) Name() string { return r.name }

// Resolve attempts to complete every unresolved relationship of this
// resolver's kinds found among entities, returning the count wired.
func (r *KindResolver) Resolve(ctx context.Context, graph GraphApplier, databaseName string, entities []entity.CodeEntity) (int, error) {
	resolved := 0
	for _, e := range entities {
		for _, rel := range e.Relationships {
			if rel.Resolved() {
				continue
			}
			if _, ok := r.kinds[rel.Type]; !ok {
				continue
			}
			ok, err := graph.ResolveEdgeByQualifiedName(ctx, databaseName, rel)
			if err != nil {
				return resolved, err
			}
			if ok {
				resolved++
			}
		}
	}
	return resolved, nil
}

// resolveContains resolves Contains relationships, the parent-child
// hierarchy edges every entity with a ParentScope carries. It is kept
// separate from KindResolver (rather than registered alongside it)
// because the original implementation gives CONTAINS its own batch
// query path for performance; internal/graphstore doesn't expose a
// batch-resolve primitive, so here it is the same
// per-relationship ResolveEdgeByQualifiedName call, but named
// distinctly so a future batch primitive has an obvious home.
func resolveContains(ctx context.Context, graph GraphApplier, databaseName string, entities []entity.CodeEntity) (int, error) {
	resolved := 0
	for _, e := range entities {
		for _, rel := range e.Relationships {
			if rel.Type != entity.Contains || rel.Resolved() {
				continue
			}
			ok, err := graph.ResolveEdgeByQualifiedName(ctx, databaseName, rel)
			if err != nil {
				return resolved, err
			}
			if ok {
				resolved++
			}
		}
	}
	return resolved, nil
}

// DefaultResolvers is the standard resolver set wired by cmd/codesearch,
// registered explicitly rather than through an init()-time registry.
func DefaultResolvers() []*KindResolver {
	return []*KindResolver{
		NewKindResolver("trait_impl", entity.Implements, entity.Associates, entity.ExtendsInterface),
		NewKindResolver("inheritance", entity.InheritsFrom),
		NewKindResolver("type_usage", entity.Uses),
		NewKindResolver("call_graph", entity.Calls),
		NewKindResolver("imports", entity.Imports),
	}
}
