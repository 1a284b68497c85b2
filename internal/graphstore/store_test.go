package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loganmoon/codesearch/internal/entity"
)

func TestValidDatabaseName(t *testing.T) {
	assert.NoError(t, validDatabaseName("repo-1.db"))
	assert.Error(t, validDatabaseName(""))
	assert.Error(t, validDatabaseName("repo;DROP DATABASE system"))
}

func TestEntityTypeLabel(t *testing.T) {
	assert.Equal(t, "Function", entityTypeLabel(entity.Function))
	assert.Equal(t, "Entity", entityTypeLabel(entity.EntityType("unknown")))
}

func TestEdgeType(t *testing.T) {
	assert.Equal(t, "CALLS", edgeType(entity.Calls))
	assert.Equal(t, "EXTENDS_INTERFACE", edgeType(entity.ExtendsInterface))
	assert.Equal(t, "RELATES_TO", edgeType(entity.RelationshipType("unknown")))
}

func TestStringMapToAny(t *testing.T) {
	out := stringMapToAny(map[string]string{"k": "v"})
	assert.Equal(t, map[string]any{"k": "v"}, out)
}
