package javascript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/langextract"
)

func extract(t *testing.T, source, filePath string) []entity.CodeEntity {
	t.Helper()
	config, err := Build()
	require.NoError(t, err)
	ex, err := langextract.NewExtractor(config)
	require.NoError(t, err)
	defer ex.Close()

	entities, err := ex.Extract([]byte(source), filePath, "repo-1")
	require.NoError(t, err)
	return entities
}

func TestExtract_FunctionsClassesAndArrows(t *testing.T) {
	source := `
function greet(name) { return "hi " + name; }
class Greeter {}
const add = (a, b) => a + b;
`
	entities := extract(t, source, "app/src/util.js")

	byName := map[string]entity.CodeEntity{}
	for _, e := range entities {
		byName[e.Name] = e
	}

	greet, ok := byName["greet"]
	require.True(t, ok)
	assert.Equal(t, entity.Function, greet.EntityType)
	assert.Equal(t, "app.util.greet", greet.QualifiedName)

	greeter, ok := byName["Greeter"]
	require.True(t, ok)
	assert.Equal(t, entity.Class, greeter.EntityType)

	add, ok := byName["add"]
	require.True(t, ok)
	assert.Equal(t, entity.Function, add.EntityType)
}

func TestExtract_ContainsStubPointsAtModule(t *testing.T) {
	entities := extract(t, "function f() {}\n", "app/src/f.js")

	require.Len(t, entities, 1)
	rels := entities[0].Relationships
	require.Len(t, rels, 1)
	assert.Equal(t, entity.Contains, rels[0].Type)
	assert.Equal(t, "app.f", rels[0].FromQualifiedName)
	assert.Equal(t, entities[0].EntityID, rels[0].ToEntityID)
	assert.False(t, rels[0].Resolved())
}
