package typescript

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

func ofType(entities []entity.CodeEntity, kind entity.EntityType) []entity.CodeEntity {
	var out []entity.CodeEntity
	for _, e := range entities {
		if e.EntityType == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestExtract_BasicDeclarations(t *testing.T) {
	source := `
function load(id: string): Thing { return lookup(id); }
class Repository {}
interface Thing { id: string; }
type ThingID = string;
`
	entities := extract(t, source, "app/src/models.ts")

	cases := []struct {
		name string
		kind entity.EntityType
	}{
		{"load", entity.Function},
		{"Repository", entity.Class},
		{"Thing", entity.Interface},
		{"ThingID", entity.TypeAlias},
	}
	for _, c := range cases {
		found := false
		for _, e := range entities {
			if e.Name == c.name && e.EntityType == c.kind {
				found = true
				assert.Equal(t, "app.models."+c.name, e.QualifiedName)
				assert.Equal(t, "app.models", e.ParentScope)
			}
		}
		assert.True(t, found, "missing %s %s", c.kind, c.name)
	}
}

func TestExtract_EnumWithMembers(t *testing.T) {
	source := `
enum Status {
    Active,
    Inactive,
    Pending
}
`
	entities := extract(t, source, "app/src/status.ts")

	enums := ofType(entities, entity.Enum)
	require.Len(t, enums, 1)
	assert.Equal(t, "Status", enums[0].Name)
	assert.Equal(t, "app.status.Status", enums[0].QualifiedName)

	members := ofType(entities, entity.EnumVariant)
	require.Len(t, members, 3)
	var names []string
	for _, m := range members {
		names = append(names, m.Name)
		assert.Equal(t, "app.status.Status", m.ParentScope)
	}
	assert.ElementsMatch(t, []string{"Active", "Inactive", "Pending"}, names)
}

func TestExtract_EnumMemberQualifiedName(t *testing.T) {
	entities := extract(t, "enum Color { Red }\n", "app/src/color.ts")

	members := ofType(entities, entity.EnumVariant)
	require.Len(t, members, 1)
	assert.Equal(t, "app.color.Color.Red", members[0].QualifiedName)
}

func TestExtract_NumericEnumValues(t *testing.T) {
	source := `
enum HttpStatus {
    OK = 200,
    NotFound = 404
}
`
	entities := extract(t, source, "app/src/http.ts")

	members := ofType(entities, entity.EnumVariant)
	require.Len(t, members, 2)
	values := map[string]string{}
	for _, m := range members {
		values[m.Name] = m.Metadata.Attributes["value"]
	}
	assert.Equal(t, "200", values["OK"])
	assert.Equal(t, "404", values["NotFound"])
}

func TestExtract_EnumMemberContainsStub(t *testing.T) {
	entities := extract(t, "enum Color { Red }\n", "app/src/color.ts")

	members := ofType(entities, entity.EnumVariant)
	require.Len(t, members, 1)

	var contains []entity.Relationship
	for _, rel := range members[0].Relationships {
		if rel.Type == entity.Contains {
			contains = append(contains, rel)
		}
	}
	require.Len(t, contains, 1)
	assert.Equal(t, "app.color.Color", contains[0].FromQualifiedName)
	assert.Equal(t, members[0].EntityID, contains[0].ToEntityID)
}
