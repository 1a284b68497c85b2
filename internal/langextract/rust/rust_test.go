package rust

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

func byQualifiedName(entities []entity.CodeEntity, qn string) *entity.CodeEntity {
	for i := range entities {
		if entities[i].QualifiedName == qn {
			return &entities[i]
		}
	}
	return nil
}

func TestExtract_CrateRootSynthesizesModule(t *testing.T) {
	source := "//! Demo crate.\n\npub fn a() {}\n"
	entities := extract(t, source, "demo/src/lib.rs")

	root := byQualifiedName(entities, "demo")
	require.NotNil(t, root, "crate root module should be synthesized for lib.rs")
	assert.Equal(t, entity.Module, root.EntityType)
	assert.Equal(t, "demo", root.Name)
	assert.Equal(t, entity.Public, root.Visibility)
	assert.Equal(t, "Demo crate.", root.DocumentationSummary)
	assert.Empty(t, root.ParentScope)
}

func TestExtract_NonRootFileHasNoSyntheticModule(t *testing.T) {
	entities := extract(t, "pub fn f() {}\n", "demo/src/util.rs")
	for _, e := range entities {
		assert.NotEqual(t, entity.Module, e.EntityType)
	}
}

func TestExtract_FunctionsWithCallAndContainsStubs(t *testing.T) {
	source := "pub fn a() { b(); }\npub fn b() {}\n"
	entities := extract(t, source, "demo/src/lib.rs")

	a := byQualifiedName(entities, "demo::a")
	b := byQualifiedName(entities, "demo::b")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, entity.Function, a.EntityType)
	assert.Equal(t, "demo", a.ParentScope)

	var calls, contains []entity.Relationship
	for _, rel := range a.Relationships {
		switch rel.Type {
		case entity.Calls:
			calls = append(calls, rel)
		case entity.Contains:
			contains = append(contains, rel)
		}
	}
	require.Len(t, calls, 1)
	assert.Equal(t, a.EntityID, calls[0].FromEntityID)
	assert.Equal(t, "demo::b", calls[0].ToQualifiedName)
	assert.False(t, calls[0].Resolved())

	require.Len(t, contains, 1)
	assert.Equal(t, "demo", contains[0].FromQualifiedName)
	assert.Equal(t, a.EntityID, contains[0].ToEntityID)
}

func TestExtract_ScopedCallKeepsWrittenPath(t *testing.T) {
	source := "fn run() { helpers::setup(); }\n"
	entities := extract(t, source, "demo/src/lib.rs")

	run := byQualifiedName(entities, "demo::run")
	require.NotNil(t, run)

	var targets []string
	for _, rel := range run.Relationships {
		if rel.Type == entity.Calls {
			targets = append(targets, rel.ToQualifiedName)
		}
	}
	assert.Equal(t, []string{"helpers::setup"}, targets)
}

func TestExtract_MethodCallsThroughReceiverAreSkipped(t *testing.T) {
	source := "fn run() { let v = Vec::new(); v.push(1); }\n"
	entities := extract(t, source, "demo/src/lib.rs")

	run := byQualifiedName(entities, "demo::run")
	require.NotNil(t, run)
	for _, rel := range run.Relationships {
		if rel.Type == entity.Calls {
			assert.Equal(t, "Vec::new", rel.ToQualifiedName)
		}
	}
}

func TestExtract_UnionWithFields(t *testing.T) {
	source := "union Data {\n    i: i32,\n    f: f32,\n}\n"
	entities := extract(t, source, "demo/src/lib.rs")

	union := byQualifiedName(entities, "demo::Data")
	require.NotNil(t, union)
	assert.Equal(t, entity.Union, union.EntityType)

	var fields []*entity.CodeEntity
	for i := range entities {
		if entities[i].EntityType == entity.Property {
			fields = append(fields, &entities[i])
		}
	}
	require.Len(t, fields, 2)
	names := []string{fields[0].Name, fields[1].Name}
	assert.ElementsMatch(t, []string{"i", "f"}, names)
	for _, f := range fields {
		assert.Equal(t, "demo::Data", f.ParentScope)
	}
	require.NotNil(t, byQualifiedName(entities, "demo::Data::i"))
}

func TestExtract_StructEnumTraitMacro(t *testing.T) {
	source := `
pub struct Point { x: i32 }
pub enum Shape { Circle, Square }
pub trait Drawable { fn draw(&self); }
macro_rules! square { ($x:expr) => { $x * $x }; }
`
	entities := extract(t, source, "demo/src/shapes.rs")

	cases := []struct {
		qn   string
		kind entity.EntityType
	}{
		{"demo::shapes::Point", entity.Struct},
		{"demo::shapes::Shape", entity.Enum},
		{"demo::shapes::Drawable", entity.Trait},
		{"demo::shapes::square", entity.Macro},
	}
	for _, c := range cases {
		e := byQualifiedName(entities, c.qn)
		require.NotNil(t, e, "missing %s", c.qn)
		assert.Equal(t, c.kind, e.EntityType)
		assert.Equal(t, "demo::shapes", e.ParentScope)
	}
}

func TestExtract_ReparseYieldsIdenticalEntityIDs(t *testing.T) {
	source := "pub fn a() { b(); }\npub fn b() {}\n"

	first := extract(t, source, "demo/src/lib.rs")
	second := extract(t, source, "demo/src/lib.rs")

	ids := func(entities []entity.CodeEntity) []string {
		out := make([]string, len(entities))
		for i, e := range entities {
			out[i] = e.EntityID
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second))
}
