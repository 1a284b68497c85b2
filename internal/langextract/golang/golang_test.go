package golang

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

func TestExtract_DeclarationsAndVisibility(t *testing.T) {
	source := `package server

const defaultPort = 8080

type Server struct{}

type Handler interface{ Serve() }

func New() *Server { return &Server{} }

func (s *Server) run() {}
`
	entities := extract(t, source, "server/server.go")

	byName := map[string]entity.CodeEntity{}
	for _, e := range entities {
		byName[e.Name] = e
	}

	srv, ok := byName["Server"]
	require.True(t, ok)
	assert.Equal(t, entity.Struct, srv.EntityType)
	assert.Equal(t, entity.Public, srv.Visibility)
	assert.Equal(t, "server.server.Server", srv.QualifiedName)

	handler, ok := byName["Handler"]
	require.True(t, ok)
	assert.Equal(t, entity.Interface, handler.EntityType)

	newFn, ok := byName["New"]
	require.True(t, ok)
	assert.Equal(t, entity.Function, newFn.EntityType)
	assert.Equal(t, entity.Public, newFn.Visibility)

	run, ok := byName["run"]
	require.True(t, ok)
	assert.Equal(t, entity.Method, run.EntityType)
	assert.Equal(t, entity.Private, run.Visibility)

	port, ok := byName["defaultPort"]
	require.True(t, ok)
	assert.Equal(t, entity.Constant, port.EntityType)
	assert.Equal(t, entity.Private, port.Visibility)
}

func TestExtract_ContainsStub(t *testing.T) {
	entities := extract(t, "package p\n\nfunc F() {}\n", "p/f.go")

	require.Len(t, entities, 1)
	rels := entities[0].Relationships
	require.Len(t, rels, 1)
	assert.Equal(t, entity.Contains, rels[0].Type)
	assert.Equal(t, "p.f", rels[0].FromQualifiedName)
	assert.Equal(t, entities[0].EntityID, rels[0].ToEntityID)
}
