// Package golang implements the [EXPANDED] Go language extractor:
// functions, methods, structs, interfaces, and package-level
// constants/variables. Added because tree-sitter-go is already pulled
// in for the framework's own sake and entity.LangGo already exists in
// the data model; Go was simply not named in the distilled language
// list.
package golang

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/ident"
	"github.com/loganmoon/codesearch/internal/langextract"
)

const (
	queryFunction = `(function_declaration name: (identifier) @name) @def`
	queryMethod   = `(method_declaration receiver: (parameter_list (parameter_declaration type: (_) @receiver_type)) name: (field_identifier) @name) @def`
	queryStruct   = `(type_declaration (type_spec name: (type_identifier) @name type: (struct_type))) @def`
	queryIface    = `(type_declaration (type_spec name: (type_identifier) @name type: (interface_type))) @def`
	queryConst    = `(const_declaration (const_spec name: (identifier) @name)) @def`
	queryVar      = `(var_declaration (var_spec name: (identifier) @name)) @def`
)

// Language lazily compiles the Go tree-sitter language object.
func Language() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_go.Language())
}

// Build compiles this module's Configuration.
func Build() (*langextract.Configuration, error) {
	lang := Language()
	return langextract.NewBuilder(entity.LangGo, lang).
		AddExtractor("function", queryFunction, handleFunction).
		AddExtractor("method", queryMethod, handleMethod).
		AddExtractor("struct", queryStruct, handleStruct).
		AddExtractor("interface", queryIface, handleInterface).
		AddExtractor("constant", queryConst, handleConst).
		AddExtractor("variable", queryVar, handleVar).
		Build()
}

func handleFunction(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	return buildEntity(m, q, source, filePath, repoID, entity.Function)
}

func handleMethod(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	return buildEntity(m, q, source, filePath, repoID, entity.Method)
}

func handleStruct(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	return buildEntity(m, q, source, filePath, repoID, entity.Struct)
}

func handleInterface(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	return buildEntity(m, q, source, filePath, repoID, entity.Interface)
}

func handleConst(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	return buildEntity(m, q, source, filePath, repoID, entity.Constant)
}

func handleVar(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	return buildEntity(m, q, source, filePath, repoID, entity.Variable)
}

// buildEntity extracts the @name and @def captures common to every Go
// handler above and assembles a CodeEntity. Go has no nested
// module-path scoping beyond the package, so qualified names are
// package-relative: "<modulePath>.<name>".
func buildEntity(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string, kind entity.EntityType) ([]entity.CodeEntity, error) {
	names := q.CaptureNames()
	var nameNode, defNode *sitter.Node
	for _, c := range m.Captures {
		n := c.Node
		switch names[c.Index] {
		case "name":
			nameNode = &n
		case "def":
			defNode = &n
		}
	}
	if nameNode == nil || defNode == nil {
		return nil, nil
	}

	name := nameNode.Utf8Text(source)
	modulePath := langextract.ModulePathFromFile(filePath, ".")
	qualifiedName := modulePath + "." + name

	start := defNode.StartPosition()
	end := defNode.EndPosition()

	e := entity.CodeEntity{
		EntityID:      ident.EntityID(repoID, filePath, qualifiedName),
		RepositoryID:  repoID,
		Name:          name,
		QualifiedName: qualifiedName,
		ParentScope:   modulePath,
		EntityType:    kind,
		FilePath:      filePath,
		Location: entity.Location{
			StartLine: int(start.Row) + 1,
			EndLine:   int(end.Row) + 1,
			StartCol:  int(start.Column),
			EndCol:    int(end.Column),
		},
		Language:      entity.LangGo,
		HasVisibility: true,
		Visibility:    visibilityOf(name),
		Content:       string(defNode.Utf8Text(source)),
	}
	if modulePath != "" {
		e.Relationships = append(e.Relationships, entity.Relationship{
			Type:              entity.Contains,
			FromQualifiedName: modulePath,
			ToEntityID:        e.EntityID,
		})
	}
	return []entity.CodeEntity{e}, nil
}

// visibilityOf applies Go's exported-identifier convention.
func visibilityOf(name string) entity.Visibility {
	if len(name) == 0 {
		return entity.Private
	}
	r := rune(name[0])
	if r >= 'A' && r <= 'Z' {
		return entity.Public
	}
	return entity.Private
}
