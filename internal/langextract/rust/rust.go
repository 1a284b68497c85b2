// Package rust implements the Rust language extractor: functions,
// structs, enums, traits, impl blocks, modules, unions, and macros,
// with `::`-joined qualified names. Crate-root files (lib.rs, main.rs)
// synthesize a Module entity named after the crate so containment
// edges have a root to hang from, and function bodies are scanned for
// call expressions, emitted as unresolved call stubs resolved later
// against whatever targets exist.
package rust

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/ident"
	"github.com/loganmoon/codesearch/internal/langextract"
)

const (
	queryFunction  = `(function_item name: (identifier) @name) @def`
	queryStruct    = `(struct_item name: (type_identifier) @name) @def`
	queryEnum      = `(enum_item name: (type_identifier) @name) @def`
	queryTrait     = `(trait_item name: (type_identifier) @name) @def`
	queryImpl      = `(impl_item type: (type_identifier) @name) @def`
	queryModule    = `(mod_item name: (identifier) @name) @def`
	queryMacro     = `(macro_definition name: (identifier) @name) @def`
	queryUnion     = `(union_item name: (type_identifier) @name body: (field_declaration_list) @fields) @def`
	queryCrateRoot = `(source_file) @crate_root`
)

// Language lazily compiles the Rust tree-sitter language object.
func Language() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_rust.Language())
}

// Build compiles this module's Configuration.
func Build() (*langextract.Configuration, error) {
	lang := Language()
	h := func(kind entity.EntityType) langextract.Handler {
		return langextract.SimpleEntityHandler(kind, entity.LangRust, "::")
	}
	return langextract.NewBuilder(entity.LangRust, lang).
		AddExtractor("crate-root", queryCrateRoot, handleCrateRoot).
		AddExtractor("function", queryFunction, handleFunction).
		AddExtractor("struct", queryStruct, h(entity.Struct)).
		AddExtractor("enum", queryEnum, h(entity.Enum)).
		AddExtractor("trait", queryTrait, h(entity.Trait)).
		AddExtractor("impl", queryImpl, h(entity.Impl)).
		AddExtractor("module", queryModule, h(entity.Module)).
		AddExtractor("macro", queryMacro, h(entity.Macro)).
		AddExtractor("union", queryUnion, handleUnion).
		Build()
}

// isCrateRoot reports whether filePath is an implicit crate root
// (lib.rs or main.rs), the files whose module has no `mod` item.
func isCrateRoot(filePath string) bool {
	return strings.HasSuffix(filePath, "/lib.rs") || strings.HasSuffix(filePath, "/main.rs") ||
		filePath == "lib.rs" || filePath == "main.rs"
}

// handleCrateRoot synthesizes the implicit root Module entity for
// lib.rs/main.rs, named after the crate, so Contains edges from the
// root to its top-level items have a node to resolve against. All
// other files produce nothing from this query.
func handleCrateRoot(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	if !isCrateRoot(filePath) {
		return nil, nil
	}
	crateName := langextract.CrateNameFromFile(filePath)
	if crateName == "" {
		return nil, nil
	}
	root := langextract.CaptureNode(m, q, "crate_root")
	if root == nil {
		return nil, nil
	}

	start := root.StartPosition()
	end := root.EndPosition()

	return []entity.CodeEntity{{
		EntityID:      ident.EntityID(repoID, filePath, crateName),
		RepositoryID:  repoID,
		Name:          crateName,
		QualifiedName: crateName,
		EntityType:    entity.Module,
		FilePath:      filePath,
		Location: entity.Location{
			StartLine: int(start.Row) + 1,
			EndLine:   int(end.Row) + 1,
			StartCol:  int(start.Column),
			EndCol:    int(end.Column),
		},
		Language:             entity.LangRust,
		HasVisibility:        true,
		Visibility:           entity.Public,
		DocumentationSummary: crateLevelDocs(source),
	}}, nil
}

// crateLevelDocs collects the `//!` inner doc comment block from the
// top of a crate-root file, stopping at the first non-comment line.
func crateLevelDocs(source []byte) string {
	var docs []string
	for _, line := range strings.Split(string(source), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "//!"):
			docs = append(docs, strings.TrimSpace(strings.TrimPrefix(trimmed, "//!")))
		case trimmed == "" || strings.HasPrefix(trimmed, "//"):
			continue
		default:
			return strings.Join(docs, "\n")
		}
	}
	return strings.Join(docs, "\n")
}

// handleFunction extracts a function plus unresolved call stubs for
// every call expression in its body: a bare identifier callee is
// assumed same-module and qualified against the file's module path; a
// `::`-scoped callee keeps its written path. Method calls through a
// receiver are skipped, since the receiver's type is not knowable
// from the syntax alone.
func handleFunction(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	nameNode := langextract.CaptureNode(m, q, "name")
	defNode := langextract.CaptureNode(m, q, "def")
	if nameNode == nil || defNode == nil {
		return nil, nil
	}

	modulePath := langextract.ModulePathFromFile(filePath, "::")
	e := langextract.BuildEntity(entity.Function, entity.LangRust, nameNode.Utf8Text(source),
		modulePath, "::", filePath, repoID, defNode, source)

	for _, callee := range collectCallTargets(defNode, source) {
		target := callee
		if !strings.Contains(callee, "::") && modulePath != "" {
			target = modulePath + "::" + callee
		}
		if target == e.QualifiedName {
			continue
		}
		e.Relationships = append(e.Relationships, entity.Relationship{
			Type:            entity.Calls,
			FromEntityID:    e.EntityID,
			ToQualifiedName: target,
		})
	}
	return []entity.CodeEntity{e}, nil
}

// collectCallTargets walks a subtree for call_expression nodes and
// returns each callee's written name, deduplicated in first-seen
// order so reparsing yields a stable stub list.
func collectCallTargets(node *sitter.Node, source []byte) []string {
	var targets []string
	seen := make(map[string]struct{})

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Kind() == "call_expression" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				switch fn.Kind() {
				case "identifier", "scoped_identifier":
					name := fn.Utf8Text(source)
					if _, ok := seen[name]; !ok {
						seen[name] = struct{}{}
						targets = append(targets, name)
					}
				}
			}
		}
		for i := uint(0); i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
	return targets
}

// handleUnion extracts a union plus one Property entity per field,
// each scoped under the union's qualified name.
func handleUnion(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
	nameNode := langextract.CaptureNode(m, q, "name")
	defNode := langextract.CaptureNode(m, q, "def")
	fieldsNode := langextract.CaptureNode(m, q, "fields")
	if nameNode == nil || defNode == nil {
		return nil, nil
	}

	modulePath := langextract.ModulePathFromFile(filePath, "::")
	union := langextract.BuildEntity(entity.Union, entity.LangRust, nameNode.Utf8Text(source),
		modulePath, "::", filePath, repoID, defNode, source)

	out := []entity.CodeEntity{union}
	if fieldsNode == nil {
		return out, nil
	}
	for i := uint(0); i < fieldsNode.NamedChildCount(); i++ {
		field := fieldsNode.NamedChild(i)
		if field.Kind() != "field_declaration" {
			continue
		}
		fieldName := field.ChildByFieldName("name")
		if fieldName == nil {
			continue
		}
		out = append(out, langextract.BuildEntity(entity.Property, entity.LangRust,
			fieldName.Utf8Text(source), union.QualifiedName, "::", filePath, repoID, field, source))
	}
	return out, nil
}
