// Package tsx implements the TSX (TypeScript + JSX) language
// extractor. The grammar differs from plain TypeScript only in its
// JSX productions; the entity-level queries this package cares about
// (functions, classes, interfaces, enums) are identical, so this
// module reuses the same query strings and the shared enum handler
// against the TSX grammar variant.
package tsx

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/langextract"
	"github.com/loganmoon/codesearch/internal/langextract/typescript"
)

const (
	queryFunction  = `(function_declaration name: (identifier) @name) @def`
	queryClass     = `(class_declaration name: (type_identifier) @name) @def`
	queryInterface = `(interface_declaration name: (type_identifier) @name) @def`
)

// Language lazily compiles the TSX tree-sitter language object.
func Language() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
}

// Build compiles this module's Configuration.
func Build() (*langextract.Configuration, error) {
	lang := Language()
	h := func(kind entity.EntityType) langextract.Handler {
		return langextract.SimpleEntityHandler(kind, entity.LangTSX, ".")
	}
	return langextract.NewBuilder(entity.LangTSX, lang).
		AddExtractor("function", queryFunction, h(entity.Function)).
		AddExtractor("class", queryClass, h(entity.Class)).
		AddExtractor("interface", queryInterface, h(entity.Interface)).
		AddExtractor("enum", typescript.EnumQuery, typescript.EnumHandler(entity.LangTSX)).
		Build()
}
