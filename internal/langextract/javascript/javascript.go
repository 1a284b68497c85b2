// Package javascript implements the JavaScript language extractor:
// function declarations, class declarations, and named arrow-function
// const bindings.
package javascript

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/langextract"
)

const (
	queryFunction = `(function_declaration name: (identifier) @name) @def`
	queryClass    = `(class_declaration name: (identifier) @name) @def`
	queryArrow    = `(variable_declarator name: (identifier) @name value: (arrow_function)) @def`
)

// Language lazily compiles the JavaScript tree-sitter language object.
func Language() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_javascript.Language())
}

// Build compiles this module's Configuration.
func Build() (*langextract.Configuration, error) {
	lang := Language()
	h := func(kind entity.EntityType) langextract.Handler {
		return langextract.SimpleEntityHandler(kind, entity.LangJavaScript, ".")
	}
	return langextract.NewBuilder(entity.LangJavaScript, lang).
		AddExtractor("function", queryFunction, h(entity.Function)).
		AddExtractor("class", queryClass, h(entity.Class)).
		AddExtractor("arrow-function", queryArrow, h(entity.Function)).
		Build()
}
