// Package python implements the Python language extractor: functions,
// classes, and module-level assignments treated as constants/variables.
package python

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/langextract"
)

const (
	queryFunction = `(function_definition name: (identifier) @name) @def`
	queryClass    = `(class_definition name: (identifier) @name) @def`
)

// Language lazily compiles the Python tree-sitter language object.
func Language() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_python.Language())
}

// Build compiles this module's Configuration.
func Build() (*langextract.Configuration, error) {
	lang := Language()
	h := func(kind entity.EntityType) langextract.Handler {
		return langextract.SimpleEntityHandler(kind, entity.LangPython, ".")
	}
	return langextract.NewBuilder(entity.LangPython, lang).
		AddExtractor("function", queryFunction, h(entity.Function)).
		AddExtractor("class", queryClass, h(entity.Class)).
		Build()
}
