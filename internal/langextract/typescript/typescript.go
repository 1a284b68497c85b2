// Package typescript implements the TypeScript language extractor:
// functions, classes, interfaces, type aliases, and enums with one
// EnumVariant entity per member, scoped under the enum.
package typescript

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/langextract"
)

const (
	queryFunction  = `(function_declaration name: (identifier) @name) @def`
	queryClass     = `(class_declaration name: (type_identifier) @name) @def`
	queryInterface = `(interface_declaration name: (type_identifier) @name) @def`
	queryTypeAlias = `(type_alias_declaration name: (type_identifier) @name) @def`

	// EnumQuery is shared with the TSX module, whose grammar has the
	// same enum productions.
	EnumQuery = `(enum_declaration name: (identifier) @name body: (enum_body) @body) @def`
)

// Language lazily compiles the TypeScript (non-TSX) tree-sitter language object.
func Language() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
}

// Build compiles this module's Configuration.
func Build() (*langextract.Configuration, error) {
	lang := Language()
	h := func(kind entity.EntityType) langextract.Handler {
		return langextract.SimpleEntityHandler(kind, entity.LangTypeScript, ".")
	}
	return langextract.NewBuilder(entity.LangTypeScript, lang).
		AddExtractor("function", queryFunction, h(entity.Function)).
		AddExtractor("class", queryClass, h(entity.Class)).
		AddExtractor("interface", queryInterface, h(entity.Interface)).
		AddExtractor("type-alias", queryTypeAlias, h(entity.TypeAlias)).
		AddExtractor("enum", EnumQuery, EnumHandler(entity.LangTypeScript)).
		Build()
}

// EnumHandler extracts an enum plus one EnumVariant per member, each
// with the enum as its parent scope. A member declared with an
// initializer records its written value in the variant's attributes.
func EnumHandler(lang entity.Language) langextract.Handler {
	return func(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
		nameNode := langextract.CaptureNode(m, q, "name")
		defNode := langextract.CaptureNode(m, q, "def")
		bodyNode := langextract.CaptureNode(m, q, "body")
		if nameNode == nil || defNode == nil {
			return nil, nil
		}

		modulePath := langextract.ModulePathFromFile(filePath, ".")
		enum := langextract.BuildEntity(entity.Enum, lang, nameNode.Utf8Text(source),
			modulePath, ".", filePath, repoID, defNode, source)

		out := []entity.CodeEntity{enum}
		if bodyNode == nil {
			return out, nil
		}
		for i := uint(0); i < bodyNode.NamedChildCount(); i++ {
			member := bodyNode.NamedChild(i)

			var memberName *sitter.Node
			var value string
			switch member.Kind() {
			case "enum_assignment":
				memberName = member.ChildByFieldName("name")
				if v := member.ChildByFieldName("value"); v != nil {
					value = v.Utf8Text(source)
				}
			case "property_identifier", "string", "computed_property_name":
				memberName = member
			default:
				continue
			}
			if memberName == nil {
				continue
			}

			variant := langextract.BuildEntity(entity.EnumVariant, lang,
				memberName.Utf8Text(source), enum.QualifiedName, ".", filePath, repoID, member, source)
			if value != "" {
				variant.Metadata.Attributes = map[string]string{"value": value}
			}
			out = append(out, variant)
		}
		return out, nil
	}
}
