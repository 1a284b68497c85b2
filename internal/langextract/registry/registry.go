// Package registry wires every language module into a single lookup
// table keyed by entity.Language, so the pipeline's extraction stage
// never imports a specific language package directly. It exists as
// its own package (rather than living in internal/langextract itself)
// because every langextract/<lang> package imports internal/langextract
// for Builder/Configuration; aggregating them here avoids an import
// cycle.
package registry

import (
	"fmt"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/langextract"
	"github.com/loganmoon/codesearch/internal/langextract/golang"
	"github.com/loganmoon/codesearch/internal/langextract/javascript"
	"github.com/loganmoon/codesearch/internal/langextract/python"
	"github.com/loganmoon/codesearch/internal/langextract/rust"
	"github.com/loganmoon/codesearch/internal/langextract/tsx"
	"github.com/loganmoon/codesearch/internal/langextract/typescript"
)

var builders = map[entity.Language]func() (*langextract.Configuration, error){
	entity.LangRust:       rust.Build,
	entity.LangPython:     python.Build,
	entity.LangJavaScript: javascript.Build,
	entity.LangTypeScript: typescript.Build,
	entity.LangTSX:        tsx.Build,
	entity.LangGo:         golang.Build,
}

// Registry holds compiled Configurations for the set of enabled languages.
type Registry struct {
	configs map[entity.Language]*langextract.Configuration
}

// New compiles a Configuration for every language named in enabled
// (the languages.enabled whitelist). An unknown language name is an
// error: it almost always means a typo in configuration.
func New(enabled []string) (*Registry, error) {
	r := &Registry{configs: make(map[entity.Language]*langextract.Configuration, len(enabled))}
	for _, name := range enabled {
		lang := entity.Language(name)
		build, ok := builders[lang]
		if !ok {
			return nil, fmt.Errorf("langextract/registry: unknown language %q", name)
		}
		config, err := build()
		if err != nil {
			return nil, fmt.Errorf("langextract/registry: building %q: %w", name, err)
		}
		r.configs[lang] = config
	}
	return r, nil
}

// NewExtractor returns a fresh *langextract.Extractor for lang, or
// false if lang was not in the enabled set.
func (r *Registry) NewExtractor(lang entity.Language) (*langextract.Extractor, bool, error) {
	config, ok := r.configs[lang]
	if !ok {
		return nil, false, nil
	}
	ex, err := langextract.NewExtractor(config)
	if err != nil {
		return nil, true, err
	}
	return ex, true, nil
}

// LanguageForExtension maps a file extension (including the leading
// dot) to the entity.Language the discovery stage should route it to.
func LanguageForExtension(ext string) (entity.Language, bool) {
	switch ext {
	case ".rs":
		return entity.LangRust, true
	case ".py":
		return entity.LangPython, true
	case ".js", ".mjs", ".cjs", ".jsx":
		return entity.LangJavaScript, true
	case ".ts":
		return entity.LangTypeScript, true
	case ".tsx":
		return entity.LangTSX, true
	case ".go":
		return entity.LangGo, true
	default:
		return entity.LangUnknown, false
	}
}
