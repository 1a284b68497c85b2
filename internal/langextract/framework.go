// Package langextract implements the tree-sitter-based extraction
// framework: one compiled, combined query per language, with matches
// dispatched to per-entity-type handlers by capture name. Each
// language module (rust, python, javascript, typescript, tsx, golang)
// builds a *Configuration via Builder and registers it in the
// package-level Registry.
package langextract

import (
	"fmt"
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/ident"
)

// Handler turns one query match into zero or more entities. Handlers
// must be deterministic and re-entrant: the same match on the same
// source always yields the same entities, and a handler never mutates
// shared state across calls.
type Handler func(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repositoryID string) ([]entity.CodeEntity, error)

type extractor struct {
	name          string
	query         string
	captureOffset int
	handler       Handler
}

// Configuration is one language's compiled combined query plus its
// capture-name-to-handler dispatch table.
type Configuration struct {
	language   entity.Language
	sitterLang *sitter.Language
	extractors []extractor
	compiled   *sitter.Query
}

// Builder assembles a Configuration from independently-authored
// per-entity-type queries, the way the framework combines them into a
// single tree-sitter query for one-pass matching.
type Builder struct {
	language   entity.Language
	sitterLang *sitter.Language
	extractors []extractor
	err        error
}

// NewBuilder starts a Configuration for lang, backed by sitterLang.
func NewBuilder(lang entity.Language, sitterLang *sitter.Language) *Builder {
	return &Builder{language: lang, sitterLang: sitterLang}
}

// AddExtractor registers one entity-type's query and handler. query
// must be a valid standalone tree-sitter query in this language; it is
// folded into the builder's combined query at Build time with a
// synthetic `@__extractor_<name>` capture appended so matches can be
// routed back to this handler without re-running a separate query per
// entity type.
func (b *Builder) AddExtractor(name, query string, handler Handler) *Builder {
	if b.err != nil {
		return b
	}
	b.extractors = append(b.extractors, extractor{name: name, query: query, handler: handler})
	return b
}

// Build compiles the combined query. It fails if no extractors were
// added or if any individual query fails to parse against sitterLang.
func (b *Builder) Build() (*Configuration, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.extractors) == 0 {
		return nil, fmt.Errorf("langextract: %s: no extractors registered", b.language)
	}

	var parts []string
	offset := 0
	for i := range b.extractors {
		ex := &b.extractors[i]
		tmp, qErr := sitter.NewQuery(b.sitterLang, ex.query)
		if qErr != nil {
			return nil, fmt.Errorf("langextract: %s: compiling %q query: %w", b.language, ex.name, qErr)
		}
		ex.captureOffset = offset
		offset += len(tmp.CaptureNames())
		tmp.Close()

		marker := strings.ReplaceAll(ex.name, "-", "_")
		parts = append(parts, fmt.Sprintf("%s @__extractor_%s", strings.TrimSpace(ex.query), marker))
	}

	combined := strings.Join(parts, "\n")
	compiled, qErr := sitter.NewQuery(b.sitterLang, combined)
	if qErr != nil {
		return nil, fmt.Errorf("langextract: %s: compiling combined query: %w", b.language, qErr)
	}

	return &Configuration{
		language:   b.language,
		sitterLang: b.sitterLang,
		extractors: b.extractors,
		compiled:   compiled,
	}, nil
}

// Language reports the entity.Language this configuration extracts.
func (c *Configuration) Language() entity.Language { return c.language }

// extractorByName finds the registered extractor for a dispatch marker.
func (c *Configuration) extractorByName(name string) (*extractor, bool) {
	marker := strings.ReplaceAll(name, "_", "-")
	for i := range c.extractors {
		if c.extractors[i].name == marker {
			return &c.extractors[i], true
		}
	}
	return nil, false
}

// Extractor runs a Configuration's combined query against one file's
// source text, producing every entity all registered handlers find.
// A per-match handler failure is isolated: it is reported to onError
// (if non-nil) and extraction continues with the next match.
type Extractor struct {
	config *Configuration
	parser *sitter.Parser
}

// NewExtractor builds a fresh, non-shared *sitter.Parser bound to
// config's language. Extractors are not safe for concurrent use; the
// pipeline allocates one per in-flight extraction worker.
func NewExtractor(config *Configuration) (*Extractor, error) {
	parser := sitter.NewParser()
	if err := parser.SetLanguage(config.sitterLang); err != nil {
		return nil, fmt.Errorf("langextract: %s: setting parser language: %w", config.language, err)
	}
	return &Extractor{config: config, parser: parser}, nil
}

// Close releases the underlying tree-sitter parser.
func (e *Extractor) Close() {
	e.parser.Close()
}

// Extract parses source and dispatches every match of the combined
// query to its owning handler, returning the union of their results.
func (e *Extractor) Extract(source []byte, filePath, repositoryID string) ([]entity.CodeEntity, error) {
	tree := e.parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("langextract: %s: failed to parse %s", e.config.language, filePath)
	}
	defer tree.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(e.config.compiled, tree.RootNode(), source)

	var out []entity.CodeEntity
	var errs []string
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		ex, handler := e.dispatch(m)
		if handler == nil {
			continue
		}
		entities, err := ex.handler(m, e.config.compiled, source, filePath, repositoryID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ex.name, err))
			continue
		}
		out = append(out, entities...)
	}

	if len(errs) > 0 {
		return out, fmt.Errorf("langextract: %s: %s: %d handler error(s): %s",
			e.config.language, filePath, len(errs), strings.Join(errs, "; "))
	}
	return out, nil
}

func (e *Extractor) dispatch(m *sitter.QueryMatch) (*extractor, Handler) {
	names := e.config.compiled.CaptureNames()
	for _, cap := range m.Captures {
		if int(cap.Index) >= len(names) {
			continue
		}
		name := names[cap.Index]
		if !strings.HasPrefix(name, "__extractor_") {
			continue
		}
		marker := strings.TrimPrefix(name, "__extractor_")
		if ex, ok := e.config.extractorByName(marker); ok {
			return ex, ex.handler
		}
	}
	return nil, nil
}

// CaptureNode returns the first node captured under name in m, or nil
// when the match has no such capture.
func CaptureNode(m *sitter.QueryMatch, q *sitter.Query, name string) *sitter.Node {
	names := q.CaptureNames()
	for _, c := range m.Captures {
		if int(c.Index) < len(names) && names[c.Index] == name {
			n := c.Node
			return &n
		}
	}
	return nil
}

// SimpleEntityHandler builds a Handler for the common case: a query
// with exactly a `@name` and a `@def` capture, where the qualified
// name is the file's synthesized module path joined to the captured
// name with sep. Every per-language package that doesn't need
// bespoke capture handling (parameters, decorators, base classes)
// uses this instead of hand-writing its own capture-walking loop.
func SimpleEntityHandler(kind entity.EntityType, lang entity.Language, sep string) Handler {
	return func(m *sitter.QueryMatch, q *sitter.Query, source []byte, filePath, repoID string) ([]entity.CodeEntity, error) {
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
		modulePath := ModulePathFromFile(filePath, sep)
		e := BuildEntity(kind, lang, name, modulePath, sep, filePath, repoID, defNode, source)
		return []entity.CodeEntity{e}, nil
	}
}

// BuildEntity assembles a CodeEntity under parentScope, attaching the
// unresolved Contains stub that links it back to its parent: the
// child carries its parent's qualified name, and the outbox processor
// later completes the parent-to-child edge once both nodes exist.
func BuildEntity(kind entity.EntityType, lang entity.Language, name, parentScope, sep, filePath, repoID string, defNode *sitter.Node, source []byte) entity.CodeEntity {
	qualifiedName := name
	if parentScope != "" {
		qualifiedName = parentScope + sep + name
	}

	start := defNode.StartPosition()
	end := defNode.EndPosition()

	e := entity.CodeEntity{
		EntityID:      ident.EntityID(repoID, filePath, qualifiedName),
		RepositoryID:  repoID,
		Name:          name,
		QualifiedName: qualifiedName,
		ParentScope:   parentScope,
		EntityType:    kind,
		FilePath:      filePath,
		Location: entity.Location{
			StartLine: int(start.Row) + 1,
			EndLine:   int(end.Row) + 1,
			StartCol:  int(start.Column),
			EndCol:    int(end.Column),
		},
		Language: lang,
		Content:  string(defNode.Utf8Text(source)),
	}
	if parentScope != "" {
		e.Relationships = append(e.Relationships, entity.Relationship{
			Type:              entity.Contains,
			FromQualifiedName: parentScope,
			ToEntityID:        e.EntityID,
		})
	}
	return e
}

// ModulePathFromFile synthesizes a crate/package-root-relative module
// path from a file path. mod.rs/lib.rs/main.rs (and index/__init__)
// collapse a level; everything else keeps its stem. A `src` component
// anchors the path: everything above it is replaced by the name of
// the directory that contains it, which is the crate/package name, so
// /repos/demo/src/foo.rs becomes demo::foo regardless of where the
// repository lives on disk. Absolute paths without a src tree keep
// only their innermost directory and stem.
func ModulePathFromFile(filePath, sep string) string {
	clean := strings.TrimSuffix(filePath, path.Ext(filePath))
	parts := strings.Split(clean, "/")
	if len(parts) > 0 {
		last := parts[len(parts)-1]
		if last == "mod" || last == "lib" || last == "main" || last == "index" || last == "__init__" {
			parts = parts[:len(parts)-1]
		}
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "src" {
			continue
		}
		var anchored []string
		if i > 0 && parts[i-1] != "" {
			anchored = append(anchored, parts[i-1])
		}
		anchored = append(anchored, parts[i+1:]...)
		return strings.Join(anchored, sep)
	}
	if len(parts) > 0 && parts[0] == "" {
		if len(parts) > 2 {
			parts = parts[len(parts)-2:]
		} else {
			parts = parts[1:]
		}
	}
	return strings.Join(parts, sep)
}

// CrateNameFromFile derives the implicit root-module name for a file:
// the name of the directory containing its `src` tree when the path
// has one, else the file's immediate parent directory.
func CrateNameFromFile(filePath string) string {
	dir := path.Dir(filePath)
	parts := strings.Split(dir, "/")
	for i := len(parts) - 1; i > 0; i-- {
		if parts[i] == "src" && parts[i-1] != "" {
			return parts[i-1]
		}
	}
	if len(parts) > 0 {
		last := parts[len(parts)-1]
		if last != "" && last != "." && last != "/" {
			return last
		}
	}
	return ""
}
