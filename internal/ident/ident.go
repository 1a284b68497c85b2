// Package ident implements the deterministic identity and naming
// contracts of the indexing engine: repository IDs, collection names,
// and entity IDs. Every function here is pure: same input, same
// output, forever (see spec invariants on identity stability).
package ident

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// repositoryNamespace is the fixed UUID namespace used to derive
// deterministic v5 repository IDs from a canonicalized path. It must
// never change: doing so would silently reassign every repository ID.
var repositoryNamespace = uuid.MustParse("6f6e9b0a-6e2a-4bd4-9b8a-6c2d2f6a9f31")

var collectionSanitizePattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// CanonicalizePath resolves symlinks and `.`/`..` components in path.
// On failure (e.g. a dangling symlink) it falls back to the absolute
// path unchanged.
func CanonicalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, fmt.Errorf("ident: resolving absolute path for %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, nil
	}
	return resolved, nil
}

// RepositoryID derives a stable v5-style UUID from a repository's
// canonicalized absolute path. Same canonical path forever produces
// the same ID, independent of how the path was reached (symlinks,
// parent-directory renames) as long as the canonical target is stable.
func RepositoryID(path string) (string, error) {
	canonical, err := CanonicalizePath(path)
	if err != nil {
		return "", err
	}
	id := uuid.NewSHA1(repositoryNamespace, []byte(canonical))
	return id.String(), nil
}

// CollectionName derives the vector-store collection name for path:
// the last path component, truncated to 50 characters with disallowed
// characters replaced by `_`, followed by `_` and a 128-bit hex hash
// of the canonicalized path.
func CollectionName(path string) (string, error) {
	canonical, err := CanonicalizePath(path)
	if err != nil {
		return "", err
	}
	base := filepath.Base(canonical)
	if len(base) > 50 {
		base = base[:50]
	}
	sanitized := collectionSanitizePattern.ReplaceAllString(base, "_")
	if sanitized == "" {
		sanitized = "repo"
	}
	return fmt.Sprintf("%s_%s", sanitized, hash128Hex(canonical)), nil
}

// EntityID derives the stable identity of a named entity from the
// triple (repositoryID, filePath, qualifiedName). It is stable under
// reparse: identical inputs always produce the identical ID.
func EntityID(repositoryID, filePath, qualifiedName string) string {
	key := fmt.Sprintf("%s:%s:%s", repositoryID, filePath, qualifiedName)
	return "entity-" + hash128Hex(key)
}

// AnonEntityID derives the identity of an entity with no stable name
// (e.g. an anonymous impl block or closure). Location and an
// in-scope anonymous index are salted into the hash so siblings never
// collide, while reparsing the same unchanged file reproduces the
// same ID. entityType is the string form of entity.EntityType; it is
// accepted as a plain string so this leaf package need not import
// internal/entity.
func AnonEntityID(repositoryID, qualifiedName string, anonIndex, startLine, startCol int, entityType string) string {
	key := fmt.Sprintf("%s:%s:L%d:C%d:%s:anon-%d", repositoryID, qualifiedName, startLine, startCol, entityType, anonIndex)
	return "entity-anon-" + hash128Hex(key)
}

// hash128Hex combines two independently seeded 64-bit xxhash digests
// into a 128-bit hex string. The seeds and combination are fixed and
// documented: changing them requires a data migration, not a silent
// behavior change.
func hash128Hex(s string) string {
	const (
		seedLo uint64 = 0
		seedHi uint64 = 0x9E3779B97F4A7C15
	)
	lo := xxhash.Sum64String(s)
	hi := xxhash.Sum64String(string(seedHiSalt(seedHi)) + s)
	_ = seedLo
	return fmt.Sprintf("%016x%016x", lo, hi)
}

func seedHiSalt(seed uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(seed >> (8 * i))
	}
	return b
}

// QualifiedNameSeparator returns the scope-joining token for a
// language identifier string (e.g. "rust" -> "::", everything else
// -> "."), used by the extraction-framework scope builder.
func QualifiedNameSeparator(language string) string {
	if strings.EqualFold(language, "rust") {
		return "::"
	}
	return "."
}
