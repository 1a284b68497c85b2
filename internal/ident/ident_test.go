package ident

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryID_StableAndCanonical(t *testing.T) {
	dir := t.TempDir()

	id1, err := RepositoryID(dir)
	require.NoError(t, err)

	id2, err := RepositoryID(dir)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "repository id must be stable across calls")

	canonical, err := CanonicalizePath(dir)
	require.NoError(t, err)
	id3, err := RepositoryID(canonical)
	require.NoError(t, err)
	assert.Equal(t, id1, id3)
}

func TestRepositoryID_StableUnderParentRename(t *testing.T) {
	root := t.TempDir()
	parent := filepath.Join(root, "parent-a")
	require.NoError(t, os.Mkdir(parent, 0o755))
	repo := filepath.Join(parent, "repo")
	require.NoError(t, os.Mkdir(repo, 0o755))

	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(repo, link))

	idBefore, err := RepositoryID(link)
	require.NoError(t, err)

	renamed := filepath.Join(root, "parent-b")
	require.NoError(t, os.Rename(parent, renamed))
	require.NoError(t, os.Remove(link))
	require.NoError(t, os.Symlink(filepath.Join(renamed, "repo"), link))

	idAfter, err := RepositoryID(link)
	require.NoError(t, err)

	assert.Equal(t, idBefore, idAfter, "renaming the parent directory must not change the repository id")
}

func TestCollectionName(t *testing.T) {
	dir := t.TempDir()
	name, err := CollectionName(dir)
	require.NoError(t, err)

	base := filepath.Base(dir)
	assert.Contains(t, name, base)
	assert.Regexp(t, `^[A-Za-z0-9_-]+_[0-9a-f]{32}$`, name)
}

func TestCollectionName_SanitizesDisallowedChars(t *testing.T) {
	root := t.TempDir()
	weird := filepath.Join(root, "my repo!@#")
	require.NoError(t, os.Mkdir(weird, 0o755))

	name, err := CollectionName(weird)
	require.NoError(t, err)
	assert.NotContains(t, name, " ")
	assert.NotContains(t, name, "!")
}

func TestEntityID_Deterministic(t *testing.T) {
	id1 := EntityID("repo-uuid", "src/module.rs", "module::my_function")
	id2 := EntityID("repo-uuid", "src/module.rs", "module::my_function")
	assert.Equal(t, id1, id2)
	assert.Regexp(t, `^entity-[0-9a-f]{32}$`, id1)
}

func TestEntityID_DistinctInputsDiverge(t *testing.T) {
	base := EntityID("repo-uuid", "src/module.rs", "module::my_function")

	diffName := EntityID("repo-uuid", "src/module.rs", "module::other_function")
	assert.NotEqual(t, base, diffName)

	diffRepo := EntityID("other-repo-uuid", "src/module.rs", "module::my_function")
	assert.NotEqual(t, base, diffRepo)

	diffFile := EntityID("repo-uuid", "src/other.rs", "module::my_function")
	assert.NotEqual(t, base, diffFile)
}

func TestAnonEntityID(t *testing.T) {
	id1 := AnonEntityID("repo-uuid", "module", 0, 10, 5, "function")
	assert.Regexp(t, `^entity-anon-[0-9a-f]{32}$`, id1)

	id2 := AnonEntityID("repo-uuid", "module", 1, 10, 5, "function")
	assert.NotEqual(t, id1, id2, "different anon index must diverge")

	id3 := AnonEntityID("repo-uuid", "module", 0, 20, 5, "function")
	assert.NotEqual(t, id1, id3, "different location must diverge")
}

func TestQualifiedNameSeparator(t *testing.T) {
	assert.Equal(t, "::", QualifiedNameSeparator("rust"))
	assert.Equal(t, ".", QualifiedNameSeparator("python"))
	assert.Equal(t, ".", QualifiedNameSeparator("typescript"))
}
