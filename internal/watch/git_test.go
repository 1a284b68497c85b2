package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitAll(t *testing.T, wt *git.Worktree, msg string) string {
	t.Helper()
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func writeAndAdd(t *testing.T, dir string, wt *git.Worktree, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err := wt.Add(name)
	require.NoError(t, err)
}

func TestChangedFilesBetween_ClassifiesDiff(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeAndAdd(t, dir, wt, "a.rs", "pub fn a() {}\n")
	writeAndAdd(t, dir, wt, "b.rs", "pub fn b() {}\n")
	first := commitAll(t, wt, "first")

	writeAndAdd(t, dir, wt, "a.rs", "pub fn a() { println!(\"x\"); }\n")
	writeAndAdd(t, dir, wt, "c.rs", "pub fn c() {}\n")
	_, err = wt.Remove("b.rs")
	require.NoError(t, err)
	second := commitAll(t, wt, "second")

	head, err := HeadCommit(dir)
	require.NoError(t, err)
	assert.Equal(t, second, head)

	diffs, err := ChangedFilesBetween(dir, first, second)
	require.NoError(t, err)

	kinds := make(map[string]DiffKind, len(diffs))
	for _, d := range diffs {
		kinds[d.Path] = d.Kind
	}
	assert.Equal(t, DiffModified, kinds["a.rs"])
	assert.Equal(t, DiffDeleted, kinds["b.rs"])
	assert.Equal(t, DiffAdded, kinds["c.rs"])
}

func TestChangedFilesBetween_EmptyFromListsEverything(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeAndAdd(t, dir, wt, "a.py", "def a(): pass\n")
	head := commitAll(t, wt, "initial")

	diffs, err := ChangedFilesBetween(dir, "", head)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, FileDiff{Path: "a.py", Kind: DiffAdded}, diffs[0])
}
