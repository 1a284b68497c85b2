package watch

import (
	"fmt"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// DiffKind classifies one entry of a commit-range diff.
type DiffKind int

const (
	DiffAdded DiffKind = iota
	DiffModified
	DiffDeleted
)

// FileDiff is one changed file between two commits. Path is relative
// to the repository root, as git reports it.
type FileDiff struct {
	Path string
	Kind DiffKind
}

// HeadCommit returns the hash of the repository's current HEAD.
func HeadCommit(repoRoot string) (string, error) {
	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return "", fmt.Errorf("watch: opening repository %s: %w", repoRoot, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("watch: reading HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// ChangedFilesBetween diffs fromCommit..toCommit and classifies every
// changed path as added, modified, or deleted. An empty fromCommit
// means "everything in toCommit is new".
func ChangedFilesBetween(repoRoot, fromCommit, toCommit string) ([]FileDiff, error) {
	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("watch: opening repository %s: %w", repoRoot, err)
	}

	toTree, err := treeAt(repo, toCommit)
	if err != nil {
		return nil, err
	}

	if fromCommit == "" {
		var diffs []FileDiff
		err := toTree.Files().ForEach(func(f *object.File) error {
			diffs = append(diffs, FileDiff{Path: f.Name, Kind: DiffAdded})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("watch: listing files at %s: %w", short(toCommit), err)
		}
		return diffs, nil
	}

	fromTree, err := treeAt(repo, fromCommit)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return nil, fmt.Errorf("watch: diffing %s..%s: %w", short(fromCommit), short(toCommit), err)
	}

	diffs := make([]FileDiff, 0, len(changes))
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return nil, fmt.Errorf("watch: classifying change: %w", err)
		}
		switch action {
		case merkletrie.Insert:
			diffs = append(diffs, FileDiff{Path: ch.To.Name, Kind: DiffAdded})
		case merkletrie.Delete:
			diffs = append(diffs, FileDiff{Path: ch.From.Name, Kind: DiffDeleted})
		case merkletrie.Modify:
			// A rename shows up as a modify with differing names: the
			// old path is gone and the new path is new content.
			if ch.From.Name != ch.To.Name {
				diffs = append(diffs,
					FileDiff{Path: ch.From.Name, Kind: DiffDeleted},
					FileDiff{Path: ch.To.Name, Kind: DiffAdded})
				continue
			}
			diffs = append(diffs, FileDiff{Path: ch.To.Name, Kind: DiffModified})
		}
	}
	return diffs, nil
}

func treeAt(repo *git.Repository, commitHash string) (*object.Tree, error) {
	commit, err := repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return nil, fmt.Errorf("watch: resolving commit %s: %w", short(commitHash), err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("watch: reading tree of %s: %w", short(commitHash), err)
	}
	return tree, nil
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
