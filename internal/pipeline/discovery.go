package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loganmoon/codesearch/internal/langextract/registry"
	"github.com/loganmoon/codesearch/internal/logging"
)

const maxDiscoveryWalkers = 12
const maxFileSizeBytes = 10 * 1024 * 1024

var defaultExcludeDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "target": {}, "dist": {}, "build": {},
	".vscode": {}, ".idea": {}, "vendor": {}, "__pycache__": {}, ".pytest_cache": {}, ".cargo": {},
}

// runDiscovery is Stage 1: it walks rootPath, splits the path stream
// across maxDiscoveryWalkers top-level-directory workers, and
// coordinates their output into FileBatch values of batchSize paths,
// forwarded on out as soon as they fill so downstream stages can
// begin before discovery completes.
func runDiscovery(ctx context.Context, g *errgroup.Group, rootPath string, batchSize int, ignorePatterns []string, log *logging.Logger, out chan<- FileBatch) (<-chan int, error) {
	matcher := gitignore.CompileIgnoreLines(append(loadRepoGitignore(rootPath), ignorePatterns...)...)

	entries, err := os.ReadDir(rootPath)
	if err != nil {
		return nil, err
	}

	pathCh := make(chan string, batchSize*2)
	countCh := make(chan int, 1)

	walkers := min(maxDiscoveryWalkers, max(1, runtime.NumCPU()))
	sem := make(chan struct{}, walkers)

	g.Go(func() error {
		defer close(pathCh)
		inner, innerCtx := errgroup.WithContext(ctx)
		for _, e := range entries {
			entryPath := filepath.Join(rootPath, e.Name())
			sem <- struct{}{}
			inner.Go(func() error {
				defer func() { <-sem }()
				return walkOne(innerCtx, rootPath, entryPath, matcher, pathCh)
			})
		}
		return inner.Wait()
	})

	g.Go(func() error {
		defer close(countCh)
		defer close(out)
		total := 0
		var batch FileBatch
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case p, ok := <-pathCh:
				if !ok {
					if len(batch.Paths) > 0 {
						out <- batch
					}
					countCh <- total
					return nil
				}
				total++
				batch.Paths = append(batch.Paths, p)
				if len(batch.Paths) >= batchSize {
					out <- batch
					batch = FileBatch{}
				}
			}
		}
	})

	log.Info("discovery started", zap.String("root", rootPath), zap.Int("walkers", walkers))
	return countCh, nil
}

func walkOne(ctx context.Context, repoRoot, entryRoot string, matcher *gitignore.GitIgnore, pathCh chan<- string) error {
	return filepath.WalkDir(entryRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(repoRoot, p)
		if relErr == nil && matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if _, excluded := defaultExcludeDirs[d.Name()]; excluded {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(p)
		if _, ok := registry.LanguageForExtension(ext); !ok {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.Size() > maxFileSizeBytes {
			return nil
		}
		select {
		case pathCh <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

func loadRepoGitignore(rootPath string) []string {
	data, err := os.ReadFile(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}
	return strings.Split(string(data), "\n")
}
