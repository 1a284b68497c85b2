package pipeline

import (
	"context"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/langextract/registry"
	"github.com/loganmoon/codesearch/internal/logging"
)

// runExtraction is Stage 2: per file, read + parse with the
// registry's extractor for its language, run handlers, and pair every
// entity with its embedding input text (currently the entity's own
// content; a dedicated summarization step is out of scope). At most
// maxConcurrent files are read and parsed at once.
func runExtraction(ctx context.Context, g *errgroup.Group, reg *registry.Registry, repositoryID, collectionName, gitCommit string,
	maxConcurrent int, in <-chan FileBatch, log *logging.Logger, out chan<- ExtractedBatch, stats *Stats, statsMu chanMutex) {

	sem := semaphore.NewWeighted(int64(maxConcurrent))

	g.Go(func() error {
		defer close(out)
		inner, innerCtx := errgroup.WithContext(ctx)
		for batch := range in {
			batch := batch
			if err := sem.Acquire(innerCtx, 1); err != nil {
				return innerCtx.Err()
			}
			inner.Go(func() error {
				defer sem.Release(1)
				extracted := extractBatch(innerCtx, reg, repositoryID, collectionName, gitCommit, batch, log, stats, statsMu)
				if extracted == nil {
					return nil
				}
				select {
				case out <- *extracted:
				case <-innerCtx.Done():
					return innerCtx.Err()
				}
				return nil
			})
		}
		return inner.Wait()
	})
}

// chanMutex is a 1-buffered channel used as a lightweight mutex for
// Stats, so multiple extraction workers can update run-wide counters
// without a separate sync.Mutex import at every call site.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	c := make(chanMutex, 1)
	c <- struct{}{}
	return c
}

func (m chanMutex) locked(fn func()) {
	<-m
	defer func() { m <- struct{}{} }()
	fn()
}

func extractBatch(ctx context.Context, reg *registry.Registry, repositoryID, collectionName, gitCommit string,
	batch FileBatch, log *logging.Logger, stats *Stats, mu chanMutex) *ExtractedBatch {

	result := &ExtractedBatch{
		FileIndices:    make(map[string][]int),
		RepositoryID:   repositoryID,
		CollectionName: collectionName,
		GitCommit:      gitCommit,
	}

	for _, path := range batch.Paths {
		if ctx.Err() != nil {
			return nil
		}
		entities, err := extractFile(reg, path, repositoryID)
		if err != nil {
			mu.locked(func() {
				stats.FailedFiles++
				stats.Errors = append(stats.Errors, err.Error())
			})
			log.Warn("extraction failed", zap.String("file", path), zap.Error(err))
			result.FileIndices[path] = nil
			continue
		}

		indices := make([]int, 0, len(entities))
		for _, e := range entities {
			idx := len(result.EntityInputs)
			result.EntityInputs = append(result.EntityInputs, entityInput{Entity: e, EmbeddingText: embeddingText(e)})
			indices = append(indices, idx)
		}
		result.FileIndices[path] = indices
		mu.locked(func() {
			stats.EntitiesExtracted += len(entities)
			for _, e := range entities {
				stats.RelationshipsExtracted += len(e.Relationships)
			}
		})
	}
	return result
}

func extractFile(reg *registry.Registry, path, repositoryID string) ([]entity.CodeEntity, error) {
	lang, ok := registry.LanguageForExtension(extOf(path))
	if !ok {
		return nil, nil
	}
	extractor, found, err := reg.NewExtractor(lang)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	defer extractor.Close()

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return extractor.Extract(source, path, repositoryID)
}

// embeddingText is the text an entity's dense/sparse embeddings are
// computed from: its source content, optionally preceded by a
// documentation summary when the extractor captured one.
func embeddingText(e entity.CodeEntity) string {
	if e.DocumentationSummary != "" {
		return e.DocumentationSummary + "\n\n" + e.Content
	}
	return e.Content
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}
