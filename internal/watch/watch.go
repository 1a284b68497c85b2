// Package watch turns raw filesystem events into a debounced, minimal
// FileChange stream, and catches a previously-indexed repository up
// to HEAD by git diff when changes happened while the process was
// down. Both paths feed the same pipeline write path
// (Pipeline.RunFiles); the watcher never writes to storage itself.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/loganmoon/codesearch/internal/config"
	"github.com/loganmoon/codesearch/internal/langextract/registry"
	"github.com/loganmoon/codesearch/internal/logging"
)

// ChangeKind classifies one FileChange.
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// FileMetadata is the stat info carried on Created/Modified changes.
type FileMetadata struct {
	Size    int64
	ModTime time.Time
}

// FileChange is one debounced change to a supported source file. Path
// is absolute.
type FileChange struct {
	Kind ChangeKind
	Path string
	Meta FileMetadata
}

// alwaysSkipDirs are directories never worth watching, mirroring the
// discovery stage's exclude set.
var alwaysSkipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "target": {}, "dist": {}, "build": {},
	".vscode": {}, ".idea": {}, "vendor": {}, "__pycache__": {}, ".pytest_cache": {}, ".cargo": {},
}

// Watcher emits debounced FileChange events for one repository root.
// Events for the same path within the debounce window collapse into a
// single change; the consumer is expected to process changes serially,
// which gives the single-writer-per-(repo, path) guarantee.
type Watcher struct {
	root     string
	debounce time.Duration
	matcher  *gitignore.GitIgnore
	fsw      *fsnotify.Watcher
	changes  chan FileChange
	log      *logging.Logger
}

// NewWatcher builds a recursive watcher over root. Directories matching
// the configured ignore patterns (or the always-skip set) are not
// watched; files are filtered to the supported language extensions.
func NewWatcher(root string, cfg config.WatcherConfig, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: time.Duration(cfg.DebounceMS) * time.Millisecond,
		matcher:  gitignore.CompileIgnoreLines(cfg.IgnorePatterns...),
		fsw:      fsw,
		changes:  make(chan FileChange, 256),
		log:      log,
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil
		}
		if w.skipDir(p, d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Changes is the debounced change stream. It is closed when Run returns.
func (w *Watcher) Changes() <-chan FileChange { return w.changes }

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run pumps raw fsnotify events into the debounced stream until ctx is
// cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.changes)

	// The ticker fires well inside the debounce window so a quiet
	// period is detected within ~1.5x the configured debounce.
	tick := w.debounce / 2
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]fsnotify.Op)
	var lastEvent time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.flush(ctx, pending)
				return nil
			}
			w.handleEvent(ev, pending)
			lastEvent = time.Now()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("filesystem watcher error", zap.Error(err))

		case <-ticker.C:
			if len(pending) > 0 && time.Since(lastEvent) >= w.debounce {
				w.flush(ctx, pending)
				pending = make(map[string]fsnotify.Op)
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event, pending map[string]fsnotify.Op) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.skipDir(ev.Name, filepath.Base(ev.Name)) {
				if err := w.fsw.Add(ev.Name); err != nil {
					w.log.Warn("adding watch for new directory failed", zap.String("dir", ev.Name), zap.Error(err))
				}
			}
			return
		}
	}
	if !w.tracks(ev.Name) {
		return
	}
	pending[ev.Name] |= ev.Op
}

func (w *Watcher) flush(ctx context.Context, pending map[string]fsnotify.Op) {
	for path, op := range pending {
		info, statErr := os.Stat(path)
		kind, ok := coalesce(op, statErr == nil)
		if !ok {
			continue
		}
		change := FileChange{Kind: kind, Path: path}
		if statErr == nil {
			change.Meta = FileMetadata{Size: info.Size(), ModTime: info.ModTime()}
		}
		select {
		case w.changes <- change:
		case <-ctx.Done():
			return
		}
	}
}

// coalesce reduces the union of a path's raw ops over one debounce
// window to a single change kind, using whether the file still exists
// as the tiebreak: a create+write+remove burst on a temp file is no
// change at all unless the file survived the window.
func coalesce(op fsnotify.Op, exists bool) (ChangeKind, bool) {
	if !exists {
		if op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			return Deleted, true
		}
		return 0, false
	}
	if op&fsnotify.Create != 0 {
		return Created, true
	}
	if op&(fsnotify.Write|fsnotify.Rename) != 0 {
		return Modified, true
	}
	return 0, false
}

// tracks reports whether path is a supported, non-ignored source file.
func (w *Watcher) tracks(path string) bool {
	if _, ok := registry.LanguageForExtension(filepath.Ext(path)); !ok {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return !w.matcher.MatchesPath(rel)
}

func (w *Watcher) skipDir(path, name string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		// The root itself is always watched, whatever it is named.
		return false
	}
	if _, skip := alwaysSkipDirs[name]; skip {
		return true
	}
	return w.matcher.MatchesPath(rel)
}
