// Package infra serializes infrastructure bring-up between concurrent
// processes with an advisory file lock, and health-checks the backing
// stores before the pipeline starts.
package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/loganmoon/codesearch/internal/xerrors"
)

// lockFileName lives under the data directory; two processes bringing
// up the same data directory contend on it.
const lockFileName = ".infrastructure.lock"

// retryInterval is how often a blocked acquire re-attempts the lock.
const retryInterval = 100 * time.Millisecond

// Lock is a held advisory lock. Release it on every exit path; the
// operating system also drops it if the process dies.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the advisory infrastructure lock under dataDir,
// waiting up to timeout. A second process indexing the same repository
// blocks here instead of interleaving partial state.
func AcquireLock(ctx context.Context, dataDir string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Infrastructure("infra", "create_data_dir", err).WithKey(dataDir)
	}

	path := filepath.Join(dataDir, lockFileName)
	fl := flock.New(path)

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := fl.TryLockContext(lockCtx, retryInterval)
	if err != nil {
		if lockCtx.Err() != nil {
			return nil, xerrors.Infrastructure("infra", "acquire_lock",
				fmt.Errorf("another process holds %s (waited %s)", path, timeout))
		}
		return nil, xerrors.Infrastructure("infra", "acquire_lock", err).WithKey(path)
	}
	if !ok {
		return nil, xerrors.Infrastructure("infra", "acquire_lock",
			fmt.Errorf("another process holds %s (waited %s)", path, timeout))
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
