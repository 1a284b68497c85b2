package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/xerrors"
)

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(logging.NewDefaultConfig())
	require.NoError(t, err)
	return log
}

func TestAcquireLock_Exclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(context.Background(), dir, time.Second)
	require.NoError(t, err)

	_, err = AcquireLock(context.Background(), dir, 300*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, xerrors.KindInfrastructure, xerrors.KindOf(err))

	require.NoError(t, first.Release())

	second, err := AcquireLock(context.Background(), dir, time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquireLock_ReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l, err := AcquireLock(context.Background(), dir, time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
}

func TestOrchestrator_AllHealthy(t *testing.T) {
	o := &Orchestrator{
		Backends: []Backend{
			BackendFunc{BackendName: "postgres", Check: func(context.Context) error { return nil }},
			BackendFunc{BackendName: "qdrant", Check: func(context.Context) error { return nil }},
		},
		Log: newTestLogger(t),
	}
	require.NoError(t, o.Ensure(context.Background()))
}

func TestOrchestrator_UnhealthyWithoutAutoStartFails(t *testing.T) {
	o := &Orchestrator{
		Backends: []Backend{
			BackendFunc{BackendName: "neo4j", Check: func(context.Context) error { return errors.New("connection refused") }},
		},
		Log: newTestLogger(t),
	}
	err := o.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neo4j")
	assert.Contains(t, err.Error(), "auto_start_deps")
}

func TestOrchestrator_AutoStartRecovers(t *testing.T) {
	healthy := false
	started := 0
	o := &Orchestrator{
		Backends: []Backend{
			BackendFunc{BackendName: "qdrant", Check: func(context.Context) error {
				if healthy {
					return nil
				}
				return errors.New("not yet")
			}},
		},
		AutoStartDeps: true,
		StartupWait:   5 * time.Second,
		Log:           newTestLogger(t),
		composeUp: func(context.Context) error {
			started++
			healthy = true
			return nil
		},
	}
	require.NoError(t, o.Ensure(context.Background()))
	assert.Equal(t, 1, started)
}

func TestOrchestrator_AutoStartTimesOut(t *testing.T) {
	o := &Orchestrator{
		Backends: []Backend{
			BackendFunc{BackendName: "postgres", Check: func(context.Context) error { return errors.New("down") }},
		},
		AutoStartDeps: true,
		StartupWait:   10 * time.Millisecond,
		Log:           newTestLogger(t),
		composeUp:     func(context.Context) error { return nil },
	}
	err := o.Ensure(context.Background())
	require.Error(t, err)
	assert.Equal(t, xerrors.KindInfrastructure, xerrors.KindOf(err))
}
