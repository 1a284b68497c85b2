package infra

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/xerrors"
)

// Backend is one external dependency (metadata store, vector store,
// graph store) the orchestrator health-checks at bring-up.
type Backend interface {
	Name() string
	Health(ctx context.Context) error
}

// BackendFunc adapts a plain health function to Backend.
type BackendFunc struct {
	BackendName string
	Check       func(ctx context.Context) error
}

func (b BackendFunc) Name() string                     { return b.BackendName }
func (b BackendFunc) Health(ctx context.Context) error { return b.Check(ctx) }

// Orchestrator checks that every backend is reachable before the
// pipeline starts, optionally bringing them up via docker compose
// when auto_start_deps is enabled.
type Orchestrator struct {
	Backends      []Backend
	AutoStartDeps bool
	ComposeFile   string
	// StartupWait bounds how long Ensure waits for backends to become
	// healthy after a compose bring-up.
	StartupWait time.Duration
	Log         *logging.Logger

	// composeUp is swapped out in tests; nil means real docker compose.
	composeUp func(ctx context.Context) error
}

// Ensure verifies every backend responds. When one is down and
// auto_start_deps is enabled, it runs docker compose up and re-probes
// until StartupWait elapses; otherwise it fails with an actionable
// infrastructure error.
func (o *Orchestrator) Ensure(ctx context.Context) error {
	unhealthy := o.probe(ctx)
	if len(unhealthy) == 0 {
		return nil
	}

	if !o.AutoStartDeps {
		return xerrors.Infrastructure("infra", "ensure",
			fmt.Errorf("backends unreachable: %v (start them manually, or enable storage.auto_start_deps)", unhealthy))
	}

	o.Log.Info("starting dependencies via docker compose",
		zap.Strings("unhealthy", unhealthy), zap.String("compose_file", o.ComposeFile))

	up := o.composeUp
	if up == nil {
		up = o.dockerComposeUp
	}
	if err := up(ctx); err != nil {
		return xerrors.Infrastructure("infra", "compose_up", err).WithKey(o.ComposeFile)
	}

	wait := o.StartupWait
	if wait == 0 {
		wait = 2 * time.Minute
	}
	deadline := time.Now().Add(wait)
	for {
		unhealthy = o.probe(ctx)
		if len(unhealthy) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return xerrors.Infrastructure("infra", "ensure",
				fmt.Errorf("backends still unreachable after %s: %v", wait, unhealthy))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// Probe health-checks every backend without failing: unreachable
// backends are logged as warnings. Used for the periodic runtime
// probe, where transient blips must not take the process down.
func (o *Orchestrator) Probe(ctx context.Context) {
	for _, name := range o.probe(ctx) {
		o.Log.Warn("backend health probe failed", zap.String("backend", name))
	}
}

func (o *Orchestrator) probe(ctx context.Context) []string {
	var unhealthy []string
	for _, b := range o.Backends {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := b.Health(probeCtx)
		cancel()
		if err != nil {
			o.Log.Debug("backend unhealthy", zap.String("backend", b.Name()), zap.Error(err))
			unhealthy = append(unhealthy, b.Name())
		}
	}
	return unhealthy
}

func (o *Orchestrator) dockerComposeUp(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "compose", "-f", o.ComposeFile, "up", "-d", "--wait")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker compose up: %w: %s", err, out)
	}
	return nil
}
