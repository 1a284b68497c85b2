package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loganmoon/codesearch/internal/entity"
	"github.com/loganmoon/codesearch/internal/pipeline"
	"github.com/loganmoon/codesearch/internal/watch"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch indexed repositories, process the outbox, and expose health and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.withLock(ctx, func() error {
				if err := a.orchestrator().Ensure(ctx); err != nil {
					return err
				}
				if err := a.connect(ctx); err != nil {
					return err
				}
				defer a.close(context.Background())

				return a.serve(ctx)
			})
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	processor := a.newProcessor()

	repos, err := a.meta.ListRepositories(ctx)
	if err != nil {
		return err
	}

	// Catch-up runs before the watchers start, so offline edits are
	// indexed from git diff rather than racing the live event stream.
	catchUp := &watch.CatchUp{Store: a.meta, Index: p, Log: a.log}
	for _, repo := range repos {
		if _, err := catchUp.Run(ctx, repo.RootPath, repo.RepositoryID); err != nil {
			a.log.Warn("catch-up failed, repository stays at previous commit",
				zap.String("root", repo.RootPath), zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return processor.Run(gctx)
	})

	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			return a.watchRepository(gctx, p, repo)
		})
	}

	g.Go(func() error {
		return a.serveHTTP(gctx)
	})

	err = g.Wait()

	// Normal shutdown: drain what the run produced so a restart begins
	// from a consistent snapshot.
	drainCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(a.cfg.Outbox.DrainTimeoutSecs)*time.Second)
	defer cancel()
	if drainErr := processor.Drain(drainCtx); drainErr != nil {
		a.log.Warn("outbox drain on shutdown failed", zap.Error(drainErr))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchRepository pumps one repository's debounced change stream into
// the shared pipeline write path. Changes are applied one at a time,
// which keeps a single writer per (repository, path).
func (a *app) watchRepository(ctx context.Context, p *pipeline.Pipeline, repo entity.Repository) error {
	w, err := watch.NewWatcher(repo.RootPath, a.cfg.Watcher, a.log)
	if err != nil {
		return err
	}
	defer w.Close()

	go func() {
		_ = w.Run(ctx)
	}()

	a.log.Info("watching repository", zap.String("root", repo.RootPath))

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-w.Changes():
			if !ok {
				return nil
			}
			var changed, deleted []string
			if change.Kind == watch.Deleted {
				deleted = []string{change.Path}
			} else {
				changed = []string{change.Path}
			}
			// Live edits are indexed without a commit marker; only
			// catch-up and full runs advance last_indexed_commit.
			if _, err := p.RunFiles(ctx, repo.RootPath, "", changed, deleted); err != nil {
				a.log.Error("indexing file change failed",
					zap.String("path", change.Path), zap.String("kind", change.Kind.String()), zap.Error(err))
			}
		}
	}
}

func (a *app) serveHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	a.log.Info("http server listening", zap.Int("port", a.cfg.Server.Port))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
