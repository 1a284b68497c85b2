package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"

	"github.com/loganmoon/codesearch/internal/config"
	"github.com/loganmoon/codesearch/internal/embedprovider"
	"github.com/loganmoon/codesearch/internal/graphstore"
	"github.com/loganmoon/codesearch/internal/infra"
	"github.com/loganmoon/codesearch/internal/langextract/registry"
	"github.com/loganmoon/codesearch/internal/logging"
	"github.com/loganmoon/codesearch/internal/metadatastore"
	"github.com/loganmoon/codesearch/internal/outbox"
	"github.com/loganmoon/codesearch/internal/pipeline"
	"github.com/loganmoon/codesearch/internal/telemetry"
	"github.com/loganmoon/codesearch/internal/vectorstore"
)

const version = "0.1.0"

// lockTimeout bounds how long a command waits for another process to
// finish its infrastructure bring-up.
const lockTimeout = 30 * time.Second

// app bundles the configured, connected backends one command run uses.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	meta    *metadatastore.Store
	vectors *vectorstore.Store
	graph   *graphstore.Store
}

// newApp loads config and builds the logger and telemetry sink. Store
// connections are opened separately by connect, after the
// infrastructure orchestrator has verified the backends are up.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := logging.NewDefaultConfig()
	if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
		logCfg.Level = lvl
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	for k, v := range cfg.Logging.Fields {
		logCfg.Fields[k] = v
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	tp := telemetry.NewTracerProvider("codesearch", version)

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: telemetry.NewMetrics(),
		tracer:  tp.Tracer("codesearch"),
	}, nil
}

func (a *app) metadataConfig() metadatastore.Config {
	s := a.cfg.Storage
	return metadatastore.Config{
		Host:     s.PostgresHost,
		Port:     s.PostgresPort,
		Database: s.PostgresDatabase,
		User:     s.PostgresUser,
		Password: s.PostgresPassword,
		PoolSize: s.PostgresPoolSize,
	}
}

func (a *app) vectorConfig() vectorstore.Config {
	return vectorstore.Config{
		Host:       a.cfg.Storage.QdrantHost,
		Port:       a.cfg.Storage.QdrantPort,
		VectorSize: uint64(a.cfg.Embeddings.EmbeddingDimension),
	}
}

func (a *app) graphConfig() graphstore.Config {
	s := a.cfg.Storage
	return graphstore.Config{
		BoltURI:  fmt.Sprintf("bolt://%s:%d", s.Neo4jHost, s.Neo4jBoltPort),
		User:     s.Neo4jUser,
		Password: s.Neo4jPassword,
	}
}

// orchestrator builds the bring-up checker. Its probes dial fresh
// connections so they work before connect has run (and report the
// backend down rather than erroring the whole command).
func (a *app) orchestrator() *infra.Orchestrator {
	return &infra.Orchestrator{
		Backends: []infra.Backend{
			infra.BackendFunc{BackendName: "postgres", Check: func(ctx context.Context) error {
				s, err := metadatastore.Open(ctx, a.metadataConfig())
				if err != nil {
					return err
				}
				s.Close()
				return nil
			}},
			infra.BackendFunc{BackendName: "qdrant", Check: func(ctx context.Context) error {
				s, err := vectorstore.Open(a.vectorConfig())
				if err != nil {
					return err
				}
				return s.Close()
			}},
			infra.BackendFunc{BackendName: "neo4j", Check: func(ctx context.Context) error {
				s, err := graphstore.Open(ctx, a.graphConfig())
				if err != nil {
					return err
				}
				return s.Close(ctx)
			}},
		},
		AutoStartDeps: a.cfg.Storage.AutoStartDeps,
		ComposeFile:   a.cfg.Storage.DockerComposeFile,
		Log:           a.log,
	}
}

// connect opens all three stores and runs metadata migrations.
func (a *app) connect(ctx context.Context) error {
	meta, err := metadatastore.Open(ctx, a.metadataConfig())
	if err != nil {
		return err
	}
	if err := meta.RunMigrations(ctx); err != nil {
		meta.Close()
		return err
	}

	vectors, err := vectorstore.Open(a.vectorConfig())
	if err != nil {
		meta.Close()
		return err
	}

	graph, err := graphstore.Open(ctx, a.graphConfig())
	if err != nil {
		meta.Close()
		_ = vectors.Close()
		return err
	}

	a.meta, a.vectors, a.graph = meta, vectors, graph
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.graph != nil {
		_ = a.graph.Close(ctx)
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.meta != nil {
		a.meta.Close()
	}
	_ = a.log.Sync()
}

func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	reg, err := registry.New(a.cfg.Languages.Enabled)
	if err != nil {
		return nil, err
	}
	dense, err := embedprovider.NewDenseProvider(a.cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	sparse, err := embedprovider.NewSparseProvider(a.cfg.Sparse)
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		Registry:      reg,
		Dense:         dense,
		Sparse:        sparse,
		Repositories:  a.meta,
		Entities:      a.meta,
		Cache:         a.meta,
		Vectors:       a.vectors,
		Graph:         a.graph,
		Config:        a.cfg.Indexer,
		MaxBatch:      a.cfg.Storage.MaxEntitiesPerDBOp,
		RetryAttempts: a.cfg.Embeddings.RetryAttempts,
		Log:           a.log,
		Metrics:       a.metrics,
		Tracer:        a.tracer,
	}, nil
}

func (a *app) newProcessor() *outbox.Processor {
	return &outbox.Processor{
		Store:     a.meta,
		Vectors:   a.vectors,
		Graph:     a.graph,
		Resolvers: outbox.DefaultResolvers(),
		Config:    a.cfg.Outbox,
		Log:       a.log,
		Metrics:   a.metrics,
	}
}

// withLock runs fn while holding the advisory infrastructure lock.
func (a *app) withLock(ctx context.Context, fn func() error) error {
	lock, err := infra.AcquireLock(ctx, a.cfg.Storage.DataDir, lockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}
