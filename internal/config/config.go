// Package config defines and loads the indexing engine's configuration
// surface: storage, embeddings, sparse, reranking, indexer, watcher,
// languages, outbox, server, and logging. Every sub-config carries
// its own defaults and validation.
package config

import "fmt"

// Config is the complete, validated configuration for one process.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Sparse     SparseConfig     `koanf:"sparse"`
	Reranking  RerankingConfig  `koanf:"reranking"`
	Indexer    IndexerConfig    `koanf:"indexer"`
	Watcher    WatcherConfig    `koanf:"watcher"`
	Languages  LanguagesConfig  `koanf:"languages"`
	Outbox     OutboxConfig     `koanf:"outbox"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// StorageConfig names the three backing stores and the shared batch cap.
type StorageConfig struct {
	DataDir            string `koanf:"data_dir"`
	QdrantHost         string `koanf:"qdrant_host"`
	QdrantPort         int    `koanf:"qdrant_port"`
	QdrantRESTPort     int    `koanf:"qdrant_rest_port"`
	AutoStartDeps      bool   `koanf:"auto_start_deps"`
	DockerComposeFile  string `koanf:"docker_compose_file"`
	PostgresHost       string `koanf:"postgres_host"`
	PostgresPort       int    `koanf:"postgres_port"`
	PostgresDatabase   string `koanf:"postgres_database"`
	PostgresUser       string `koanf:"postgres_user"`
	PostgresPassword   string `koanf:"postgres_password"`
	PostgresPoolSize   int    `koanf:"postgres_pool_size"`
	Neo4jHost          string `koanf:"neo4j_host"`
	Neo4jHTTPPort      int    `koanf:"neo4j_http_port"`
	Neo4jBoltPort      int    `koanf:"neo4j_bolt_port"`
	Neo4jUser          string `koanf:"neo4j_user"`
	Neo4jPassword      string `koanf:"neo4j_password"`
	MaxEntitiesPerDBOp int    `koanf:"max_entities_per_db_operation"`
}

func (c *StorageConfig) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = ".codesearch"
	}
	if c.QdrantHost == "" {
		c.QdrantHost = "localhost"
	}
	if c.QdrantPort == 0 {
		c.QdrantPort = 6334
	}
	if c.QdrantRESTPort == 0 {
		c.QdrantRESTPort = 6333
	}
	if c.DockerComposeFile == "" {
		c.DockerComposeFile = "docker-compose.yaml"
	}
	if c.PostgresHost == "" {
		c.PostgresHost = "localhost"
	}
	if c.PostgresPort == 0 {
		c.PostgresPort = 5432
	}
	if c.PostgresDatabase == "" {
		c.PostgresDatabase = "codesearch"
	}
	if c.PostgresUser == "" {
		c.PostgresUser = "codesearch"
	}
	if c.PostgresPoolSize == 0 {
		c.PostgresPoolSize = 10
	}
	if c.Neo4jHost == "" {
		c.Neo4jHost = "localhost"
	}
	if c.Neo4jHTTPPort == 0 {
		c.Neo4jHTTPPort = 7474
	}
	if c.Neo4jBoltPort == 0 {
		c.Neo4jBoltPort = 7687
	}
	if c.Neo4jUser == "" {
		c.Neo4jUser = "neo4j"
	}
	if c.MaxEntitiesPerDBOp == 0 {
		c.MaxEntitiesPerDBOp = 1000
	}
}

func (c *StorageConfig) Validate() error {
	if c.PostgresPoolSize <= 0 {
		return fmt.Errorf("storage.postgres_pool_size must be > 0")
	}
	if c.MaxEntitiesPerDBOp <= 0 {
		return fmt.Errorf("storage.max_entities_per_db_operation must be > 0")
	}
	return nil
}

// EmbeddingsConfig configures the dense embedding provider.
type EmbeddingsConfig struct {
	Provider              string `koanf:"provider"` // "openaicompat" or "fastembed"
	Model                 string `koanf:"model"`
	Device                string `koanf:"device"`
	Backend               string `koanf:"backend"`
	APIBaseURL            string `koanf:"api_base_url"`
	APIKey                string `koanf:"api_key"`
	EmbeddingDimension    int    `koanf:"embedding_dimension"`
	BatchSize             int    `koanf:"batch_size"`
	MaxWorkers            int    `koanf:"max_workers"`
	ModelCacheDir         string `koanf:"model_cache_dir"`
	RetryAttempts         int    `koanf:"retry_attempts"`
	EntitiesPerEmbedBatch int    `koanf:"entities_per_embedding_batch"`
}

func (c *EmbeddingsConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "fastembed"
	}
	if c.Model == "" {
		c.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.EmbeddingDimension == 0 {
		c.EmbeddingDimension = 384
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 4
	}
	if c.ModelCacheDir == "" {
		c.ModelCacheDir = ".cache/codesearch/models"
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.EntitiesPerEmbedBatch == 0 {
		c.EntitiesPerEmbedBatch = 64
	}
}

func (c *EmbeddingsConfig) Validate() error {
	switch c.Provider {
	case "openaicompat", "fastembed":
	default:
		return fmt.Errorf("embeddings.provider: unknown provider %q (want openaicompat or fastembed)", c.Provider)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be > 0")
	}
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 4096 {
		return fmt.Errorf("embeddings.embedding_dimension must be in [1, 4096], got %d", c.EmbeddingDimension)
	}
	if c.Provider == "openaicompat" && c.APIBaseURL == "" {
		return fmt.Errorf("embeddings.api_base_url is required for provider openaicompat")
	}
	return nil
}

// SparseConfig configures the sparse (BM25/learned-sparse) provider.
type SparseConfig struct {
	Provider  string `koanf:"provider"` // "bm25" or "learned"
	Device    string `koanf:"device"`
	TopK      int    `koanf:"top_k"`
	BatchSize int    `koanf:"batch_size"`
}

func (c *SparseConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "bm25"
	}
	if c.TopK == 0 {
		c.TopK = 128
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
}

func (c *SparseConfig) Validate() error {
	switch c.Provider {
	case "bm25", "learned":
	default:
		return fmt.Errorf("sparse.provider: unknown provider %q", c.Provider)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("sparse.batch_size must be > 0")
	}
	return nil
}

// RerankingConfig configures the optional cross-encoder reranker stage.
type RerankingConfig struct {
	Enabled               bool    `koanf:"enabled"`
	Provider              string  `koanf:"provider"`
	APIBaseURL            string  `koanf:"api_base_url"`
	Model                 string  `koanf:"model"`
	Candidates            int     `koanf:"candidates"`
	TopK                  int     `koanf:"top_k"`
	TimeoutSecs           int     `koanf:"timeout_secs"`
	MaxConcurrentRequests int     `koanf:"max_concurrent_requests"`
	PrefetchMultiplier    float64 `koanf:"prefetch_multiplier"`
}

func (c *RerankingConfig) applyDefaults() {
	if c.Candidates == 0 {
		c.Candidates = 50
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 15
	}
	if c.MaxConcurrentRequests == 0 {
		c.MaxConcurrentRequests = 16
	}
	if c.PrefetchMultiplier == 0 {
		c.PrefetchMultiplier = 2.0
	}
}

func (c *RerankingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Candidates <= 0 || c.TopK <= 0 || c.TopK > c.Candidates {
		return fmt.Errorf("reranking: candidates (%d) must be > 0 and >= top_k (%d)", c.Candidates, c.TopK)
	}
	return nil
}

// IndexerConfig controls the discovery/extraction pipeline's concurrency.
type IndexerConfig struct {
	FilesPerDiscoveryBatch       int `koanf:"files_per_discovery_batch"`
	PipelineChannelCapacity      int `koanf:"pipeline_channel_capacity"`
	MaxConcurrentFileExtractions int `koanf:"max_concurrent_file_extractions"`
	MaxConcurrentSnapshotUpdates int `koanf:"max_concurrent_snapshot_updates"`
}

func (c *IndexerConfig) applyDefaults() {
	if c.FilesPerDiscoveryBatch == 0 {
		c.FilesPerDiscoveryBatch = 50
	}
	if c.PipelineChannelCapacity == 0 {
		c.PipelineChannelCapacity = 20
	}
	if c.MaxConcurrentFileExtractions == 0 {
		c.MaxConcurrentFileExtractions = 32
	}
	if c.MaxConcurrentSnapshotUpdates == 0 {
		c.MaxConcurrentSnapshotUpdates = 16
	}
}

func (c *IndexerConfig) Validate() error {
	if c.MaxConcurrentFileExtractions <= 0 || c.MaxConcurrentSnapshotUpdates <= 0 {
		return fmt.Errorf("indexer: concurrency limits must be > 0")
	}
	if c.PipelineChannelCapacity <= 0 {
		return fmt.Errorf("indexer.pipeline_channel_capacity must be > 0")
	}
	return nil
}

// BranchStrategy enumerates how the watcher selects which branch to
// track. Only index_current is implemented; the type is kept
// extensible for future strategies.
type BranchStrategy string

const (
	BranchStrategyIndexCurrent BranchStrategy = "index_current"
)

// WatcherConfig configures the fsnotify watcher and catch-up poller.
type WatcherConfig struct {
	DebounceMS              int            `koanf:"debounce_ms"`
	IgnorePatterns          []string       `koanf:"ignore_patterns"`
	MainBranchPollIntervalS int            `koanf:"main_branch_poll_interval_secs"`
	BranchStrategy          BranchStrategy `koanf:"branch_strategy"`
}

func (c *WatcherConfig) applyDefaults() {
	if c.DebounceMS == 0 {
		c.DebounceMS = 500
	}
	if c.MainBranchPollIntervalS == 0 {
		c.MainBranchPollIntervalS = 30
	}
	if c.BranchStrategy == "" {
		c.BranchStrategy = BranchStrategyIndexCurrent
	}
}

func (c *WatcherConfig) Validate() error {
	if c.BranchStrategy != BranchStrategyIndexCurrent {
		return fmt.Errorf("watcher.branch_strategy: unsupported strategy %q", c.BranchStrategy)
	}
	return nil
}

// LanguagesConfig whitelists which language extractors run.
type LanguagesConfig struct {
	Enabled []string `koanf:"enabled"`
}

func (c *LanguagesConfig) applyDefaults() {
	if len(c.Enabled) == 0 {
		c.Enabled = []string{"rust", "python", "javascript", "typescript", "tsx", "go"}
	}
}

// OutboxConfig configures the outbox-processor poll loop.
type OutboxConfig struct {
	PollIntervalMS       int `koanf:"poll_interval_ms"`
	EntriesPerPoll       int `koanf:"entries_per_poll"`
	MaxRetries           int `koanf:"max_retries"`
	MaxEmbeddingDim      int `koanf:"max_embedding_dim"`
	MaxCachedCollections int `koanf:"max_cached_collections"`
	DrainTimeoutSecs     int `koanf:"drain_timeout_secs"`
}

func (c *OutboxConfig) applyDefaults() {
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = 1000
	}
	if c.EntriesPerPoll == 0 {
		c.EntriesPerPoll = 100
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxEmbeddingDim == 0 {
		c.MaxEmbeddingDim = 4096
	}
	if c.MaxCachedCollections == 0 {
		c.MaxCachedCollections = 32
	}
	if c.DrainTimeoutSecs == 0 {
		c.DrainTimeoutSecs = 600
	}
}

func (c *OutboxConfig) Validate() error {
	if c.EntriesPerPoll <= 0 {
		return fmt.Errorf("outbox.entries_per_poll must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("outbox.max_retries must be >= 0")
	}
	return nil
}

// ServerConfig configures the ambient /healthz + /metrics HTTP surface.
type ServerConfig struct {
	Port           int      `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

func (c *ServerConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 9090
	}
}

// LoggingConfig re-exposes internal/logging.Config under the top-level
// config tree; see that package for field documentation.
type LoggingConfig struct {
	Level  string            `koanf:"level"`
	Format string            `koanf:"format"`
	Fields map[string]string `koanf:"fields"`
}

func (c *LoggingConfig) applyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// ApplyDefaults fills every unset field across the whole config tree.
func (c *Config) ApplyDefaults() {
	c.Storage.applyDefaults()
	c.Embeddings.applyDefaults()
	c.Sparse.applyDefaults()
	c.Reranking.applyDefaults()
	c.Indexer.applyDefaults()
	c.Watcher.applyDefaults()
	c.Languages.applyDefaults()
	c.Outbox.applyDefaults()
	c.Server.applyDefaults()
	c.Logging.applyDefaults()
}

// Validate fails with a named error on any invalid combination
// (batch_size=0, embedding dimension out of range, unknown provider,
// and so on).
func (c *Config) Validate() error {
	validators := []func() error{
		c.Storage.Validate,
		c.Embeddings.Validate,
		c.Sparse.Validate,
		c.Reranking.Validate,
		c.Indexer.Validate,
		c.Watcher.Validate,
		c.Outbox.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}
