package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults_ThenValidates(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, 384, cfg.Embeddings.EmbeddingDimension)
	assert.Equal(t, BranchStrategyIndexCurrent, cfg.Watcher.BranchStrategy)
}

func TestEmbeddingsConfig_Validate_RejectsBadDimension(t *testing.T) {
	cfg := EmbeddingsConfig{Provider: "fastembed", BatchSize: 1, EmbeddingDimension: 5000}
	assert.Error(t, cfg.Validate())
}

func TestEmbeddingsConfig_Validate_RequiresAPIBaseURLForOpenAICompat(t *testing.T) {
	cfg := EmbeddingsConfig{Provider: "openaicompat", BatchSize: 1, EmbeddingDimension: 384}
	assert.Error(t, cfg.Validate())
	cfg.APIBaseURL = "http://localhost:8080"
	assert.NoError(t, cfg.Validate())
}

func TestEmbeddingsConfig_Validate_RejectsZeroBatchSize(t *testing.T) {
	cfg := EmbeddingsConfig{Provider: "fastembed", BatchSize: 0, EmbeddingDimension: 384}
	assert.Error(t, cfg.Validate())
}

func TestRerankingConfig_Validate_OnlyWhenEnabled(t *testing.T) {
	cfg := RerankingConfig{Enabled: false, TopK: 0, Candidates: 0}
	assert.NoError(t, cfg.Validate())

	cfg.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Candidates = 10
	cfg.TopK = 5
	assert.NoError(t, cfg.Validate())
}

func TestWatcherConfig_Validate_RejectsUnknownBranchStrategy(t *testing.T) {
	cfg := WatcherConfig{BranchStrategy: "index_all"}
	assert.Error(t, cfg.Validate())
}

func TestEnvKeyTransform(t *testing.T) {
	assert.Equal(t, "storage.qdrant_host", envKeyTransform("QDRANT_HOST"))
	assert.Equal(t, "storage.postgres_pool_size", envKeyTransform("POSTGRES_POOL_SIZE"))
	assert.Equal(t, "embeddings.batch_size", envKeyTransform("EMBEDDINGS_BATCH_SIZE"))
}

func TestLoad_NoFile_UsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", cfg.Storage.QdrantHost)
}
