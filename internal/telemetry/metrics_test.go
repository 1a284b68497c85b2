package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObserveRun(10, 1, 50, 2, time.Second)
	m.OutboxApplied("vector_index")
	m.OutboxFailed("graph_index")
	m.OutboxPending("vector_index", 3)
	m.EmbeddingCacheLookup(true)
	assert.Nil(t, m.Registry())
}

func TestMetricsCount(t *testing.T) {
	m := NewMetrics()

	m.ObserveRun(10, 2, 50, 3, time.Second)
	assert.Equal(t, 8.0, testutil.ToFloat64(m.filesIndexed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesFailed))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.entitiesStored))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.staleDeleted))

	m.OutboxApplied("vector_index")
	m.OutboxApplied("vector_index")
	m.OutboxFailed("vector_index")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outboxApplied.WithLabelValues("vector_index")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxFailures.WithLabelValues("vector_index")))

	m.OutboxPending("graph_index", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.outboxPending.WithLabelValues("graph_index")))

	m.EmbeddingCacheLookup(true)
	m.EmbeddingCacheLookup(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddingCacheHit.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddingCacheHit.WithLabelValues("miss")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
