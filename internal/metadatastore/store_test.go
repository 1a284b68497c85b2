package metadatastore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganmoon/codesearch/internal/entity"
)

func TestConfig_ConnString(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, Database: "codesearch", User: "cs", Password: "secret", PoolSize: 10}
	assert.Equal(t, "postgres://cs:secret@db:5432/codesearch?pool_max_conns=10", cfg.connString())
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", nullIfEmpty("x"))
}

// newTestStore connects to a live Postgres named by CODESEARCH_TEST_POSTGRES_DSN
// and re-runs migrations, skipping the test entirely when unset or in
// short mode.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	host := os.Getenv("CODESEARCH_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("CODESEARCH_TEST_POSTGRES_HOST not set, skipping integration test")
	}

	cfg := Config{
		Host:     host,
		Port:     5432,
		Database: "codesearch_test",
		User:     "codesearch",
		Password: os.Getenv("CODESEARCH_TEST_POSTGRES_PASSWORD"),
		PoolSize: 4,
	}
	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(context.Background()))
	require.NoError(t, store.DropAllData(context.Background()))
	t.Cleanup(store.Close)
	return store
}

func TestStore_StoreAndFetchEntitiesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	repoID, err := store.EnsureRepository(ctx, "/tmp/repo", "repo_coll", "repo")
	require.NoError(t, err)

	e := entity.CodeEntity{
		EntityID:      "e1",
		RepositoryID:  repoID,
		Name:          "Foo",
		QualifiedName: "pkg.Foo",
		EntityType:    entity.Function,
		FilePath:      "pkg/foo.go",
	}
	pointIDs, err := store.StoreEntitiesWithOutboxBatch(ctx, repoID, []EntityOutboxBatchEntry{{Entity: e}})
	require.NoError(t, err)
	require.Len(t, pointIDs, 1)

	fetched, err := store.GetEntitiesByIDs(ctx, []EntityRef{{RepositoryID: repoID, EntityID: "e1"}})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, "pkg.Foo", fetched[0].QualifiedName)

	entries, err := store.GetUnprocessedOutboxEntries(ctx, entity.TargetVectorIndex, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestStore_BatchSizeLimitsEnforced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oversized := make([]EntityOutboxBatchEntry, maxBatchSize+1)
	_, err := store.StoreEntitiesWithOutboxBatch(ctx, "repo", oversized)
	require.Error(t, err)
}
