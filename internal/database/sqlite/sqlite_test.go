package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/storetest"
)

func openTestStore(t *testing.T, path string) *IdentityRepository {
	t.Helper()
	store, err := Open(context.Background(), &config.DatabaseConfig{URL: path})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIdentityRepository_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) database.EmbeddingStore {
		return openTestStore(t, filepath.Join(t.TempDir(), "faces.sqlite"))
	})
}

func TestIdentityRepository_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.sqlite")
	ctx := context.Background()

	store, err := Open(ctx, &config.DatabaseConfig{URL: path})
	require.NoError(t, err)
	err = store.WithEnrollmentTx(ctx, func(tx database.EnrollmentTx) error {
		if err := tx.UpsertIdentity(ctx, database.Identity{ID: "u1", DisplayName: "U", Contact: "u@x"}); err != nil {
			return err
		}
		return tx.ReplaceEmbeddings(ctx, "u1", [][]float32{storetest.Vector(1)})
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := openTestStore(t, path)
	records, err := reopened.ListEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, storetest.Vector(1), records[0].Vector)

	versions, err := database.MigrationsApplied(ctx, reopened.pool.DB())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_identities.sql"}, versions)
}

func TestIdentityRepository_ForeignKeysEnforced(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "faces.sqlite"))
	ctx := context.Background()

	err := store.WithEnrollmentTx(ctx, func(tx database.EnrollmentTx) error {
		return tx.ReplaceEmbeddings(ctx, "orphan", [][]float32{storetest.Vector(1)})
	})
	require.Error(t, err)

	records, err := store.ListEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "faces.sqlite?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dsn("faces.sqlite"))
	assert.Equal(t, "file:faces.sqlite?mode=rwc&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dsn("file:faces.sqlite?mode=rwc"))
	assert.Equal(t, "x.db?_pragma=journal_mode(WAL)", dsn("x.db?_pragma=journal_mode(WAL)"))
}

func TestIdentityRepository_UsesWAL(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "faces.sqlite"))

	var mode string
	require.NoError(t, store.pool.DB().QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}
