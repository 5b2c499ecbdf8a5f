// Package storetest is a conformance suite for database.EmbeddingStore
// implementations.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-registry/internal/database"
)

// Vector returns a deterministic unit vector of database.EmbeddingDim
// values. Different seeds give different vectors.
func Vector(seed int) []float32 {
	v := make([]float32, database.EmbeddingDim)
	for i := range v {
		v[i] = float32(math.Sin(float64(seed+1)*0.7 + float64(i)*0.013))
	}
	return database.Normalize(v)
}

func enroll(t *testing.T, store database.EmbeddingStore, identity database.Identity, vectors ...[]float32) {
	t.Helper()
	err := store.WithEnrollmentTx(context.Background(), func(tx database.EnrollmentTx) error {
		if err := tx.UpsertIdentity(context.Background(), identity); err != nil {
			return err
		}
		return tx.ReplaceEmbeddings(context.Background(), identity.ID, vectors)
	})
	require.NoError(t, err)
}

func vectorsOf(records []database.EmbeddingRecord, ownerID string) [][]float32 {
	var out [][]float32
	for _, rec := range records {
		if rec.OwnerID == ownerID {
			out = append(out, rec.Vector)
		}
	}
	return out
}

// Run exercises the store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) database.EmbeddingStore) {
	ctx := context.Background()

	t.Run("EmptyStore", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetIdentity(ctx, "nobody")
		assert.ErrorIs(t, err, database.ErrNotFound)

		identities, err := store.ListIdentities(ctx)
		require.NoError(t, err)
		assert.Empty(t, identities)

		records, err := store.ListEmbeddings(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)

		count, err := store.CountEmbeddings(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("EnrollAndRead", func(t *testing.T) {
		store := newStore(t)
		vectors := [][]float32{Vector(1), Vector(2), Vector(3)}
		enroll(t, store, database.Identity{ID: "u1", DisplayName: "Jiří Novák", Contact: "jiri@example.com"}, vectors...)

		identity, err := store.GetIdentity(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", identity.ID)
		assert.Equal(t, "Jiří Novák", identity.DisplayName)
		assert.Equal(t, "jiri@example.com", identity.Contact)
		assert.False(t, identity.CreatedAt.IsZero())

		records, err := store.ListEmbeddings(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, rec := range records {
			assert.Equal(t, "u1", rec.OwnerID)
			// Vectors must round-trip bit for bit.
			assert.Equal(t, vectors[i], rec.Vector)
		}

		count, err := store.CountEmbeddings(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("ReplaceOnReenrollment", func(t *testing.T) {
		store := newStore(t)
		enroll(t, store, database.Identity{ID: "u1", DisplayName: "Old", Contact: "old@x"}, Vector(1), Vector(2), Vector(3))
		enroll(t, store, database.Identity{ID: "u2", DisplayName: "Other", Contact: "o@x"}, Vector(9), Vector(10))
		enroll(t, store, database.Identity{ID: "u1", DisplayName: "New", Contact: "new@x"}, Vector(4), Vector(5))

		identity, err := store.GetIdentity(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "New", identity.DisplayName)
		assert.Equal(t, "new@x", identity.Contact)

		records, err := store.ListEmbeddings(ctx)
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, [][]float32{Vector(4), Vector(5)}, vectorsOf(records, "u1"))
		assert.Equal(t, [][]float32{Vector(9), Vector(10)}, vectorsOf(records, "u2"))

		// Insertion order: u2's vectors were written before u1's replacement.
		assert.Equal(t, "u2", records[0].OwnerID)
		assert.Equal(t, "u1", records[3].OwnerID)
		for i := 1; i < len(records); i++ {
			assert.Less(t, records[i-1].Seq, records[i].Seq)
		}
	})

	t.Run("IdempotentReenrollment", func(t *testing.T) {
		store := newStore(t)
		identity := database.Identity{ID: "u1", DisplayName: "Same", Contact: "same@x"}
		enroll(t, store, identity, Vector(1), Vector(2))
		enroll(t, store, identity, Vector(1), Vector(2))

		records, err := store.ListEmbeddings(ctx)
		require.NoError(t, err)
		assert.Equal(t, [][]float32{Vector(1), Vector(2)}, vectorsOf(records, "u1"))

		identities, err := store.ListIdentities(ctx)
		require.NoError(t, err)
		require.Len(t, identities, 1)
		assert.Equal(t, 2, identities[0].EmbeddingCount)
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		store := newStore(t)
		enroll(t, store, database.Identity{ID: "u1", DisplayName: "Kept", Contact: "kept@x"}, Vector(1), Vector(2))

		failure := errors.New("extraction aborted")
		err := store.WithEnrollmentTx(ctx, func(tx database.EnrollmentTx) error {
			if err := tx.UpsertIdentity(ctx, database.Identity{ID: "u1", DisplayName: "Changed", Contact: "c@x"}); err != nil {
				return err
			}
			if err := tx.UpsertIdentity(ctx, database.Identity{ID: "u2", DisplayName: "New", Contact: "n@x"}); err != nil {
				return err
			}
			if err := tx.ReplaceEmbeddings(ctx, "u1", [][]float32{Vector(7)}); err != nil {
				return err
			}
			return failure
		})
		require.ErrorIs(t, err, failure)

		identity, err := store.GetIdentity(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Kept", identity.DisplayName)

		_, err = store.GetIdentity(ctx, "u2")
		assert.ErrorIs(t, err, database.ErrNotFound)

		records, err := store.ListEmbeddings(ctx)
		require.NoError(t, err)
		assert.Equal(t, [][]float32{Vector(1), Vector(2)}, vectorsOf(records, "u1"))
	})

	t.Run("ListIdentitiesOrderedWithCounts", func(t *testing.T) {
		store := newStore(t)
		enroll(t, store, database.Identity{ID: "b", DisplayName: "Bea", Contact: "b@x"}, Vector(1))
		enroll(t, store, database.Identity{ID: "a", DisplayName: "Adam", Contact: "a@x"}, Vector(2), Vector(3), Vector(4))
		enroll(t, store, database.Identity{ID: "c", DisplayName: "Cyril", Contact: "c@x"})

		identities, err := store.ListIdentities(ctx)
		require.NoError(t, err)
		require.Len(t, identities, 3)
		assert.Equal(t, "a", identities[0].ID)
		assert.Equal(t, 3, identities[0].EmbeddingCount)
		assert.Equal(t, "b", identities[1].ID)
		assert.Equal(t, 1, identities[1].EmbeddingCount)
		assert.Equal(t, "c", identities[2].ID)
		assert.Equal(t, 0, identities[2].EmbeddingCount)
	})
}
