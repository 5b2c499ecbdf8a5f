package index

import (
	"sync"
	"testing"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_UninitializedSearchIsEmpty(t *testing.T) {
	idx := New(ModeExact)

	assert.False(t, idx.Initialized())
	assert.Empty(t, idx.Search(basis(4, 0), 3))
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 0, idx.IdentityCount())
}

func TestIndex_RebuildReplacesWholesale(t *testing.T) {
	idx := New(ModeExact)

	_, err := idx.Rebuild(records("a", basis(4, 0), "b", basis(4, 1)))
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	_, err = idx.Rebuild(records("c", basis(4, 2)))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())

	results := idx.Search(basis(4, 0), 5)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].OwnerID)
}

func TestIndex_FailedRebuildKeepsPreviousSnapshot(t *testing.T) {
	idx := New(ModeExact)
	first, err := idx.Rebuild(records("a", basis(4, 0)))
	require.NoError(t, err)

	_, err = idx.Rebuild(records("a", basis(4, 0), "b", basis(8, 0)))
	require.Error(t, err)

	assert.Same(t, first, idx.Current())
}

func TestIndex_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	idx := New(ModeExact)
	small := records("a", basis(4, 0))
	large := records("a", basis(4, 0), "b", basis(4, 0), "c", basis(4, 0), "d", basis(4, 0))
	_, err := idx.Rebuild(small)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 200 {
			recs := small
			if i%2 == 0 {
				recs = large
			}
			_, _ = idx.Rebuild(append([]database.EmbeddingRecord(nil), recs...))
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				snap := idx.Current()
				n := len(snap.Search(basis(4, 0), 10))
				if n != 1 && n != 4 {
					t.Errorf("observed partial snapshot with %d results", n)
					return
				}
				assert.Equal(t, snap.Len(), n)
			}
		}()
	}
	wg.Wait()
}
