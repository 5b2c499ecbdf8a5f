package index

import (
	"sync/atomic"

	"github.com/kozaktomas/face-registry/internal/database"
)

// Index holds the currently published snapshot.
type Index struct {
	mode    Mode
	current atomic.Pointer[Snapshot]
}

// New creates an uninitialized index. Searches return nothing until the
// first snapshot is published.
func New(mode Mode) *Index {
	if mode == "" {
		mode = ModeExact
	}
	return &Index{mode: mode}
}

// Mode returns the search mode used for snapshots built by Rebuild.
func (i *Index) Mode() Mode {
	return i.mode
}

// Rebuild builds a new snapshot from records and publishes it. On error
// the previously published snapshot stays in place.
func (i *Index) Rebuild(records []database.EmbeddingRecord) (*Snapshot, error) {
	snap, err := Build(records, i.mode)
	if err != nil {
		return nil, err
	}
	i.current.Store(snap)
	return snap, nil
}

// Current returns the published snapshot, or nil before the first rebuild.
// Callers should hold on to the returned value for the duration of a query.
func (i *Index) Current() *Snapshot {
	return i.current.Load()
}

// Initialized reports whether a snapshot has been published.
func (i *Index) Initialized() bool {
	return i.current.Load() != nil
}

// Search queries the current snapshot.
func (i *Index) Search(query []float32, k int) []Result {
	return i.Current().Search(query, k)
}

// Len returns the number of vectors in the current snapshot.
func (i *Index) Len() int {
	return i.Current().Len()
}

// IdentityCount returns the number of distinct identities in the current snapshot.
func (i *Index) IdentityCount() int {
	return i.Current().IdentityCount()
}
