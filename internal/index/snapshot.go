// Package index provides the in-memory similarity index over enrolled face embeddings.
//
// A Snapshot is immutable once built. Index publishes snapshots with a single
// atomic pointer swap, so readers always search one complete snapshot while a
// rebuild prepares the next one off to the side.
package index

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/database"
)

// Mode selects how a snapshot answers queries.
type Mode string

const (
	// ModeExact scores every vector (linear scan).
	ModeExact Mode = "exact"
	// ModeHNSW draws candidates from an HNSW graph and re-scores them exactly.
	ModeHNSW Mode = "hnsw"
)

// ParseMode parses a mode name, defaulting to ModeExact for an empty string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeExact:
		return ModeExact, nil
	case ModeHNSW:
		return ModeHNSW, nil
	}
	return "", fmt.Errorf("unknown index mode %q (expected %q or %q)", s, ModeExact, ModeHNSW)
}

// Entry is one indexed vector and the identity that owns it.
type Entry struct {
	OwnerID string
	Vector  []float32
}

// Result is a single nearest-neighbor hit.
type Result struct {
	OwnerID string
	Score   float32
}

// Snapshot is the complete state of the index at one rebuild.
type Snapshot struct {
	entries    []Entry
	owners     int
	dim        int
	generation string
	builtAt    time.Time
	graph      *hnswGraph
}

// Build creates a snapshot from records, preserving their order.
// All vectors must be non-empty and share one dimension.
func Build(records []database.EmbeddingRecord, mode Mode) (*Snapshot, error) {
	s := &Snapshot{
		entries:    make([]Entry, 0, len(records)),
		generation: uuid.NewString(),
		builtAt:    time.Now(),
	}

	owners := make(map[string]struct{})
	for i := range records {
		rec := &records[i]
		if len(rec.Vector) == 0 {
			return nil, fmt.Errorf("embedding %d of %q is empty", rec.Seq, rec.OwnerID)
		}
		if s.dim == 0 {
			s.dim = len(rec.Vector)
		} else if len(rec.Vector) != s.dim {
			return nil, fmt.Errorf("embedding %d of %q has dimension %d, expected %d",
				rec.Seq, rec.OwnerID, len(rec.Vector), s.dim)
		}
		s.entries = append(s.entries, Entry{OwnerID: rec.OwnerID, Vector: rec.Vector})
		owners[rec.OwnerID] = struct{}{}
	}
	s.owners = len(owners)

	switch mode {
	case ModeExact, "":
	case ModeHNSW:
		if len(s.entries) > 0 {
			s.graph = buildHNSWGraph(s.entries)
		}
	default:
		return nil, errors.New("unsupported index mode: " + string(mode))
	}

	return s, nil
}

// Len returns the number of indexed vectors.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// IdentityCount returns the number of distinct owners in the snapshot.
func (s *Snapshot) IdentityCount() int {
	if s == nil {
		return 0
	}
	return s.owners
}

// Generation returns the unique ID assigned to this snapshot when it was built.
func (s *Snapshot) Generation() string {
	if s == nil {
		return ""
	}
	return s.generation
}

// BuiltAt returns the build time of the snapshot.
func (s *Snapshot) BuiltAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.builtAt
}

// Search returns the min(k, Len()) entries with the highest inner product
// against query, ordered by descending score. Equal scores keep insertion
// order. The query is not normalized here; callers pass unit vectors.
func (s *Snapshot) Search(query []float32, k int) []Result {
	if s == nil || len(s.entries) == 0 || k < 1 {
		return nil
	}
	k = min(k, len(s.entries))

	if s.graph != nil {
		if results, ok := s.searchGraph(query, k); ok {
			return results
		}
	}

	scored := make([]scoredEntry, len(s.entries))
	for i := range s.entries {
		scored[i] = scoredEntry{pos: i, score: database.Dot(query, s.entries[i].Vector)}
	}
	return s.topK(scored, k)
}

type scoredEntry struct {
	pos   int
	score float32
}

// searchGraph re-scores the graph candidates exactly. It reports false when
// the candidates cannot stand in for a full scan: the graph came back short,
// or a score tie straddles the k-th place, where an entry outside the
// candidate set could win on insertion order.
func (s *Snapshot) searchGraph(query []float32, k int) ([]Result, bool) {
	positions, complete := s.graph.candidates(query, k*database.HNSWSearchMultiplier)
	if !complete || len(positions) < k {
		return nil, false
	}
	scored := make([]scoredEntry, 0, len(positions))
	for _, pos := range positions {
		scored = append(scored, scoredEntry{pos: pos, score: database.Dot(query, s.entries[pos].Vector)})
	}
	sortScored(scored)
	if len(scored) > k && scored[k-1].score-scored[k].score <= database.HNSWTieTolerance {
		return nil, false
	}
	return s.results(scored, k), true
}

func sortScored(scored []scoredEntry) {
	slices.SortFunc(scored, func(a, b scoredEntry) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})
}

func (s *Snapshot) topK(scored []scoredEntry, k int) []Result {
	sortScored(scored)
	return s.results(scored, k)
}

func (s *Snapshot) results(scored []scoredEntry, k int) []Result {
	results := make([]Result, k)
	for i := range k {
		results[i] = Result{OwnerID: s.entries[scored[i].pos].OwnerID, Score: scored[i].score}
	}
	return results
}
