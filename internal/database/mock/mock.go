// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

// MockEmbeddingStore is an in-memory implementation of database.EmbeddingStore.
// Enrollment transactions stage their writes and apply them only on success.
type MockEmbeddingStore struct {
	mu         sync.RWMutex
	identities map[string]database.Identity
	embeddings []database.EmbeddingRecord
	nextSeq    int64

	// Error injection
	GetIdentityError    error
	ListIdentitiesError error
	ListEmbeddingsError error
	UpsertError         error
	ReplaceError        error
	CommitError         error

	// Call counters
	ListEmbeddingsCalls int
	CommitCalls         int
}

// NewMockEmbeddingStore creates a new empty mock store
func NewMockEmbeddingStore() *MockEmbeddingStore {
	return &MockEmbeddingStore{
		identities: make(map[string]database.Identity),
	}
}

// AddIdentity adds an identity directly, bypassing transactions
func (m *MockEmbeddingStore) AddIdentity(identity database.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = identity
}

// AddEmbedding appends an embedding directly, bypassing transactions.
// Useful to simulate index entries whose identity record is missing.
func (m *MockEmbeddingStore) AddEmbedding(ownerID string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	m.embeddings = append(m.embeddings, database.EmbeddingRecord{
		Seq:     m.nextSeq,
		OwnerID: ownerID,
		Vector:  slices.Clone(vector),
	})
}

// Embeddings returns the vectors stored for an owner, in insertion order
func (m *MockEmbeddingStore) Embeddings(ownerID string) [][]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [][]float32
	for _, rec := range m.embeddings {
		if rec.OwnerID == ownerID {
			out = append(out, slices.Clone(rec.Vector))
		}
	}
	return out
}

// GetIdentity retrieves an identity by ID
func (m *MockEmbeddingStore) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	if m.GetIdentityError != nil {
		return nil, m.GetIdentityError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &identity, nil
}

// ListIdentities returns all identities ordered by ID
func (m *MockEmbeddingStore) ListIdentities(ctx context.Context) ([]database.IdentitySummary, error) {
	if m.ListIdentitiesError != nil {
		return nil, m.ListIdentitiesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range m.embeddings {
		counts[rec.OwnerID]++
	}
	result := make([]database.IdentitySummary, 0, len(m.identities))
	for _, identity := range m.identities {
		result = append(result, database.IdentitySummary{Identity: identity, EmbeddingCount: counts[identity.ID]})
	}
	slices.SortFunc(result, func(a, b database.IdentitySummary) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

// ListEmbeddings returns all embeddings in insertion order
func (m *MockEmbeddingStore) ListEmbeddings(ctx context.Context) ([]database.EmbeddingRecord, error) {
	m.mu.Lock()
	m.ListEmbeddingsCalls++
	m.mu.Unlock()
	if m.ListEmbeddingsError != nil {
		return nil, m.ListEmbeddingsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]database.EmbeddingRecord, len(m.embeddings))
	for i, rec := range m.embeddings {
		rec.Vector = slices.Clone(rec.Vector)
		result[i] = rec
	}
	return result, nil
}

// CountEmbeddings returns the number of embeddings for an owner
func (m *MockEmbeddingStore) CountEmbeddings(ctx context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.embeddings {
		if rec.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

// mockTx stages writes until the transaction function returns.
type mockTx struct {
	store      *MockEmbeddingStore
	identities map[string]database.Identity
	replaced   map[string][][]float32
	order      []string
}

func (tx *mockTx) UpsertIdentity(ctx context.Context, identity database.Identity) error {
	if tx.store.UpsertError != nil {
		return tx.store.UpsertError
	}
	tx.identities[identity.ID] = identity
	return nil
}

func (tx *mockTx) ReplaceEmbeddings(ctx context.Context, ownerID string, vectors [][]float32) error {
	if tx.store.ReplaceError != nil {
		return tx.store.ReplaceError
	}
	if _, ok := tx.replaced[ownerID]; !ok {
		tx.order = append(tx.order, ownerID)
	}
	cloned := make([][]float32, len(vectors))
	for i, v := range vectors {
		cloned[i] = slices.Clone(v)
	}
	tx.replaced[ownerID] = cloned
	return nil
}

// WithEnrollmentTx runs fn and applies its staged writes only if fn and the commit succeed
func (m *MockEmbeddingStore) WithEnrollmentTx(ctx context.Context, fn func(tx database.EnrollmentTx) error) error {
	tx := &mockTx{
		store:      m,
		identities: make(map[string]database.Identity),
		replaced:   make(map[string][][]float32),
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitCalls++
	if m.CommitError != nil {
		return m.CommitError
	}

	now := time.Now()
	for id, identity := range tx.identities {
		if existing, ok := m.identities[id]; ok {
			identity.CreatedAt = existing.CreatedAt
		} else {
			identity.CreatedAt = now
		}
		identity.UpdatedAt = now
		m.identities[id] = identity
	}
	for _, ownerID := range tx.order {
		m.embeddings = slices.DeleteFunc(m.embeddings, func(rec database.EmbeddingRecord) bool {
			return rec.OwnerID == ownerID
		})
		for _, v := range tx.replaced[ownerID] {
			m.nextSeq++
			m.embeddings = append(m.embeddings, database.EmbeddingRecord{Seq: m.nextSeq, OwnerID: ownerID, Vector: v})
		}
	}
	return nil
}

// Close is a no-op
func (m *MockEmbeddingStore) Close() error {
	return nil
}

// Verify interface compliance.
var _ database.EmbeddingStore = (*MockEmbeddingStore)(nil)
