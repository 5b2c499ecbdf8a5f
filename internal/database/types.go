package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an identity does not exist in the store.
var ErrNotFound = errors.New("identity not found")

// Identity represents an enrolled person.
type Identity struct {
	ID          string
	DisplayName string
	Contact     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EmbeddingRecord is a single unit-norm face embedding owned by an identity.
// Seq is the store-assigned insertion sequence; ListEmbeddings orders by it.
type EmbeddingRecord struct {
	Seq     int64
	OwnerID string
	Vector  []float32
}

// IdentitySummary is an identity together with the number of enrolled embeddings.
type IdentitySummary struct {
	Identity
	EmbeddingCount int
}
