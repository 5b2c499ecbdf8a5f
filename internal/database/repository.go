package database

import (
	"context"
)

// IdentityReader provides read-only access to identities and their embeddings
type IdentityReader interface {
	// GetIdentity retrieves an identity by ID, returns ErrNotFound if it does not exist
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	// ListIdentities returns all identities with their embedding counts, ordered by ID
	ListIdentities(ctx context.Context) ([]IdentitySummary, error)
	// ListEmbeddings returns every stored embedding across all identities in insertion order
	ListEmbeddings(ctx context.Context) ([]EmbeddingRecord, error)
	// CountEmbeddings returns the number of embeddings stored for an identity
	CountEmbeddings(ctx context.Context, ownerID string) (int, error)
}

// EnrollmentTx is the write surface available inside an enrollment transaction.
type EnrollmentTx interface {
	// UpsertIdentity creates the identity or overwrites its display name and contact
	UpsertIdentity(ctx context.Context, identity Identity) error
	// ReplaceEmbeddings deletes all embeddings of ownerID and inserts vectors in order
	ReplaceEmbeddings(ctx context.Context, ownerID string, vectors [][]float32) error
}

// EmbeddingStore is the durable source of truth for identities and embeddings.
type EmbeddingStore interface {
	IdentityReader

	// WithEnrollmentTx runs fn inside a single transaction. The transaction
	// commits only when fn returns nil; any error rolls back every write.
	WithEnrollmentTx(ctx context.Context, fn func(tx EnrollmentTx) error) error

	// Close releases the underlying connection pool
	Close() error
}
