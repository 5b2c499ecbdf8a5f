package recognition

import (
	"context"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

// ListIdentities returns enrolled identities ordered by ID. A non-empty
// name keeps identities whose display name contains it, ignoring case and
// diacritics.
func (e *Engine) ListIdentities(ctx context.Context, name string) ([]database.IdentitySummary, error) {
	identities, err := e.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	if facematch.NormalizePersonName(name) == "" {
		return identities, nil
	}

	filtered := make([]database.IdentitySummary, 0, len(identities))
	for _, identity := range identities {
		if facematch.NameContains(identity.DisplayName, name) {
			filtered = append(filtered, identity)
		}
	}
	return filtered, nil
}

// GetIdentity returns one identity with its embedding count, or
// database.ErrNotFound.
func (e *Engine) GetIdentity(ctx context.Context, id string) (*database.IdentitySummary, error) {
	identity, err := e.store.GetIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := e.store.CountEmbeddings(ctx, id)
	if err != nil {
		return nil, err
	}
	return &database.IdentitySummary{Identity: *identity, EmbeddingCount: count}, nil
}
