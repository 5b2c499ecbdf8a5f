package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-registry/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var dialect = database.Dialect{
	CreateMigrationsTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	RecordMigration: "INSERT INTO schema_migrations (version) VALUES ($1)",
}

// Migrate applies all pending migrations automatically on startup
func (p *Pool) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	if _, err := database.Migrate(ctx, p.db, sub, dialect); err != nil {
		return err
	}
	return nil
}

// IdentityRepository provides PostgreSQL-backed identity and embedding storage
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// GetIdentity retrieves an identity by ID
func (r *IdentityRepository) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	query := `
		SELECT id, display_name, contact, created_at, updated_at
		FROM identities
		WHERE id = $1
	`

	var identity database.Identity
	err := r.pool.db.QueryRowContext(ctx, query, id).Scan(
		&identity.ID,
		&identity.DisplayName,
		&identity.Contact,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return &identity, nil
}

// ListIdentities returns all identities with their embedding counts
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]database.IdentitySummary, error) {
	query := `
		SELECT i.id, i.display_name, i.contact, i.created_at, i.updated_at, COUNT(e.id)
		FROM identities i
		LEFT JOIN face_embeddings e ON e.owner_id = i.id
		GROUP BY i.id
		ORDER BY i.id COLLATE "C"
	`

	rows, err := r.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var result []database.IdentitySummary
	for rows.Next() {
		var s database.IdentitySummary
		if err := rows.Scan(&s.ID, &s.DisplayName, &s.Contact, &s.CreatedAt, &s.UpdatedAt, &s.EmbeddingCount); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return result, nil
}

// ListEmbeddings returns every embedding in insertion order
func (r *IdentityRepository) ListEmbeddings(ctx context.Context) ([]database.EmbeddingRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx, "SELECT id, owner_id, embedding FROM face_embeddings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var result []database.EmbeddingRecord
	for rows.Next() {
		var rec database.EmbeddingRecord
		var vec pgvector.Vector
		if err := rows.Scan(&rec.Seq, &rec.OwnerID, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		rec.Vector = vec.Slice()
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return result, nil
}

// CountEmbeddings returns the number of embeddings stored for an identity
func (r *IdentityRepository) CountEmbeddings(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_embeddings WHERE owner_id = $1", ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// WithEnrollmentTx runs fn in a transaction and commits only if fn succeeds
func (r *IdentityRepository) WithEnrollmentTx(ctx context.Context, fn func(tx database.EnrollmentTx) error) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&enrollmentTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}

type enrollmentTx struct {
	tx *sql.Tx
}

func (t *enrollmentTx) UpsertIdentity(ctx context.Context, identity database.Identity) error {
	query := `
		INSERT INTO identities (id, display_name, contact)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			contact = EXCLUDED.contact,
			updated_at = NOW()
	`
	if _, err := t.tx.ExecContext(ctx, query, identity.ID, identity.DisplayName, identity.Contact); err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

func (t *enrollmentTx) ReplaceEmbeddings(ctx context.Context, ownerID string, vectors [][]float32) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM face_embeddings WHERE owner_id = $1", ownerID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}

	stmt, err := t.tx.PrepareContext(ctx, "INSERT INTO face_embeddings (owner_id, embedding) VALUES ($1, $2)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, v := range vectors {
		if len(v) != database.EmbeddingDim {
			return fmt.Errorf("embedding %d has dimension %d, column expects %d", i, len(v), database.EmbeddingDim)
		}
		if _, err := stmt.ExecContext(ctx, ownerID, pgvector.NewVector(v)); err != nil {
			return fmt.Errorf("insert embedding %d: %w", i, err)
		}
	}
	return nil
}

// Verify interface compliance.
var _ database.EmbeddingStore = (*IdentityRepository)(nil)
