package mariadb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/kozaktomas/face-registry/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var dialect = database.Dialect{
	CreateMigrationsTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) NOT NULL PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	RecordMigration: "INSERT INTO schema_migrations (version) VALUES (?)",
}

// Migrate applies all pending migrations
func (p *Pool) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	_, err = database.Migrate(ctx, p.db, sub, dialect)
	return err
}

// IdentityRepository provides MariaDB-backed identity and embedding storage
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new MariaDB identity repository
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// GetIdentity retrieves an identity by ID
func (r *IdentityRepository) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	var identity database.Identity
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT id, display_name, contact, created_at, updated_at FROM identities WHERE id = ?", id,
	).Scan(&identity.ID, &identity.DisplayName, &identity.Contact, &identity.CreatedAt, &identity.UpdatedAt)
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
		GROUP BY i.id, i.display_name, i.contact, i.created_at, i.updated_at
		ORDER BY i.id
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
		var blob []byte
		if err := rows.Scan(&rec.Seq, &rec.OwnerID, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if rec.Vector, err = database.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("decode embedding %d: %w", rec.Seq, err)
		}
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
	err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_embeddings WHERE owner_id = ?", ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// WithEnrollmentTx runs fn in a transaction and commits only if fn succeeds
func (r *IdentityRepository) WithEnrollmentTx(ctx context.Context, fn func(tx database.EnrollmentTx) error) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(&enrollmentTx{tx: tx}); err != nil {
		_ = tx.Rollback()
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
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			display_name = VALUES(display_name),
			contact = VALUES(contact),
			updated_at = CURRENT_TIMESTAMP(6)
	`
	if _, err := t.tx.ExecContext(ctx, query, identity.ID, identity.DisplayName, identity.Contact); err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

func (t *enrollmentTx) ReplaceEmbeddings(ctx context.Context, ownerID string, vectors [][]float32) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM face_embeddings WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	for i, v := range vectors {
		if _, err := t.tx.ExecContext(ctx,
			"INSERT INTO face_embeddings (owner_id, embedding) VALUES (?, ?)", ownerID, database.EncodeVector(v),
		); err != nil {
			return fmt.Errorf("insert embedding %d: %w", i, err)
		}
	}
	return nil
}

// Verify interface compliance.
var _ database.EmbeddingStore = (*IdentityRepository)(nil)
