package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

const selectIdentityColumns = `
	SELECT name, embedding, description, affiliation, image_sources, image_count, updated_at
	FROM identities
`

// IdentityRepository provides PostgreSQL-backed identity storage
type IdentityRepository struct {
	pool *Pool
	dim  int // expected embedding dimension, 0 disables the check
}

// NewIdentityRepository creates a new PostgreSQL identity repository
func NewIdentityRepository(pool *Pool, dim int) *IdentityRepository {
	return &IdentityRepository{pool: pool, dim: dim}
}

// Close releases the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}

func (r *IdentityRepository) checkDim(embedding []float32) error {
	if r.dim > 0 && len(embedding) != r.dim {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(embedding), r.dim)
	}
	return nil
}

// Get retrieves an identity by name, returns nil if not found
func (r *IdentityRepository) Get(ctx context.Context, name string) (*database.StoredIdentity, error) {
	row := r.pool.QueryRow(ctx, selectIdentityColumns+" WHERE name = $1", name)

	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// List returns every identity in insertion order
func (r *IdentityRepository) List(ctx context.Context) ([]database.StoredIdentity, error) {
	rows, err := r.pool.Query(ctx, selectIdentityColumns+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []database.StoredIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// Count returns the total number of identities stored
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Upsert stores an identity, replacing every field of an existing record with the same name
func (r *IdentityRepository) Upsert(ctx context.Context, s database.StoredIdentity) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.checkDim(s.Embedding); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (name, embedding, description, affiliation, image_sources, image_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name)
		DO UPDATE SET embedding = $2, description = $3, affiliation = $4,
			image_sources = $5, image_count = $6, updated_at = $7
	`, s.Name, pgvector.NewVector(s.Embedding), s.Description, s.Affiliation,
		pq.Array(s.ImageSources), s.ImageCount, database.Day(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// Update edits (and possibly renames) an existing identity inside one transaction
func (r *IdentityRepository) Update(ctx context.Context, name string, upd database.IdentityUpdate) (bool, error) {
	if err := upd.Validate(); err != nil {
		return false, err
	}
	if upd.Embedding != nil {
		if err := r.checkDim(upd.Embedding.Embedding); err != nil {
			return false, err
		}
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM identities WHERE name = $1 FOR UPDATE", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock identity: %w", err)
	}

	if upd.Name != name {
		var taken bool
		if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM identities WHERE name = $1)", upd.Name).Scan(&taken); err != nil {
			return false, fmt.Errorf("check identity name: %w", err)
		}
		if taken {
			return false, database.ErrConflict
		}
	}

	if upd.Embedding == nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE identities SET name = $2, description = $3, affiliation = $4, updated_at = $5
			WHERE id = $1
		`, id, upd.Name, upd.Description, upd.Affiliation, database.Day(upd.UpdatedAt))
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE identities SET name = $2, description = $3, affiliation = $4, updated_at = $5,
				embedding = $6, image_sources = $7, image_count = $8
			WHERE id = $1
		`, id, upd.Name, upd.Description, upd.Affiliation, database.Day(upd.UpdatedAt),
			pgvector.NewVector(upd.Embedding.Embedding), pq.Array(upd.Embedding.ImageSources),
			len(upd.Embedding.ImageSources))
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return false, database.ErrConflict
		}
		return false, fmt.Errorf("update identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit identity update: %w", err)
	}
	return true, nil
}

// Delete removes an identity by name
func (r *IdentityRepository) Delete(ctx context.Context, name string) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE name = $1", name)
	if err != nil {
		return false, fmt.Errorf("delete identity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete identity rows affected: %w", err)
	}
	return affected > 0, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*database.StoredIdentity, error) {
	var identity database.StoredIdentity
	var vec pgvector.Vector
	var sources []string

	if err := row.Scan(
		&identity.Name,
		&vec,
		&identity.Description,
		&identity.Affiliation,
		pq.Array(&sources),
		&identity.ImageCount,
		&identity.UpdatedAt,
	); err != nil {
		return nil, err
	}

	identity.Embedding = vec.Slice()
	identity.ImageSources = sources
	return &identity, nil
}
