// Package sqlite provides a single-file identity store for development and
// small deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// dateLayout is how updated_at is persisted.
const dateLayout = "2006-01-02"

func init() {
	database.RegisterBackend("sqlite", Open)
}

// Store implements database.Store on top of SQLite.
type Store struct {
	db     *sql.DB
	dim    int
	logger *zap.Logger
}

// Open creates the store at cfg.SQLite.Path.
func Open(_ context.Context, cfg *config.StoreConfig, logger *zap.Logger) (database.Store, error) {
	if cfg == nil || cfg.SQLite.Path == "" {
		return nil, errors.New("SQLITE_PATH is required for the sqlite store")
	}
	return New(cfg.SQLite.Path, cfg.EmbeddingDim, logger)
}

// New opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func New(dbPath string, dim int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps rename transactions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("sqlite store ready", zap.String("path", dbPath))
	return &Store{db: db, dim: dim, logger: logger}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		embedding BLOB NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		affiliation TEXT NOT NULL DEFAULT '',
		image_sources TEXT NOT NULL DEFAULT '[]',
		image_count INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_identities_updated_at ON identities(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) encode(embedding []float32, sources []string) ([]byte, string, error) {
	if s.dim > 0 && len(embedding) != s.dim {
		return nil, "", fmt.Errorf("embedding has %d dimensions, store expects %d", len(embedding), s.dim)
	}
	blob, err := database.EncodeEmbedding(embedding)
	if err != nil {
		return nil, "", err
	}
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal image sources: %w", err)
	}
	return blob, string(sourcesJSON), nil
}

const selectColumns = `SELECT name, embedding, description, affiliation, image_sources, image_count, updated_at FROM identities`

// Get returns the identity with the given name, or nil when absent.
func (s *Store) Get(ctx context.Context, name string) (*database.StoredIdentity, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE name = ?`, name)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// List returns all identities in insertion order.
func (s *Store) List(ctx context.Context) ([]database.StoredIdentity, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
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
	return identities, rows.Err()
}

// Count returns the number of stored identities.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

// Upsert inserts or fully replaces the identity keyed by its name.
func (s *Store) Upsert(ctx context.Context, identity database.StoredIdentity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	blob, sources, err := s.encode(identity.Embedding, identity.ImageSources)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identities (name, embedding, description, affiliation, image_sources, image_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			embedding = excluded.embedding,
			description = excluded.description,
			affiliation = excluded.affiliation,
			image_sources = excluded.image_sources,
			image_count = excluded.image_count,
			updated_at = excluded.updated_at`,
		identity.Name, blob, identity.Description, identity.Affiliation, sources,
		identity.ImageCount, identity.UpdatedAt.UTC().Format(dateLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// Update applies upd to the identity called name. A rename onto an existing
// name fails with database.ErrConflict.
func (s *Store) Update(ctx context.Context, name string, upd database.IdentityUpdate) (bool, error) {
	if err := upd.Validate(); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM identities WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup identity: %w", err)
	}

	day := upd.UpdatedAt.UTC().Format(dateLayout)
	if upd.Embedding == nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE identities SET name = ?, description = ?, affiliation = ?, updated_at = ? WHERE id = ?`,
			upd.Name, upd.Description, upd.Affiliation, day, id)
	} else {
		blob, sources, encErr := s.encode(upd.Embedding.Embedding, upd.Embedding.ImageSources)
		if encErr != nil {
			return false, encErr
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE identities SET name = ?, description = ?, affiliation = ?, updated_at = ?,
				embedding = ?, image_sources = ?, image_count = ?
			 WHERE id = ?`,
			upd.Name, upd.Description, upd.Affiliation, day,
			blob, sources, len(upd.Embedding.ImageSources), id)
	}
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return false, database.ErrConflict
		}
		return false, fmt.Errorf("update identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit identity update: %w", err)
	}
	return true, nil
}

// Delete removes the identity called name.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*database.StoredIdentity, error) {
	var identity database.StoredIdentity
	var blob []byte
	var sourcesJSON, day string

	if err := row.Scan(&identity.Name, &blob, &identity.Description, &identity.Affiliation,
		&sourcesJSON, &identity.ImageCount, &day); err != nil {
		return nil, err
	}

	embedding, err := database.DecodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("identity %q: %w", identity.Name, err)
	}
	identity.Embedding = embedding

	if err := json.Unmarshal([]byte(sourcesJSON), &identity.ImageSources); err != nil {
		return nil, fmt.Errorf("identity %q: failed to unmarshal image sources: %w", identity.Name, err)
	}
	if identity.UpdatedAt, err = time.Parse(dateLayout, day); err != nil {
		return nil, fmt.Errorf("identity %q: invalid updated_at %q: %w", identity.Name, day, err)
	}
	return &identity, nil
}
