package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID keys the advisory lock held while the schema is upgraded,
// so replicas starting together do not race on the same migration.
const migrationLockID = 0x66616365 // "face"

// schemaStep is one numbered SQL file, e.g. 002_identities_updated_at_idx.sql.
type schemaStep struct {
	version int
	name    string
	sql     string
}

// loadSchemaSteps parses the embedded files in version order.
func loadSchemaSteps() ([]schemaStep, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("listing schema files: %w", err)
	}

	steps := make([]schemaStep, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		prefix, _, ok := strings.Cut(name, "_")
		if !ok || path.Ext(name) != ".sql" {
			return nil, fmt.Errorf("schema file %s is not named NNN_description.sql", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: bad version prefix: %w", name, err)
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading schema file %s: %w", name, err)
		}
		steps = append(steps, schemaStep{version: version, name: name, sql: string(body)})
	}

	slices.SortFunc(steps, func(a, b schemaStep) int { return a.version - b.version })
	for i := 1; i < len(steps); i++ {
		if steps[i].version == steps[i-1].version {
			return nil, fmt.Errorf("schema files %s and %s share version %d", steps[i-1].name, steps[i].name, steps[i].version)
		}
	}
	return steps, nil
}

// Migrate brings the identity schema up to the newest embedded version.
// Every step commits together with its row in identity_schema.
func (p *Pool) Migrate(ctx context.Context) error {
	steps, err := loadSchemaSteps()
	if err != nil {
		return err
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for schema upgrade: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("locking schema: %w", err)
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID)

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS identity_schema (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("creating identity_schema: %w", err)
	}

	current, err := schemaVersion(ctx, conn)
	if err != nil {
		return err
	}

	upgraded := 0
	for _, step := range steps {
		if step.version <= current {
			continue
		}
		if err := applyStep(ctx, conn, step); err != nil {
			return err
		}
		p.logger.Debug("schema step applied", zap.Int("version", step.version), zap.String("file", step.name))
		upgraded++
	}

	if upgraded > 0 {
		p.logger.Info("identity schema upgraded",
			zap.Int("from", current),
			zap.Int("to", steps[len(steps)-1].version))
	}
	return nil
}

func applyStep(ctx context.Context, conn *sql.Conn, step schemaStep) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("schema version %d: %w", step.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, step.sql); err != nil {
		return fmt.Errorf("schema version %d (%s): %w", step.version, step.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO identity_schema (version, name) VALUES ($1, $2)", step.version, step.name); err != nil {
		return fmt.Errorf("recording schema version %d: %w", step.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema version %d: %w", step.version, err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func schemaVersion(ctx context.Context, q queryRower) (int, error) {
	var version int
	if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM identity_schema").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// SchemaVersion reports the newest applied schema version, 0 before the
// first migration.
func (p *Pool) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, p.db)
}
