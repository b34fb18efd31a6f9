// Package schema applies versioned SQL migrations and records them in a
// schema_migrations table.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

const historyTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	applied_at  TEXT NOT NULL
)`

// SchemaVersion is one applied migration
type SchemaVersion struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Migration moves the schema from FromVersion to ToVersion
type Migration struct {
	FromVersion int
	ToVersion   int
	Description string
	Up          MigrationFunc
}

// MigrationFunc runs inside the migration's transaction
type MigrationFunc func(ctx context.Context, tx *sql.Tx) error

// Statements builds a MigrationFunc that executes each statement in order.
func Statements(stmts ...string) MigrationFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

// Evolution holds the registered migrations
type Evolution struct {
	migrations []Migration
}

// NewEvolution creates an empty migration set
func NewEvolution() *Evolution {
	return &Evolution{}
}

// RegisterMigration adds a single-step migration.
func (e *Evolution) RegisterMigration(migration Migration) error {
	if migration.ToVersion != migration.FromVersion+1 {
		return fmt.Errorf("invalid migration %d->%d: must advance one version", migration.FromVersion, migration.ToVersion)
	}
	if migration.Up == nil {
		return fmt.Errorf("migration %d->%d has no Up step", migration.FromVersion, migration.ToVersion)
	}
	for _, existing := range e.migrations {
		if existing.FromVersion == migration.FromVersion {
			return fmt.Errorf("migration from %d to %d already exists", migration.FromVersion, migration.ToVersion)
		}
	}

	e.migrations = append(e.migrations, migration)
	sort.Slice(e.migrations, func(i, j int) bool { return e.migrations[i].FromVersion < e.migrations[j].FromVersion })
	return nil
}

// LatestVersion is the version reached after every registered migration
func (e *Evolution) LatestVersion() int {
	if len(e.migrations) == 0 {
		return 0
	}
	return e.migrations[len(e.migrations)-1].ToVersion
}

// CurrentVersion reads the highest applied version; 0 for a fresh database.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, historyTable); err != nil {
		return 0, fmt.Errorf("create migration history: %w", err)
	}
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Migrate applies every pending migration, each in its own transaction, and
// returns the versions it applied. Databases newer than this build are refused.
func (e *Evolution) Migrate(ctx context.Context, db *sql.DB) ([]SchemaVersion, error) {
	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	if current > e.LatestVersion() {
		return nil, fmt.Errorf("database schema version %d is newer than supported version %d", current, e.LatestVersion())
	}

	var applied []SchemaVersion
	for _, migration := range e.migrations {
		if migration.FromVersion < current {
			continue
		}
		if migration.FromVersion != current {
			return applied, fmt.Errorf("no migration found from version %d to %d", current, current+1)
		}

		version, err := apply(ctx, db, migration)
		if err != nil {
			return applied, err
		}
		applied = append(applied, version)
		current = migration.ToVersion
	}
	return applied, nil
}

func apply(ctx context.Context, db *sql.DB, migration Migration) (SchemaVersion, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("begin migration %d: %w", migration.ToVersion, err)
	}
	defer tx.Rollback()

	if err := migration.Up(ctx, tx); err != nil {
		return SchemaVersion{}, fmt.Errorf("migration %d->%d failed: %w", migration.FromVersion, migration.ToVersion, err)
	}

	version := SchemaVersion{
		Version:     migration.ToVersion,
		Description: migration.Description,
		AppliedAt:   time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		version.Version, version.Description, version.AppliedAt.Format(time.RFC3339Nano),
	); err != nil {
		return SchemaVersion{}, fmt.Errorf("record migration %d: %w", migration.ToVersion, err)
	}
	if err := tx.Commit(); err != nil {
		return SchemaVersion{}, fmt.Errorf("commit migration %d: %w", migration.ToVersion, err)
	}
	return version, nil
}
