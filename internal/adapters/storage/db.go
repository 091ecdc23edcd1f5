package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour a store speaks. Queries are written with
// '?' placeholders and rebound for dialects that need numbered ones.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Rebind rewrites '?' placeholders to $1..$n for Postgres.
// PRE: query contains no literal '?' inside string constants
// POST: Returns query unchanged for SQLite
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// migrations are applied in order; index+1 is the schema version.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS timetable_snapshot (
			namespace TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			entry_count INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS roster_member (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			class_code TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roster_member_class_code ON roster_member (class_code, role)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			action_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 5,
			last_attempted_at TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox (status, created_at)`,
	},
}

// LatestSchemaVersion returns the version MigrateDB brings a database to.
func LatestSchemaVersion() int {
	return len(migrations)
}

// SchemaVersion reads the applied schema version (0 for a fresh database).
// PRE: db is a valid database connection
// POST: Returns the highest applied version
func SchemaVersion(ctx context.Context, db SQLDB) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// MigrateDB applies every pending migration, each inside its own transaction.
// PRE: db is a valid database connection; placeholders are already rebound by db
// POST: SchemaVersion(db) == LatestSchemaVersion()
func MigrateDB(ctx context.Context, db SQLDB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d: begin: %w", version, err)
		}
		for _, stmt := range migrations[i] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, rebindFor(db, `INSERT INTO schema_version (version) VALUES (?)`), version); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", version, err)
		}
	}
	return nil
}

// rebindFor rebinds statements run on a raw *sql.Tx, which bypasses TimedDB.
func rebindFor(db SQLDB, query string) string {
	if t, ok := db.(*TimedDB); ok {
		return t.dialect.Rebind(query)
	}
	return query
}
