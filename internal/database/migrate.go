package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Dialect holds the backend specific statements used by Migrate.
type Dialect struct {
	// CreateMigrationsTable creates schema_migrations(version, applied_at) if missing.
	CreateMigrationsTable string
	// RecordMigration inserts one version; it takes a single placeholder.
	RecordMigration string
}

// getAppliedMigrations returns a set of already-applied migration versions.
func getAppliedMigrations(ctx context.Context, db *sql.DB, dialect Dialect) (map[string]bool, error) {
	if _, err := db.ExecContext(ctx, dialect.CreateMigrationsTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// getPendingMigrationFiles returns sorted SQL migration filenames not yet applied.
func getPendingMigrationFiles(fsys fs.FS, applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !applied[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements splits a migration file on semicolons. Migrations must
// not contain semicolons inside literals or procedure bodies.
func splitStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// Migrate applies every pending *.sql file in fsys in name order, each in
// its own transaction, and returns the names it applied.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, dialect Dialect) ([]string, error) {
	applied, err := getAppliedMigrations(ctx, db, dialect)
	if err != nil {
		return nil, err
	}

	files, err := getPendingMigrationFiles(fsys, applied)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin transaction for %s: %w", file, err)
		}

		for _, stmt := range splitStatements(string(content)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return nil, fmt.Errorf("execute migration %s: %w", file, err)
			}
		}

		if _, err := tx.ExecContext(ctx, dialect.RecordMigration, file); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("record migration %s: %w", file, err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit migration %s: %w", file, err)
		}
	}

	return files, nil
}

// MigrationsApplied returns the list of applied migrations
func MigrationsApplied(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}
