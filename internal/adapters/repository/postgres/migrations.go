package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationFiles lists the embedded migration file names for direction
// "up" or "down", in the order they must run.
func MigrationFiles(direction string) ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	suffix := "." + direction + ".sql"
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}
	return names, nil
}

// FindMigration returns the embedded file whose name contains name, for
// example "create_votes.up".
func FindMigration(name string) (string, error) {
	pattern, err := regexp.Compile(`^.*` + regexp.QuoteMeta(name) + `\.sql$`)
	if err != nil {
		return "", fmt.Errorf("invalid migration name: %w", err)
	}

	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return "", fmt.Errorf("failed to read migrations directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && pattern.MatchString(entry.Name()) {
			return entry.Name(), nil
		}
	}
	return "", fmt.Errorf("migration file not found: %s", name)
}

func ExecMigration(ctx context.Context, db *sql.DB, fileName string) error {
	content, err := migrationFiles.ReadFile("migrations/" + fileName)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", fileName, err)
	}
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", fileName, err)
	}
	return nil
}

// ApplyMigrations runs every migration of the given direction.
func ApplyMigrations(ctx context.Context, db *sql.DB, direction string) error {
	names, err := MigrationFiles(direction)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ExecMigration(ctx, db, name); err != nil {
			return err
		}
	}
	return nil
}
