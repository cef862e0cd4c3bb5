package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// RepairDesk runs on Postgres only.
const dialect = "postgres"

// Run executes a goose command against db. Commands that apply migrations
// validate the directory first, so a float money column never reaches the
// schema.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if err := prepare(dir, command == "up" || command == "up-by-one" || command == "up-to"); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to target. target is "0" to
// roll everything back, a version, or a migration file name with or without
// its .sql suffix.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, target string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	version, err := resolveTarget(dir, target)
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == version:
		return nil
	case current < version:
		if err := prepare(dir, true); err != nil {
			return err
		}
		if err := goose.UpToContext(ctx, db, dir, version); err != nil {
			return fmt.Errorf("goose up-to %d: %w", version, err)
		}
	default:
		if err := prepare(dir, false); err != nil {
			return err
		}
		if err := goose.DownToContext(ctx, db, dir, version); err != nil {
			return fmt.Errorf("goose down-to %d: %w", version, err)
		}
	}
	return nil
}

func prepare(dir string, applying bool) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if applying {
		if err := ValidateDir(dir); err != nil {
			return fmt.Errorf("refusing to migrate: %w", err)
		}
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// resolveTarget maps a -version argument onto a migration that exists in dir.
func resolveTarget(dir, target string) (int64, error) {
	target = strings.TrimSuffix(strings.TrimSpace(target), ".sql")
	if target == "" {
		return 0, fmt.Errorf("target version is required")
	}
	if target == "0" {
		return 0, nil
	}

	files, _, err := listMigrations(dir)
	if err != nil {
		return 0, err
	}
	version, numErr := strconv.ParseInt(target, 10, 64)
	for _, f := range files {
		if (numErr == nil && f.Version == version) || strings.TrimSuffix(f.Name, ".sql") == target {
			return f.Version, nil
		}
	}
	return 0, fmt.Errorf("no migration %q in %s", target, dir)
}
