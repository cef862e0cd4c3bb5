package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	// Money and quantities are numeric; binary floats would drift invoice totals.
	floatTypeRe = regexp.MustCompile(`(?i)\b(real|float[48]?|double\s+precision)\b`)
)

// migrationFile is one goose SQL file in the migrations directory.
type migrationFile struct {
	Version int64
	Name    string
	Path    string
}

// listMigrations returns the well-formed migration files sorted by version.
// Badly named .sql files are collected in problems; err means the directory
// itself could not be read.
func listMigrations(dir string) (files []migrationFile, problems error, err error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		files = append(files, migrationFile{Version: version, Name: name, Path: filepath.Join(dir, name)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, problems, nil
}

// ValidateDir checks every migration and reports all problems at once:
// filenames, duplicate versions, goose markers and float-typed columns.
func ValidateDir(dir string) error {
	files, errs, err := listMigrations(dir)
	if err != nil {
		return err
	}

	for i, f := range files {
		if i > 0 && files[i-1].Version == f.Version {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %d in %q and %q", f.Version, files[i-1].Name, f.Name))
		}
		b, err := os.ReadFile(f.Path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", f.Path, err))
			continue
		}
		errs = multierr.Append(errs, checkMigration(f.Name, string(b)))
	}
	return errs
}

func checkMigration(name, sql string) error {
	up := strings.Index(sql, "-- +goose Up")
	down := strings.Index(sql, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case down < up:
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}

	var errs error
	for n, line := range strings.Split(sql[up:down], "\n") {
		code, _, _ := strings.Cut(line, "--")
		if match := floatTypeRe.FindString(code); match != "" {
			errs = multierr.Append(errs, fmt.Errorf("migration %q uses %s on line %d of the Up section; use numeric for money and quantities", name, match, n+1))
		}
	}
	return errs
}
