package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/repairdesk-backend/pkg/config"
	"github.com/angelmondragon/repairdesk-backend/pkg/db"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations in dev when REPAIRDESK_AUTO_MIGRATE
// is set. Everywhere else it only checks the schema: a service started
// against an older schema would fail later on columns such as
// invoices.quote_reminded_at, so it refuses to start instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})

	if cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate {
		logg.Info(ctx, "applying pending migrations (dev auto-run)")
		if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
			return fmt.Errorf("running goose up: %w", err)
		}
		logg.Info(ctx, "migrations applied")
		return nil
	}
	return checkSchemaCurrent(ctx, logg, sqlDB, DefaultDir, goose.GetDBVersion)
}

type versionReader func(*sql.DB) (int64, error)

func checkSchemaCurrent(ctx context.Context, logg *logger.Logger, sqlDB *sql.DB, dir string, current versionReader) error {
	files, _, err := listMigrations(dir)
	if err != nil || len(files) == 0 {
		// Images built without the migrations directory cannot check; the
		// migrate job owns the schema there.
		logg.Warn(ctx, "migrations directory unavailable, skipping schema version check")
		return nil
	}
	latest := files[len(files)-1].Version

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	applied, err := current(sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if applied < latest {
		return fmt.Errorf("schema version %d is behind %d (%s); run cmd/migrate first", applied, latest, files[len(files)-1].Name)
	}
	logg.Info(logg.WithField(ctx, "schema_version", applied), "schema is current")
	return nil
}
