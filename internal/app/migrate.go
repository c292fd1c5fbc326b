package app

import (
	"context"
	"fmt"

	"ms-storefront/internal/config"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/order/db"
)

// Migrate applies the SQL migrations in the given direction ("up", "down"
// or "version") and optionally loads the demo catalog.
func Migrate(ctx context.Context, cfg *config.Config, log *logger.Logger, direction string, seed bool) error {
	bunDB, err := OpenPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB.DB, migrations.Options{Dir: cfg.Database.MigrationsPath}, log)
	defer runner.Close()

	switch direction {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = runner.Version()
		if err == nil {
			log.Info("MIGRATE", fmt.Sprintf("Schema version %d (dirty=%t)", version, dirty))
		}
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if err != nil {
		return err
	}

	if seed && direction == "up" {
		if err := db.Seed(ctx, bunDB); err != nil {
			return err
		}
		log.LogDatabase("SEED", "products", "demo catalog loaded")
	}
	return nil
}
