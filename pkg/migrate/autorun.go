package migrate

import (
	"context"
	"fmt"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/db"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup in dev when
// CORPORATEPRANKS_AUTO_MIGRATE is set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	m, err := New(sqlDB, "", logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "migrate.auto_run")
	return m.Up(ctx)
}
