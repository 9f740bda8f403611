package migration

import (
	"github.com/smallbiznis/guildpass/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(runOnStart),
)

func runOnStart(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if cfg.Type != "postgres" {
		log.Warn("skipping embedded migrations for non-postgres database", zap.String("type", cfg.Type))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	res, err := RunMigrations(sqlDB)
	if err != nil {
		log.Error("schema migration failed", zap.Uint("from_version", res.From), zap.Error(err))
		return err
	}
	log.Info("schema ready",
		zap.String("table", MigrationsTable),
		zap.Uint("from_version", res.From),
		zap.Uint("version", res.To),
		zap.Bool("applied", res.Applied),
	)
	return nil
}
