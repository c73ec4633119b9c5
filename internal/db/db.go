package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"linemon-backend/config"
	"linemon-backend/internal/model"
)

// Open connects to the configured database and applies the pool settings.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// One writer at a time; concurrent connections only produce SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB, cfg *config.DatabaseConfig) error {
	log.Info().Msg("running database migrations")
	if err := db.AutoMigrate(
		&model.Equipment{},
		&model.Metric{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnableTimescale {
		if cfg.Driver != "postgres" {
			log.Warn().Str("driver", cfg.Driver).Msg("timescale requested on a non-postgres database; skipping")
		} else {
			log.Info().Msg("TimescaleDB is enabled, applying TimescaleDB-specific DDL")
			if err := applyTimescaleDDL(db); err != nil {
				log.Warn().Err(err).Msg("failed to apply some TimescaleDB DDL; continuing without it")
			}
		}
	}

	log.Info().Msg("database initialization complete")
	return nil
}

// Init opens the database and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// timescaleDDL turns metrics into a hypertable on ts. Hypertables need the
// partitioning column in every unique index, so the primary key becomes
// (id, ts).
var timescaleDDL = []string{
	"CREATE EXTENSION IF NOT EXISTS timescaledb;",
	"ALTER TABLE metrics DROP CONSTRAINT IF EXISTS metrics_pkey;",
	"ALTER TABLE metrics ADD PRIMARY KEY (id, ts);",
	"SELECT create_hypertable('metrics', 'ts', if_not_exists => TRUE, migrate_data => TRUE);",
	"CREATE INDEX IF NOT EXISTS idx_metrics_ts_desc ON metrics (ts DESC);",
}

func applyTimescaleDDL(db *gorm.DB) error {
	for _, ddl := range timescaleDDL {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
