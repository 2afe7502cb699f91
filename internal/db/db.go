package db

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"checkpoint-gate/internal/config"
)

// Open connects to the configured database and brings its schema up to
// date. PostgreSQL runs the SQL migrations; SQLite auto-migrates models.
func Open(cfg config.DatabaseConfig, log zerolog.Logger, models ...any) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	switch cfg.Driver {
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := setup(db, runMigrations); err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.Driver).Int("migrations", len(migrationStatements)).Msg("database ready")
		return db, nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		err = setup(db, func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("sqlite pool: %w", err)
			}
			// Single connection: one writer, and in-memory databases are per connection.
			sqlDB.SetMaxOpenConns(1)
			if err := db.AutoMigrate(models...); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.Driver).Int("models", len(models)).Msg("database ready")
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// setup runs prepare on a freshly opened db and releases its pool when
// prepare fails.
func setup(db *gorm.DB, prepare func(*gorm.DB) error) error {
	if err := prepare(db); err != nil {
		return errors.Join(err, Close(db))
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
