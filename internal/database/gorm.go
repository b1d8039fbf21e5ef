package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"whatsapp-autoresponder/internal/config"
	"whatsapp-autoresponder/internal/store"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

var ErrNotDatabaseBackend = errors.New("database: backend is not sql")

type Options struct {
	Debug   bool // log every statement
	Tracing bool // emit otel spans per query
}

// Open connects to the sqlite or postgres database selected by cfg and
// migrates the store tables.
func Open(cfg config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.DBPath + "?_busy_timeout=5000&_foreign_keys=on")
	case config.BackendPostgres:
		dialector = postgres.Open(cfg.PostgresDSN())
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotDatabaseBackend, cfg.StoreBackend)
	}
	return OpenDialector(dialector, Options{Debug: cfg.LogLevel == "debug", Tracing: cfg.OTEL.Enabled})
}

// OpenDialector opens db with the given dialector, tunes the pool and runs the
// store migrations.
func OpenDialector(dialector gorm.Dialector, opts Options) (*gorm.DB, error) {
	level := logger.Warn
	if opts.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", dialector.Name(), err)
	}

	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migration: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
