// Package storage opens the database behind the roster and match stores.
package storage

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/servant-draft/internal/recorder"
	"github.com/DoyleJ11/servant-draft/internal/roster"
)

type Config struct {
	// DatabaseURL selects postgres when set.
	DatabaseURL string
	// SQLitePath is used otherwise; empty means an in-memory database.
	SQLitePath string
	Debug      bool
}

func Open(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case cfg.DatabaseURL != "":
		dialector = postgres.Open(cfg.DatabaseURL)
		log.Info("using postgres")
	case cfg.SQLitePath != "":
		dialector = sqlite.Open(cfg.SQLitePath)
		log.Info("using sqlite", zap.String("path", cfg.SQLitePath))
	default:
		dialector = sqlite.Open("file::memory:?cache=shared")
		log.Warn("no database configured, rosters and match records live in memory")
	}

	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table the server uses.
func Migrate(db *gorm.DB) error {
	err := multierr.Combine(
		roster.Migrate(db),
		recorder.Migrate(db),
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
