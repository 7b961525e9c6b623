package db

import (
	"errors"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"starlore/internal/config"
)

// ErrNotConfigured is returned by Connect when APP_DATABASE_URL is unset.
var ErrNotConfigured = errors.New("APP_DATABASE_URL not set, rollup archive disabled")

// Connect opens a GORM connection to the rollup archive using APP_DATABASE_URL
// (PostgreSQL URL) and migrates its tables.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, ErrNotConfigured
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&DailyRollup{}); err != nil {
		return nil, err
	}

	return db, nil
}
