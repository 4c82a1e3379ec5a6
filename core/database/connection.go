package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/re178/mega-facebook-autoposter/core/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const memoryDSN = "file::memory:?_foreign_keys=on"

// NewDatabase opens the scheduler store selected by cfg.Database.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.Database)
	if err != nil {
		return nil, err
	}
	db, err := open(dialector, cfg.App.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database %q: %w", driverName(cfg.Database), cfg.Database.Name, err)
	}
	if err := tunePool(db, driverName(cfg.Database)); err != nil {
		return nil, err
	}
	logrus.Infof("[DATABASE] Connected (%s)", driverName(cfg.Database))
	return db, nil
}

// NewInMemory opens a private sqlite database for tests.
func NewInMemory() (*gorm.DB, error) {
	db, err := open(sqlite.Open(memoryDSN), false)
	if err != nil {
		return nil, err
	}
	return db, tunePool(db, "sqlite")
}

func driverName(c config.DatabaseConfig) string {
	if c.Driver == "" {
		return "sqlite"
	}
	return c.Driver
}

func dialectorFor(c config.DatabaseConfig) (gorm.Dialector, error) {
	switch driverName(c) {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, c.Port)
		return postgres.Open(dsn), nil
	case "sqlite":
		if c.Name == "" || c.Name == ":memory:" {
			return sqlite.Open(memoryDSN), nil
		}
		if dir := filepath.Dir(c.Name); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", c.Name)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
}

func open(dialector gorm.Dialector, debug bool) (*gorm.DB, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}

func tunePool(db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	if driver == "sqlite" {
		// A single connection keeps an in-memory database alive and serialises writers.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return nil
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}
