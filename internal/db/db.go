package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks a gorm dialector from a database URL.
// postgres:// URLs are passed to the Postgres driver as-is; sqlite:// URLs
// have the scheme stripped and the remainder used as the file path.
func Dialector(dbURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return postgres.Open(dbURL), nil
	case strings.HasPrefix(dbURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dbURL, "sqlite://")), nil
	default:
		return nil, fmt.Errorf("invalid database URL %q: must start with 'postgres://' or 'sqlite://'", dbURL)
	}
}

// Open initializes a GORM connection for dbURL and verifies it with a ping.
func Open(dbURL string, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dialector, err := Dialector(dbURL)
	if err != nil {
		return nil, err
	}
	log.Info("connecting to database", zap.String("dialect", dialector.Name()))

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Be quiet by default
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dialector.Name() == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dialector.Name(), err)
	}

	log.Info("database connection established", zap.String("dialect", dialector.Name()))
	return db, nil
}
