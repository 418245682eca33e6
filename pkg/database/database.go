package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"retail-backoffice/internal/config"
	"retail-backoffice/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database selected by cfg.DBDriver.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  parseLogLevel(cfg.DBLogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverSQLite:
		// Shared cache lets the pool's connections see the same file-backed schema
		dialector = sqlite.Open(fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", cfg.SQLitePath))
	case config.DriverPostgres:
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.PostgresDSN(),
			PreferSimpleProtocol: true, // Disables implicit prepared statements for pooled (pgbouncer) setups
		})
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newLogger,
		PrepareStmt:    false,
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: pool: %w", err)
	}
	if cfg.DBDriver == config.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Printf("Database connection established (%s)", cfg.DBDriver)
	return db, nil
}

// Migrate creates or updates the schema and seeds sequence counters.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Privilege{}, &model.Role{}, &model.User{},
		&model.Category{}, &model.Product{},
		&model.Sale{}, &model.SaleItem{}, &model.Counter{},
	); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}

	var counter model.Counter
	err := db.Where("name = ?", model.SaleReceiptCounter).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&model.Counter{Name: model.SaleReceiptCounter}).Error
	}
	return err
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
