package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

// SQLiteService owns the GORM handle for conversation history.
type SQLiteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSQLiteService(path string, log *logger.Logger) (*SQLiteService, error) {
	serviceLog := log.With("service", "SQLiteService")

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	serviceLog.Info("Opening SQLite database", "path", path)
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteService{db: gdb, log: serviceLog}, nil
}

// AutoMigrateAll creates or updates the conversation tables.
func (s *SQLiteService) AutoMigrateAll() error {
	s.log.Info("Auto migrating sqlite tables...")
	if err := s.db.AutoMigrate(
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return nil
}

func (s *SQLiteService) DB() *gorm.DB {
	return s.db
}
