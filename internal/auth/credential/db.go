package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DatabaseType represents the supported database types
type DatabaseType string

const (
	SQLite     DatabaseType = "sqlite"
	PostgreSQL DatabaseType = "postgres"
	MySQL      DatabaseType = "mysql"
)

// Credential is one persisted key-value row
type Credential struct {
	Name      string `gorm:"primaryKey;type:varchar(64)"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// DBStorage implements the Store interface on a relational database
type DBStorage struct {
	db *gorm.DB
}

var _ Store = (*DBStorage)(nil)

// NewDBStorage opens (creating if needed) the SQLite database at path
func NewDBStorage(path string) (*DBStorage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return OpenDBStorage(SQLite, path)
}

// OpenDBStorage opens a credential table on the given database
func OpenDBStorage(dbType DatabaseType, dsn string) (*DBStorage, error) {
	var dialector gorm.Dialector
	switch dbType {
	case SQLite:
		dialector = sqlite.Open(dsn)
	case PostgreSQL:
		dialector = postgres.Open(dsn)
	case MySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Credential{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DBStorage{db: db}, nil
}

// Get retrieves a value by key
func (s *DBStorage) Get(ctx context.Context, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	var c Credential
	err := s.db.WithContext(ctx).Where("name = ?", key).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return c.Value, nil
}

// Set upserts a value
func (s *DBStorage) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	c := Credential{Name: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&c).Error
}

// Clear deletes a value
func (s *DBStorage) Clear(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("name = ?", key).Delete(&Credential{}).Error
}

// Close closes the database connection
func (s *DBStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
