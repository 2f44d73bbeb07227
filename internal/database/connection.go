package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/playtrack/playtrack/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultDBName = "playtrack.db"
	defaultDBDir  = ".local/share/playtrack"
)

type DB struct {
	*gorm.DB
}

// DefaultDataDir returns the per-user data directory, creating it if needed.
func DefaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	dataDir := filepath.Join(homeDir, defaultDBDir)
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

func GetDefaultDBPath() (string, error) {
	dataDir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, defaultDBName), nil
}

// Connect opens the SQLite database. The pool is limited to one connection:
// the store is a single serialized resource and ":memory:" databases only
// exist per connection.
func Connect(dbPath string) (*DB, error) {
	if dbPath == "" {
		var err error
		dbPath, err = GetDefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+dsnOptions(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, classify("open", fmt.Errorf("failed to open database: %w", err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &DB{db}, nil
}

func dsnOptions(dbPath string) string {
	if dbPath == ":memory:" {
		return ""
	}
	return "?_busy_timeout=5000&_foreign_keys=on"
}

func (db *DB) Initialize() error {
	err := db.AutoMigrate(
		&models.Application{},
		&models.UserApp{},
		&models.PlaySession{},
		&models.StatusUpdate{},
		&models.Setting{},
		&models.ErrorLog{},
	)
	if err != nil {
		return classify("migrate", fmt.Errorf("failed to initialize database schema: %w", err))
	}

	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
