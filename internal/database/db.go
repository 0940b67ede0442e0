// internal/database/db.go
package database

import (
	"discord-video-bot/internal/models"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// Config selects and addresses the backing database.
type Config struct {
	Driver   string // postgres|sqlite
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Path     string // sqlite file
}

// DB is the persistence layer. Every method runs as its own transaction
// against the database; nothing is cached in memory.
type DB struct {
	*gorm.DB
	now func() time.Time
}

// Open connects using cfg.Driver and migrates the schema.
func Open(cfg Config) (*DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres":
		return NewDB(cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
	case "sqlite":
		return NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewDB opens a postgres database with the pgvector extension enabled.
func NewDB(host, user, password, dbname string, port int) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port)

	gormDB, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	// Enable pgvector extension
	if err := gormDB.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, err
	}

	return migrate(gormDB)
}

// NewSQLite opens (or creates) a SQLite database file.
func NewSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	gormDB, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}

	// PRAGMAs are per connection and SQLite has a single writer anyway, so
	// keep exactly one connection open for the lifetime of the DB.
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if err := gormDB.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return migrate(gormDB)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

func migrate(gormDB *gorm.DB) (*DB, error) {
	if err := gormDB.AutoMigrate(
		&models.Group{},
		&models.Reference{},
		&models.Limit{},
		&models.Usage{},
		&models.Memory{},
	); err != nil {
		return nil, err
	}

	return &DB{DB: gormDB, now: time.Now}, nil
}

// WithClock returns a copy of db that reads the current time from now.
func (db *DB) WithClock(now func() time.Time) *DB {
	return &DB{DB: db.DB, now: now}
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// IsPostgres reports whether vector similarity queries are available.
func (db *DB) IsPostgres() bool {
	return db.Dialector.Name() == "postgres"
}

// Month returns the current usage month as YYYY-MM in UTC.
func (db *DB) Month() string {
	return db.now().UTC().Format("2006-01")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
