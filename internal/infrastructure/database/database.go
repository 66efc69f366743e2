package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// DB wraps the GORM database connection of the target store
type DB struct {
	DB     *gorm.DB
	driver string
	logger *slog.Logger
}

// Open connects to the store described by cfg. The schema is not touched;
// call Migrate for that.
func Open(ctx context.Context, cfg config.DatabaseConfig, appLogger *slog.Logger) (*DB, error) {
	if appLogger == nil {
		appLogger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN())
	default:
		dialector = sqlite.Open(sqliteDSN(cfg.Path))
	}

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.LogLevel == "debug" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, apperrors.Storage(err, "failed to connect to database")
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.Storage(err, "failed to get database instance")
	}

	if cfg.Driver == config.DriverPostgres {
		if cfg.MaxConnections > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxConnections)
		}
		if cfg.MinConnections > 0 {
			sqlDB.SetMaxIdleConns(cfg.MinConnections)
		}
		sqlDB.SetConnMaxIdleTime(30 * time.Minute)
	}

	// Ping to verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, apperrors.Storage(err, "failed to ping database")
	}

	appLogger.Debug("database connection established",
		slog.String("driver", cfg.Driver),
		slog.String("target", cfg.Target()),
	)

	return &DB{
		DB:     db,
		driver: cfg.Driver,
		logger: appLogger,
	}, nil
}

// sqliteDSN adds the connection options used for every SQLite store
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=off", path)
}

// Driver returns the configured driver name
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection
func (db *DB) Close() error {
	db.logger.Debug("closing database connection")
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Health returns health status of the database
func (db *DB) Health(ctx context.Context) map[string]interface{} {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return map[string]interface{}{
			"status": "down",
			"driver": db.driver,
			"error":  err.Error(),
		}
	}

	stats := sqlDB.Stats()

	return map[string]interface{}{
		"status":           "up",
		"driver":           db.driver,
		"max_open_conns":   stats.MaxOpenConnections,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
	}
}

// Migrate creates the store tables and indexes if they do not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	return Migrate(ctx, db.DB)
}

// Migrate creates every table and index of the store. It is idempotent and
// never drops or rewrites existing rows.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(domain.Models()...); err != nil {
		return apperrors.Storage(err, "failed to create schema")
	}
	return nil
}
