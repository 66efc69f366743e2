package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultDatabasePath is the store file used when none is given.
	DefaultDatabasePath = "xml_data.db"
	DefaultBatchSize    = 1000
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	Database DatabaseConfig
	Ingest   IngestConfig
	Cache    CacheConfig
	Queue    QueueConfig
}

// DatabaseConfig selects and addresses the target store.
type DatabaseConfig struct {
	Driver         string `mapstructure:"DB_DRIVER"`
	Path           string `mapstructure:"DB_PATH"`
	Host           string `mapstructure:"DB_HOST"`
	Port           string `mapstructure:"DB_PORT"`
	User           string `mapstructure:"DB_USER"`
	Password       string `mapstructure:"DB_PASSWORD"`
	Name           string `mapstructure:"DB_NAME"`
	SSLMode        string `mapstructure:"DB_SSLMODE"`
	LogLevel       string `mapstructure:"DB_LOG_LEVEL"`
	MaxConnections int    `mapstructure:"DB_MAX_CONNECTIONS"`
	MinConnections int    `mapstructure:"DB_MIN_CONNECTIONS"`
}

// IngestConfig tunes a single flattening run.
type IngestConfig struct {
	BatchSize           int     `mapstructure:"INGEST_BATCH_SIZE"`
	PreScan             bool    `mapstructure:"INGEST_PRESCAN"`
	MaxFileSizeMB       int64   `mapstructure:"INGEST_MAX_FILE_SIZE_MB"`
	IdenticalPercentage float64 `mapstructure:"INGEST_IDENTICAL_PERCENTAGE"`
}

// CacheConfig points at the Redis instance that receives run progress.
type CacheConfig struct {
	Enabled            bool   `mapstructure:"REDIS_PROGRESS_ENABLED"`
	Host               string `mapstructure:"REDIS_HOST"`
	Port               string `mapstructure:"REDIS_PORT"`
	Password           string `mapstructure:"REDIS_PASSWORD"`
	DB                 int    `mapstructure:"REDIS_DB"`
	ProgressTTLMinutes int    `mapstructure:"REDIS_PROGRESS_TTL_MINUTES"`
}

// QueueConfig configures the asynq client and worker.
type QueueConfig struct {
	RedisHost     string `mapstructure:"QUEUE_REDIS_HOST"`
	RedisPort     string `mapstructure:"QUEUE_REDIS_PORT"`
	RedisPassword string `mapstructure:"QUEUE_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"QUEUE_REDIS_DB"`
	Concurrency   int    `mapstructure:"QUEUE_CONCURRENCY"`
	MaxRetries    int    `mapstructure:"QUEUE_MAX_RETRIES"`
}

// DefaultIngestConfig returns the settings used when nothing is configured.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		BatchSize:           DefaultBatchSize,
		PreScan:             true,
		IdenticalPercentage: 100,
	}
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	return LoadWith(viper.GetViper())
}

// LoadWith loads configuration from v, which may already carry bound flags.
func LoadWith(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Configuration(fmt.Sprintf("failed to read .env: %v", err))
	}

	SetDefaults(v)
	v.AutomaticEnv()

	config := &Config{
		Environment: v.GetString("ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
	}

	config.Database = DatabaseConfig{
		Driver:         strings.ToLower(v.GetString("DB_DRIVER")),
		Path:           v.GetString("DB_PATH"),
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetString("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSLMODE"),
		LogLevel:       v.GetString("DB_LOG_LEVEL"),
		MaxConnections: v.GetInt("DB_MAX_CONNECTIONS"),
		MinConnections: v.GetInt("DB_MIN_CONNECTIONS"),
	}

	config.Ingest = IngestConfig{
		BatchSize:           v.GetInt("INGEST_BATCH_SIZE"),
		PreScan:             v.GetBool("INGEST_PRESCAN"),
		MaxFileSizeMB:       v.GetInt64("INGEST_MAX_FILE_SIZE_MB"),
		IdenticalPercentage: v.GetFloat64("INGEST_IDENTICAL_PERCENTAGE"),
	}

	config.Cache = CacheConfig{
		Enabled:            v.GetBool("REDIS_PROGRESS_ENABLED"),
		Host:               v.GetString("REDIS_HOST"),
		Port:               v.GetString("REDIS_PORT"),
		Password:           v.GetString("REDIS_PASSWORD"),
		DB:                 v.GetInt("REDIS_DB"),
		ProgressTTLMinutes: v.GetInt("REDIS_PROGRESS_TTL_MINUTES"),
	}

	config.Queue = QueueConfig{
		RedisHost:     v.GetString("QUEUE_REDIS_HOST"),
		RedisPort:     v.GetString("QUEUE_REDIS_PORT"),
		RedisPassword: v.GetString("QUEUE_REDIS_PASSWORD"),
		RedisDB:       v.GetInt("QUEUE_REDIS_DB"),
		Concurrency:   v.GetInt("QUEUE_CONCURRENCY"),
		MaxRetries:    v.GetInt("QUEUE_MAX_RETRIES"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	// Database defaults
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", DefaultDatabasePath)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "dupflatten")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_LOG_LEVEL", "silent")
	v.SetDefault("DB_MAX_CONNECTIONS", 10)
	v.SetDefault("DB_MIN_CONNECTIONS", 1)

	// Ingest defaults
	v.SetDefault("INGEST_BATCH_SIZE", DefaultBatchSize)
	v.SetDefault("INGEST_PRESCAN", true)
	v.SetDefault("INGEST_MAX_FILE_SIZE_MB", 0)
	v.SetDefault("INGEST_IDENTICAL_PERCENTAGE", 100.0)

	// Redis defaults
	v.SetDefault("REDIS_PROGRESS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PROGRESS_TTL_MINUTES", 60)

	// Queue defaults
	v.SetDefault("QUEUE_REDIS_HOST", "localhost")
	v.SetDefault("QUEUE_REDIS_PORT", "6379")
	v.SetDefault("QUEUE_REDIS_DB", 0)
	v.SetDefault("QUEUE_CONCURRENCY", 1)
	v.SetDefault("QUEUE_MAX_RETRIES", 3)
}

// Validate rejects settings that would make a run fail after I/O started.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	if c.Queue.Concurrency < 1 {
		return apperrors.Configuration("QUEUE_CONCURRENCY must be at least 1").
			WithDetails("concurrency", c.Queue.Concurrency)
	}
	return nil
}

// Validate checks the driver and the fields it needs.
func (c DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return apperrors.Configuration("target store path is required")
		}
	case DriverPostgres:
		if c.Host == "" || c.Name == "" {
			return apperrors.Configuration("DB_HOST and DB_NAME are required for postgres")
		}
		if c.User == "" {
			return apperrors.Configuration("DB_USER is required for postgres")
		}
	default:
		return apperrors.Configuration(fmt.Sprintf("unsupported database driver %q", c.Driver)).
			WithDetails("driver", c.Driver)
	}
	return nil
}

// Validate checks the run parameters.
func (c IngestConfig) Validate() error {
	if c.BatchSize < 1 {
		return apperrors.Configuration("batch size must be a positive integer").
			WithDetails("batch_size", c.BatchSize)
	}
	if c.MaxFileSizeMB < 0 {
		return apperrors.Configuration("max file size must not be negative")
	}
	if c.IdenticalPercentage <= 0 || c.IdenticalPercentage > 100 {
		return apperrors.Configuration("identical percentage must be in (0, 100]").
			WithDetails("identical_percentage", c.IdenticalPercentage)
	}
	return nil
}

// DSN constructs the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Target describes the store for log lines without exposing credentials.
func (c DatabaseConfig) Target() string {
	if c.Driver == DriverPostgres {
		return fmt.Sprintf("postgres://%s:%s/%s", c.Host, c.Port, c.Name)
	}
	return c.Path
}

// Addr returns the host:port of the progress cache.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Addr returns the host:port of the queue broker.
func (c QueueConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LogConfig logs the configuration (hiding sensitive data)
func (c *Config) LogConfig(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	password := "[NOT SET]"
	if c.Database.Password != "" {
		password = "[CONFIGURED]"
	}

	logger.Info("configuration loaded",
		slog.String("environment", c.Environment),
		slog.String("db_driver", c.Database.Driver),
		slog.String("db_target", c.Database.Target()),
		slog.String("db_password", password),
		slog.Int("batch_size", c.Ingest.BatchSize),
		slog.Bool("prescan", c.Ingest.PreScan),
		slog.Bool("progress_cache", c.Cache.Enabled),
		slog.String("queue", c.Queue.Addr()),
	)
}
