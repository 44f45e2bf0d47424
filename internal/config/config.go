package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"

	"github.com/adamrehn/ClimateQuery/pkg/database"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
)

// Config is the application configuration, read from the environment
type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Store    StoreConfig    `envPrefix:"STORE_"`
	Data     DataConfig     `envPrefix:"DATA_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
}

type ServerConfig struct {
	Host         string        `env:"HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10m"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig locates the catalog index store. Dataset stores are always sqlite files.
type DatabaseConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	// Path defaults to catalog.sqlite inside the data directory
	Path            string        `env:"PATH"`
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER" envDefault:"climatequery"`
	Password        string        `env:"PASSWORD"`
	Database        string        `env:"NAME" envDefault:"climatequery"`
	SSLMode         string        `env:"SSL_MODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
}

type StoreConfig struct {
	MaxParams         int `env:"MAX_PARAMS" envDefault:"999"`
	InsertConcurrency int `env:"INSERT_CONCURRENCY" envDefault:"4"`
	InferenceWindow   int `env:"INFERENCE_WINDOW" envDefault:"10"`
}

type DataConfig struct {
	Dir string `env:"DIR,expand" envDefault:"${HOME}/.config/ClimateQuery"`
	// StrayAge is how long an unreferenced backing store is left alone before it is removed
	StrayAge time.Duration `env:"STRAY_AGE" envDefault:"24h"`
}

type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type MetricsConfig struct {
	Namespace string `env:"NAMESPACE" envDefault:"climatequery"`
}

// LoadConfig reads an optional .env file from the working directory, then the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, wrap.Error(err, "failed to load .env file")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, wrap.Error(err, "failed to parse environment variables")
	}

	return &cfg, nil
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, wrap.Errorf(errInvalid, "SERVER_PORT %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case database.DriverSQLite:
	case database.DriverPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			errs = append(errs, wrap.Error(errInvalid, "DB_HOST and DB_NAME are required for the postgres driver"))
		}
	default:
		errs = append(errs, wrap.Errorf(errInvalid, "unsupported DB_DRIVER %q", c.Database.Driver))
	}

	if c.Store.MaxParams < 1 {
		errs = append(errs, wrap.Error(errInvalid, "STORE_MAX_PARAMS must be positive"))
	}
	if c.Store.InsertConcurrency < 1 {
		errs = append(errs, wrap.Error(errInvalid, "STORE_INSERT_CONCURRENCY must be positive"))
	}
	if c.Store.InferenceWindow < 1 {
		errs = append(errs, wrap.Error(errInvalid, "STORE_INFERENCE_WINDOW must be positive"))
	}

	if c.Data.Dir == "" {
		errs = append(errs, wrap.Error(errInvalid, "DATA_DIR must be set"))
	}
	if c.Data.StrayAge < 0 {
		errs = append(errs, wrap.Error(errInvalid, "DATA_STRAY_AGE must not be negative"))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, wrap.Error(err, "invalid LOG_LEVEL"))
	}
	switch logging.Format(c.Logging.Format) {
	case logging.FormatJSON, logging.FormatDev:
	default:
		errs = append(errs, wrap.Errorf(errInvalid, "unsupported LOG_FORMAT %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return wrap.Errors("invalid configuration", errs...)
	}
	return nil
}

var errInvalid = errors.New("invalid value")

// StoreOptions converts the store section for pkg/database
func (c *Config) StoreOptions() database.StoreOptions {
	return database.StoreOptions{
		MaxParams:         c.Store.MaxParams,
		InsertConcurrency: c.Store.InsertConcurrency,
		InferenceWindow:   c.Store.InferenceWindow,
	}
}

// DatabaseConfig returns the connection settings for the catalog index
func (c *Config) DatabaseConfig() *database.Config {
	path := c.Database.Path
	if path == "" {
		path = filepath.Join(c.Data.Dir, "catalog.sqlite")
	}

	return &database.Config{
		Driver:          c.Database.Driver,
		Path:            path,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		Store:           c.StoreOptions(),
	}
}

// DatasetsDir is where dataset stores are written
func (c *Config) DatasetsDir() string {
	return filepath.Join(c.Data.Dir, "datasets")
}

// NewLogger builds the structured logger described by the logging section
func (c *Config) NewLogger(service, version string) *logging.StructuredLogger {
	level, _ := logging.ParseLevel(c.Logging.Level)
	logger := logging.NewStructuredLogger(service, version, level)
	logger.SetFormat(logging.Format(c.Logging.Format))
	return logger
}
