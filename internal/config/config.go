// Package config loads ledger-lake settings from defaults, an optional YAML
// file and LEDGER_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g. LEDGER_LOGGING_LEVEL.
const EnvPrefix = "LEDGER"

// Configuration validation errors.
var (
	ErrInvalidLogLevel     = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat    = errors.New("logging.format must be 'console' or 'json'")
	ErrInvalidExportFormat = errors.New("export.formats entries must be 'csv' or 'parquet'")
	ErrInvalidConcurrency  = errors.New("ingest.concurrency must be at least 1")
	ErrMissingProject      = errors.New("bigquery.project_id is required when bigquery.dataset_id is set")
	ErrMissingAddr         = errors.New("api.addr is required")
	ErrInvalidUploadLimit  = errors.New("api.max_upload_mb must be at least 1")
	ErrInvalidRateLimit    = errors.New("api.rate_limit_rps must not be negative")
	ErrInvalidMaxRuns      = errors.New("api.max_runs must be at least 1")
)

// Config represents the complete application configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Mapping  MappingConfig  `yaml:"mapping" envconfig:"MAPPING"`
	Ingest   IngestConfig   `yaml:"ingest" envconfig:"INGEST"`
	Export   ExportConfig   `yaml:"export" envconfig:"EXPORT"`
	GCS      GCSConfig      `yaml:"gcs" envconfig:"GCS"`
	BigQuery BigQueryConfig `yaml:"bigquery" envconfig:"BIGQUERY"`
	API      APIConfig      `yaml:"api" envconfig:"API"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// MappingConfig names the raw columns holding date, partner and amount.
// Empty names are not mapped.
type MappingConfig struct {
	Date    string `yaml:"date" envconfig:"DATE"`
	Partner string `yaml:"partner" envconfig:"PARTNER"`
	Amount  string `yaml:"amount" envconfig:"AMOUNT"`
}

// IngestConfig tunes source loading.
type IngestConfig struct {
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY"`
}

// ExportConfig controls local export files. An empty Dir disables them.
type ExportConfig struct {
	Dir     string   `yaml:"dir" envconfig:"DIR"`
	Formats []string `yaml:"formats" envconfig:"FORMATS"`
}

// GCSConfig controls uploads of export files. An empty Bucket disables them.
type GCSConfig struct {
	Bucket string `yaml:"bucket" envconfig:"BUCKET"`
	Prefix string `yaml:"prefix" envconfig:"PREFIX"`
}

// BigQueryConfig controls warehouse publishing. An empty DatasetID disables it.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id" envconfig:"PROJECT_ID"`
	DatasetID string `yaml:"dataset_id" envconfig:"DATASET_ID"`
}

// APIConfig contains HTTP server configuration.
type APIConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	AuthToken       string        `yaml:"auth_token" envconfig:"AUTH_TOKEN"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	MaxUploadMB     int64         `yaml:"max_upload_mb" envconfig:"MAX_UPLOAD_MB"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`

	// MaxRuns bounds the runs kept in memory for downloads.
	MaxRuns int `yaml:"max_runs" envconfig:"MAX_RUNS"`

	// RateLimitRPS caps POST /api/ingest across all clients. Zero disables it.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`

	// Metrics serves Prometheus metrics at /metrics.
	Metrics bool `yaml:"metrics" envconfig:"METRICS"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Mapping: MappingConfig{Date: "date", Partner: "partner", Amount: "amount"},
		Ingest:  IngestConfig{Concurrency: 4},
		Export:  ExportConfig{Formats: []string{"csv"}},
		API: APIConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			MaxUploadMB:     32,
			MaxRuns:         100,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    2,
			RateLimitBurst:  5,
			Metrics:         true,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path when
// path is non-empty, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("Load: reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return ErrInvalidLogFormat
	}

	for _, f := range c.Export.Formats {
		switch strings.ToLower(f) {
		case "csv", "parquet":
		default:
			return fmt.Errorf("%w: got %q", ErrInvalidExportFormat, f)
		}
	}

	if c.Ingest.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.BigQuery.DatasetID != "" && c.BigQuery.ProjectID == "" {
		return ErrMissingProject
	}
	if c.API.Addr == "" {
		return ErrMissingAddr
	}
	if c.API.MaxUploadMB < 1 {
		return ErrInvalidUploadLimit
	}
	if c.API.MaxRuns < 1 {
		return ErrInvalidMaxRuns
	}
	if c.API.RateLimitRPS < 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

// BigQueryEnabled reports whether warehouse publishing is configured.
func (c *Config) BigQueryEnabled() bool {
	return c.BigQuery.DatasetID != ""
}

// GCSEnabled reports whether uploads to Cloud Storage are configured.
func (c *Config) GCSEnabled() bool {
	return c.GCS.Bucket != ""
}
