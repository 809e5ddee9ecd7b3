package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Firmware catalog: a local file or directory, or s3://bucket/prefix
	CatalogSource string `mapstructure:"catalog-source"`

	// S3 configuration
	S3Region   string `mapstructure:"s3-region"`
	S3Endpoint string `mapstructure:"s3-endpoint"`

	// Security limits
	MaxManifestSize     int64   `mapstructure:"max-manifest-size"`
	MaxCatalogSize      int64   `mapstructure:"max-catalog-size"`
	MaxCompressionRatio float64 `mapstructure:"max-compression-ratio"`

	// Firmware query polling
	PollInterval time.Duration `mapstructure:"poll-interval"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	// Log level: debug, info, warn or error
	LogLevel string `mapstructure:"log-level"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("sqlite-path", ".artifacts/sessions.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm")
	viper.SetDefault("catalog-source", "catalog")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-endpoint", "")
	viper.SetDefault("max-manifest-size", 256*1024)
	viper.SetDefault("max-catalog-size", 8*1024*1024)
	viper.SetDefault("max-compression-ratio", 50.0)
	viper.SetDefault("poll-interval", "1s")
	viper.SetDefault("fsm-max-retries", 3)
	viper.SetDefault("log-level", "info")

	// Environment variables (will be EARLYCHECKS_SQLITE_PATH, etc.)
	viper.SetEnvPrefix("EARLYCHECKS")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.earlychecks")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.CatalogSource == "" {
		return fmt.Errorf("catalog-source cannot be empty")
	}
	if strings.HasPrefix(c.CatalogSource, "s3://") && c.S3Region == "" {
		return fmt.Errorf("s3-region cannot be empty for an s3 catalog")
	}
	if c.MaxManifestSize <= 0 {
		return fmt.Errorf("max-manifest-size must be positive")
	}
	if c.MaxCatalogSize < c.MaxManifestSize {
		return fmt.Errorf("max-catalog-size must be at least max-manifest-size")
	}
	if c.MaxCompressionRatio <= 0 {
		return fmt.Errorf("max-compression-ratio must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log-level must be one of debug, info, warn, error")
	}
	return nil
}
