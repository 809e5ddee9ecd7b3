package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hwonboard/earlychecks/internal/config"
	"github.com/hwonboard/earlychecks/pkg/catalog"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/hwonboard/earlychecks/pkg/security"
	"github.com/hwonboard/earlychecks/pkg/storage"
)

// loadConfig loads and validates the configuration and applies the log level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err == nil {
		LogLevel.Set(level)
	}
	return cfg, nil
}

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Only needed by commands running firmware updates
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	return nil
}

func newValidator(cfg *config.Config) *security.Validator {
	return security.NewValidator(cfg.MaxManifestSize, cfg.MaxCatalogSize, cfg.MaxCompressionRatio)
}

// openCatalog loads the firmware catalog from disk or S3
func openCatalog(ctx context.Context, cfg *config.Config, validator *security.Validator) (*catalog.Catalog, error) {
	src, err := catalog.ParseSource(cfg.CatalogSource)
	if err != nil {
		return nil, err
	}

	if !src.IsS3() {
		c, err := catalog.LoadPath(src.Path, validator)
		if err != nil {
			return nil, errors.Wrap(err, "catalog load failed")
		}
		return c, nil
	}

	client, err := storage.NewClient(ctx, src.Bucket, cfg.S3Region, storage.Options{Endpoint: cfg.S3Endpoint})
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}
	c, err := catalog.LoadStore(ctx, client, src.Prefix, validator)
	if err != nil {
		return nil, errors.Wrap(err, "catalog load failed")
	}
	return c, nil
}
