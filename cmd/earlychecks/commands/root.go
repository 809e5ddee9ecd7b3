package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LogLevel is the level of the default logger, set from --log-level
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "earlychecks",
	Short: "Early security checks for hardware wallet onboarding",
	Long: `Runs the genuine check and the firmware update check of a device before
its setup, records every session, and resolves firmware from a catalog kept
on disk or in S3.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/sessions.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm", "FSM database directory")
	rootCmd.PersistentFlags().String("catalog-source", "catalog", "Firmware catalog: manifest file, directory or s3://bucket/prefix")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 compatible endpoint")
	rootCmd.PersistentFlags().Int64("max-manifest-size", 256*1024, "Max manifest size in bytes")
	rootCmd.PersistentFlags().Int64("max-catalog-size", 8*1024*1024, "Max total catalog size in bytes")
	rootCmd.PersistentFlags().Float64("max-compression-ratio", 50.0, "Max compression ratio of gzip manifests")
	rootCmd.PersistentFlags().Duration("poll-interval", time.Second, "Device info polling interval")
	rootCmd.PersistentFlags().Int("fsm-max-retries", 3, "Max retries per firmware update state")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	for _, name := range []string{
		"sqlite-path", "fsm-db-path", "catalog-source", "s3-region", "s3-endpoint",
		"max-manifest-size", "max-catalog-size", "max-compression-ratio",
		"poll-interval", "fsm-max-retries", "log-level",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}
