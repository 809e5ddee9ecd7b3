package main

import (
	"log/slog"
	"os"

	"github.com/hwonboard/earlychecks/cmd/earlychecks/commands"
)

func main() {
	// Structured logs go to stderr; stdout carries the drawer output
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: commands.LogLevel,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
