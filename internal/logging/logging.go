// Package logging wires the process-wide slog logger for the CLI.
// Library packages only emit through slog; they never configure it.
package logging

import (
	"log/slog"
	"os"
)

// Configure installs the process-wide slog default logger writing text
// records to stderr. The CLI is quiet by default and surfaces only
// warnings; debug opens the full stream.
func Configure(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}
