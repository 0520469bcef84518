// Package main is the entry point for the nail art API. One binary serves
// the HTTP API, runs dedicated task workers, applies migrations and exposes
// the maintenance triggers as one-shot commands.
package main

import (
	"log/slog"
	"os"

	"github.com/phrazzld/nailart-api/internal/redact"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("command failed", "error", redact.Error(err))
		os.Exit(1)
	}
}
