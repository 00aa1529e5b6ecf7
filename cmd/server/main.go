// Package main is the entry point for the MaxedCV auth server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (defaults, optional YAML file, env vars)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/service, etc.).
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// Each executable gets its own directory with its own main.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/maxed-cv/internal/config"
	"github.com/sakif/maxed-cv/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.Load applies defaults, then CONFIG_FILE (YAML), then env vars,
	// and validates the result. A bad config is fatal before anything opens.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Text logs for humans in development, JSON for log shippers in production.
	// LOG_LEVEL picks the floor: debug → info → warn → error.
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	// server.New opens the database, Redis, and the OAuth providers.
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With(slog.String("service", "maxedcv")), nil
}
