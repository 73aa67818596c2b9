// Package main is the entry point for the cocktail-club API server.
//
// main stays small: load configuration, build the logger, make sure the
// SQLite directory exists, then hand everything to internal/server. All
// real logic lives in the internal packages.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sakif/cocktail-club/internal/config"
	"github.com/sakif/cocktail-club/internal/logging"
	"github.com/sakif/cocktail-club/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	// Reads .env (if present) and the environment. A missing JWT_SECRET is
	// fatal: there is no fallback signing key.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger, err := logging.New(os.Stdout, cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// The default DSN is a file under data/; create the directory like
	// `mkdir -p` so a fresh checkout starts without setup.
	if cfg.DBDriver == "sqlite" {
		if dir := sqliteDir(cfg.DBDSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Error("failed to create database directory",
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
				os.Exit(1)
			}
		}
	}

	// === 4. START ===
	// ctx is cancelled on Ctrl+C or SIGTERM, which triggers graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// sqliteDir returns the directory part of a file DSN, or "" for in-memory
// databases and bare file names.
func sqliteDir(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	if dir := filepath.Dir(path); dir != "." {
		return dir
	}
	return ""
}
