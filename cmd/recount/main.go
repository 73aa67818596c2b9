// Command recount resets every like and bookmark counter to the number of
// edge rows behind it. It is safe to run repeatedly and while the server
// is serving traffic; each kind is corrected in its own statement.
//
// Usage:
//
//	go run ./cmd/recount
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/cocktail-club/internal/config"
	"github.com/sakif/cocktail-club/internal/logging"
	"github.com/sakif/cocktail-club/internal/metrics"
	"github.com/sakif/cocktail-club/internal/repository/sqldb"
	"github.com/sakif/cocktail-club/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger, err := logging.New(os.Stderr, cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("recount failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	dialect, err := sqldb.ParseDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	db, err := sqldb.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	corrected, err := service.NewEdgeService(db, metrics.New(), logger).Recount(ctx)
	if err != nil {
		return err
	}
	var total int64
	for _, n := range corrected {
		total += n
	}
	logger.Info("recount finished", slog.Int64("corrected", total))
	return nil
}
