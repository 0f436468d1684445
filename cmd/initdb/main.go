// Command initdb creates the database schema and exits. The server migrates
// on start as well; this is for provisioning a database ahead of time.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/moviecatalog/internal/config"
	"github.com/sakif/moviecatalog/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("database initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("database not reachable after migration: %w", err)
	}

	target := cfg.DBPath
	if cfg.DBDriver == config.DriverPostgres {
		target = "postgres"
	}
	logger.Info("database initialized", slog.String("driver", cfg.DBDriver), slog.String("target", target))
	return nil
}
