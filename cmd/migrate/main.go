package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/app"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping migrations")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	database, err := db.Open(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.VerifySchema(ctx, database); err != nil {
		logger.Error("verify schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied", slog.Int("tables", len(db.RequiredTables)))
}
