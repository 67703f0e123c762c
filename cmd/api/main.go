package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kai-Ger/CardGallery/internal/api"
	"github.com/Kai-Ger/CardGallery/internal/config"
	"github.com/Kai-Ger/CardGallery/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.NewDefault(cfg.App.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, cfg, log)
	if err != nil {
		log.Error("init server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer server.Close()

	if err := server.SeedAdmin(ctx); err != nil {
		log.Error("seed admin failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := server.Run(ctx); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped")
}
