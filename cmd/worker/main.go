package main

import (
	"context"
	"os/signal"
	"syscall"

	"cryptostats/config"
	"cryptostats/internal/app"
	"cryptostats/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// publish refresh signals on schedule
	if err := app.RunWorker(ctx, cfg, log.Named("worker")); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}
