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
	// viper config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// serve API + consume refresh signals
	if err := app.RunAPI(ctx, cfg, log); err != nil {
		log.Fatal("api server failed", zap.Error(err))
	}
}
