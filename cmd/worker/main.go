package main

import (
	"context"
	"log"

	"docrag/internal/activities"
	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/logging"
	"docrag/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("build application", zap.Error(err))
	}
	defer a.Close()
	c, err := a.Temporal()
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	workflows.Register(w)
	acts, err := a.Activities()
	if err != nil {
		logger.Fatal("build activities", zap.Error(err))
	}
	activities.Register(w, acts)

	logger.Info("docrag worker listening",
		zap.String("temporal", cfg.Temporal.Address),
		zap.String("queue", cfg.Temporal.TaskQueue),
		zap.String("embed_model", a.Embedder.Model()),
	)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
