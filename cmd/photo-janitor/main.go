package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hostelcare/internal/config"
	"hostelcare/internal/janitor"
	"hostelcare/internal/logging"
	"hostelcare/internal/photos"
	"hostelcare/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single cleanup pass and exit")
	flag.Parse()

	cfg := config.Load()
	logger, err := logging.New(cfg.Development(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		logger.Fatal("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	store := postgres.NewStore(pool, postgres.Options{DefaultListLimit: cfg.ListLimit})
	photoClient := photos.NewClient(photos.Config{
		BaseURL:    cfg.StorageURL,
		ServiceKey: cfg.StorageServiceKey,
		Bucket:     cfg.PhotoBucket,
	}, logger)
	cleaner := janitor.New(store, photoClient, logger)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CleanupTimeout)
		defer cancel()
		cleaner.Run(ctx)
		return
	}

	scheduler, err := janitor.Schedule(cfg.CleanupSchedule, cfg.CleanupTimeout, cleaner)
	if err != nil {
		logger.Fatal("schedule cleanup", zap.Error(err))
	}
	scheduler.Start()
	logger.Info("photo janitor started", zap.String("schedule", cfg.CleanupSchedule), zap.Duration("timeout", cfg.CleanupTimeout))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	<-scheduler.Stop().Done()
	logger.Info("photo janitor stopped")
}
