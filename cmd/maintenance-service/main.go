package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostelcare/internal/access"
	"hostelcare/internal/config"
	"hostelcare/internal/httpapi"
	"hostelcare/internal/inflight"
	"hostelcare/internal/janitor"
	"hostelcare/internal/logging"
	"hostelcare/internal/photos"
	"hostelcare/internal/session"
	"hostelcare/internal/store/postgres"
	"hostelcare/internal/telemetry"
	"hostelcare/internal/workflow"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Development(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	shutdownTracing := telemetry.Setup("maintenance-service", logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	store := postgres.NewStore(pool, postgres.Options{DefaultListLimit: cfg.ListLimit})

	var guard inflight.Guard = inflight.NewMemory()
	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis connect", zap.String("address", cfg.RedisAddress), zap.Error(err))
		}
		cancel()
		guard = inflight.NewRedis(client, cfg.InflightTTL, logger)
		logger.Info("in-flight guard backed by redis", zap.String("address", cfg.RedisAddress))
	}

	photoClient := photos.NewClient(photos.Config{
		BaseURL:      cfg.StorageURL,
		ServiceKey:   cfg.StorageServiceKey,
		Bucket:       cfg.PhotoBucket,
		MaxBytes:     cfg.PhotoMaxBytes,
		MaxDimension: cfg.PhotoMaxDimension,
	}, logger)
	if cfg.StorageURL == "" {
		logger.Warn("STORAGE_URL not set, photo uploads are disabled")
	}

	aliases := access.DefaultAliases()
	if cfg.HostelAliases != "" {
		aliases = access.ParseAliases(cfg.HostelAliases)
	}
	partitioner := access.NewPartitioner(store, access.NewNormalizer(aliases))

	service := workflow.New(workflow.Deps{
		Requests:  store,
		Admins:    store,
		Sessions:  session.ContextProvider{},
		Access:    partitioner,
		Photos:    photoClient,
		Guard:     guard,
		Log:       logger,
		ListLimit: cfg.ListLimit,
	})
	cleaner := janitor.New(store, photoClient, logger.Named("janitor"))

	handler := httpapi.NewHandler(service, cleaner, logger, httpapi.Options{
		StatusPageURL:  cfg.StatusPageURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		UserPerMinute: cfg.UserRateLimitPerMinute,
		UserBurst:     cfg.UserRateLimitBurst,
		TrustProxy:    cfg.TrustProxy,
	})
	authed := httpapi.AuthMiddleware(httpapi.AuthConfig{
		Secret:        cfg.JWTSecret,
		AllowedDomain: cfg.AllowedEmailDomain,
	}, limiter.UserMiddleware(handler.Routes()))
	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(authed)), "maintenance-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("maintenance-service listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
