package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursehub/database"
	"coursehub/internal/config"
	"coursehub/internal/events"
	"coursehub/internal/logger"
	"coursehub/internal/microservices/http-api/handler"
	"coursehub/internal/microservices/http-api/middleware"
	"coursehub/internal/microservices/http-api/repository"
	"coursehub/internal/microservices/http-api/service"
	"coursehub/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// 1. Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("could not build logger: %v", err)
	}
	defer zlog.Sync()
	zlog = zlog.With(zap.String("service", cfg.ServiceName))

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server_exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx := context.Background()

	// 2. Tracing
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.GoEnv,
		Mode:        cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
	}, zlog)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	// 3. Database
	db, err := database.Open(cfg, zlog)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db, cfg.DatabaseDriver, zlog); err != nil {
		return err
	}

	// 4. Stores
	store, closeStore, err := newProgressStore(ctx, cfg, db, zlog)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := newRedisClient(ctx, cfg, zlog)
	if rdb != nil {
		defer rdb.Close()
	}
	store = repository.NewCachedProgressRepository(store, rdb, cfg.CacheExpiry(), zlog)

	catalog := repository.NewCatalogRepository(db)
	users := repository.NewUserRepository(db)

	// 5. Events
	var publisher *events.Publisher
	nc, err := events.Connect(cfg.NATSURL, zlog)
	if err != nil {
		zlog.Warn("nats_unavailable", zap.Error(err))
	}
	if nc != nil {
		defer nc.Drain()
		publisher = events.NewPublisher(nc, zlog)
	} else {
		publisher = events.NewPublisher(nil, zlog)
	}

	// 6. Services
	svcCfg := service.DefaultProgressServiceConfig()
	svcCfg.Window = cfg.CoalesceWindow
	svcCfg.Workers = cfg.FlushWorkers
	svcCfg.PositionRetry = service.PositionRetry.WithAttempts(cfg.PositionRetryAttempts)
	svcCfg.CompletionRetry = service.CompletionRetry.WithAttempts(cfg.CompletionRetryAttempts)

	progressService := service.NewProgressService(store, publisher, svcCfg, zlog)
	aggregator := service.NewAggregator(store, catalog, zlog)

	// 7. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	// request bodies with unknown fields are rejected as validation errors
	binding.EnableDecoderDisallowUnknownFields = true
	readiness := map[string]handler.ReadinessCheck{
		"database": database.Ping(db),
	}
	if rdb != nil {
		readiness["cache"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	r := handler.NewRouter(handler.RouterConfig{
		ServiceName: cfg.ServiceName,
		CORSOrigins: cfg.CORSOrigins,
		Verifier:    middleware.NewTokenVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer),
		Users:       users,
		Progress:    progressService,
		Aggregator:  aggregator,
		Readiness:   readiness,
		Logger:      zlog,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		zlog.Info("http_server_starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		zlog.Info("received_shutdown_signal")
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http_shutdown_incomplete", zap.Error(err))
	}
	// buffered positions are written before the stores close
	if err := progressService.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("progress_flush_incomplete", zap.Error(err))
	}
	zlog.Info("server_stopped_gracefully")
	return nil
}

// newProgressStore picks the durable progress store from STORE_DRIVER.
func newProgressStore(ctx context.Context, cfg *config.Config, db *gorm.DB, zlog *zap.Logger) (repository.ProgressRepository, func(), error) {
	if cfg.StoreDriver != "pgx" {
		return repository.NewProgressRepository(db), func() {}, nil
	}
	pool, err := database.OpenPgxPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	zlog.Info("progress_store_selected", zap.String("driver", "pgx"))
	return repository.NewPgProgressRepository(pool), pool.Close, nil
}

// newRedisClient returns nil when the cache is disabled or unreachable; progress reads then go straight to the store.
func newRedisClient(ctx context.Context, cfg *config.Config, zlog *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Warn("redis_url_invalid", zap.Error(err))
		return nil
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	rdb := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		zlog.Warn("redis_unavailable", zap.Error(err))
		rdb.Close()
		return nil
	}
	return rdb
}
