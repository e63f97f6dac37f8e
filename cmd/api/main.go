package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"garagecall_backend/internal/adapters/storage"
	"garagecall_backend/internal/analysis"
	callrepo "garagecall_backend/internal/calls/repository"
	"garagecall_backend/internal/calls/safety"
	callsvc "garagecall_backend/internal/calls/service"
	"garagecall_backend/internal/demo"
	"garagecall_backend/internal/events"
	apphttp "garagecall_backend/internal/http"
	"garagecall_backend/internal/http/router"
	"garagecall_backend/internal/notification"
	"garagecall_backend/internal/scheduler"
	"garagecall_backend/internal/sessions"
	"garagecall_backend/internal/uploads"
	"garagecall_backend/internal/voice"
	"garagecall_backend/internal/webhook"
	"garagecall_backend/platform/config"
	"garagecall_backend/platform/db"
	"garagecall_backend/platform/logger"
	"garagecall_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "demoMode", cfg.DemoMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer taskClient.Close()

	// Optional photo storage. Sessions work without it; analysis then runs
	// on the text description alone.
	var photoStore *storage.PhotoStore
	if cfg.IsMinIOEnabled() {
		photoStore, err = storage.NewPhotoStore(cfg)
		if err != nil {
			log.Error("failed to initialize photo storage", "error", err)
			panic("failed to initialize photo storage: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure photo bucket", 5, 2*time.Second, func() error {
			return photoStore.EnsureBucketExists(ctx)
		}); err != nil {
			log.Error("failed to ensure photo bucket exists", "error", err)
			panic("failed to ensure photo bucket exists: " + err.Error())
		}
		log.Info("photo storage initialized", "bucket", cfg.GetMinioBucketDamagePhotos())
	} else {
		log.Warn("MinIO not configured; photo uploads disabled")
	}

	// ========================================================================
	// Domain Wiring (Composition Root)
	// ========================================================================

	gate := safety.New(safety.Config{
		DemoMode:  cfg.GetDemoMode(),
		AllowList: cfg.GetDemoToNumbers(),
		Strategy:  safety.Strategy(cfg.GetDemoNumberStrategy()),
		Strict:    cfg.GetScopeCallsToDemoList(),
	}, log)

	voiceClient := voice.NewClient(cfg)
	callRepo := callrepo.New(pool)

	dispatcher := callsvc.NewDispatcher(gate, callRepo, voiceClient, eventBus, log)
	dispatcher.SetOutboundDisabled(!cfg.GetAllowOutboundCalls())

	var fetcher analysis.PhotoFetcher
	if photoStore != nil {
		fetcher = photoStore
	}
	analyzer, err := analysis.NewAnalyzer(ctx, cfg, fetcher, log)
	if err != nil {
		log.Error("failed to initialize damage analyzer", "error", err)
		panic("failed to initialize damage analyzer: " + err.Error())
	}

	sessionsModule := sessions.NewModule(pool, analyzer, dispatcher, nil, taskClient, eventBus, val, log)
	aggregator := callsvc.NewAggregator(callRepo, sessionsModule.Repository(), taskClient, eventBus, log)
	sessionsModule.SetCompletionEvaluator(aggregator)

	webhookModule := webhook.NewModule(cfg, aggregator, newDedupeRedis(cfg, log), log)

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.NewModule(cfg, notification.NewSMTPSender(cfg), sessionsModule.Repository(), log)
	notificationModule.RegisterHandlers(eventBus)

	modules := []apphttp.Module{
		sessionsModule,
		webhookModule,
	}

	if photoStore != nil {
		modules = append(modules, uploads.NewModule(photoStore, val))
	}

	if cfg.GetDemoShopsFile() != "" {
		directory, err := demo.LoadDirectory(cfg.GetDemoShopsFile())
		if err != nil {
			log.Error("failed to load demo shop directory", "error", err, "file", cfg.GetDemoShopsFile())
			panic("failed to load demo shop directory: " + err.Error())
		}
		modules = append(modules, demo.NewModule(directory))
		if cfg.GetDemoMode() {
			sessionsModule.SetShopDirectory(directory)
		}
		log.Info("demo shop directory loaded", "file", cfg.GetDemoShopsFile(), "shops", len(directory.Shops()))
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules:  modules,
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// newDedupeRedis builds the redis client backing webhook event dedupe. It is
// optional: without Redis the webhook handler still behaves correctly, it
// just reprocesses redelivered events.
func newDedupeRedis(cfg config.SchedulerConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; webhook dedupe disabled")
		return nil
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Warn("invalid REDIS_URL; webhook dedupe disabled", "error", err)
		return nil
	}
	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
