package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"garagecall_backend/internal/adapters/storage"
	"garagecall_backend/internal/analysis"
	callrepo "garagecall_backend/internal/calls/repository"
	"garagecall_backend/internal/calls/safety"
	callsvc "garagecall_backend/internal/calls/service"
	"garagecall_backend/internal/events"
	"garagecall_backend/internal/notification"
	"garagecall_backend/internal/report"
	"garagecall_backend/internal/scheduler"
	"garagecall_backend/internal/sessions"
	"garagecall_backend/internal/voice"
	"garagecall_backend/platform/config"
	"garagecall_backend/platform/db"
	"garagecall_backend/platform/logger"
	"garagecall_backend/platform/validator"
)

// sweepInterval is how often the stuck-session sweep scans for sessions
// hung in CALLING.
const sweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "queue", cfg.AsynqQueueName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer taskClient.Close()

	// The worker reads photos during analysis but never issues upload URLs.
	var fetcher analysis.PhotoFetcher
	if cfg.IsMinIOEnabled() {
		photoStore, err := storage.NewPhotoStore(cfg)
		if err != nil {
			log.Error("failed to initialize photo storage", "error", err)
			panic("failed to initialize photo storage: " + err.Error())
		}
		fetcher = photoStore
	}

	analyzer, err := analysis.NewAnalyzer(ctx, cfg, fetcher, log)
	if err != nil {
		log.Error("failed to initialize damage analyzer", "error", err)
		panic("failed to initialize damage analyzer: " + err.Error())
	}

	gate := safety.New(safety.Config{
		DemoMode:  cfg.GetDemoMode(),
		AllowList: cfg.GetDemoToNumbers(),
		Strategy:  safety.Strategy(cfg.GetDemoNumberStrategy()),
		Strict:    cfg.GetScopeCallsToDemoList(),
	}, log)

	callRepo := callrepo.New(pool)
	dispatcher := callsvc.NewDispatcher(gate, callRepo, voice.NewClient(cfg), eventBus, log)
	dispatcher.SetOutboundDisabled(!cfg.GetAllowOutboundCalls())

	sessionsModule := sessions.NewModule(pool, analyzer, dispatcher, nil, taskClient, eventBus, val, log)
	aggregator := callsvc.NewAggregator(callRepo, sessionsModule.Repository(), taskClient, eventBus, log)
	sessionsModule.SetCompletionEvaluator(aggregator)

	synthesizer, err := report.NewSynthesizer(ctx, cfg, sessionsModule.Repository(), callRepo, eventBus, log)
	if err != nil {
		log.Error("failed to initialize report synthesizer", "error", err)
		panic("failed to initialize report synthesizer: " + err.Error())
	}

	notificationModule := notification.NewModule(cfg, notification.NewSMTPSender(cfg), sessionsModule.Repository(), log)
	notificationModule.RegisterHandlers(eventBus)

	sweep := scheduler.NewStuckSessionSweep(sessionsModule.Repository(), callRepo, aggregator, log, sweepInterval, cfg.GetStuckSessionAge())
	go sweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, sessionsModule.Service(), synthesizer, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
