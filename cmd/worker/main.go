// Package main is the entry point for the progression engine worker.
//
// The worker owns the background side of the engine: draining the reward
// outbox into the ledger, purging expired dedup entries, auditing at-risk
// streaks at day rollover, and delivering unlock notifications to the
// configured webhook receiver.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tastebook/progression-engine/config"
	"github.com/tastebook/progression-engine/internal/application/command"
	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/infrastructure/external/webhook"
	"github.com/tastebook/progression-engine/internal/infrastructure/messaging"
	"github.com/tastebook/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/tastebook/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/tastebook/progression-engine/internal/infrastructure/scheduler"
	"github.com/tastebook/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/tastebook/progression-engine/internal/infrastructure/service"
	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Logging and the canonical day boundary
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	}).With(logger.Component("worker"))

	log.Info("starting progression engine worker",
		logger.String("environment", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("day_boundary_tz", cfg.App.DayBoundaryTZ))

	timeutil.SetCanonicalZone(cfg.App.Location)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Redis
	// ─────────────────────────────────────────────────────────────────────────
	cache, err := newCache(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cache.Close()

	dedup := redis.NewDedupIndex(cache)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Achievement catalog
	// ─────────────────────────────────────────────────────────────────────────
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("failed to load achievement catalog: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Event bus
	// ─────────────────────────────────────────────────────────────────────────
	localBus := messaging.NewInMemoryEventBus(0, log)

	var bus shared.EventBus = localBus
	if cfg.Redis.EnableEventBus {
		redisBus := messaging.NewRedisEventBus(cache, localBus, cfg.Redis.EventChannel, log)
		if err := redisBus.Start(); err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		bus = redisBus
		log.Info("redis event bus enabled", logger.String("channel", cfg.Redis.EventChannel))
	}
	defer bus.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. Reward dispatch
	// ─────────────────────────────────────────────────────────────────────────
	streakRepo := postgres.NewStreakRepo(dbConn)
	ledgerRepo := postgres.NewLedgerRepo(dbConn)
	outboxRepo := postgres.NewOutboxRepo(dbConn)

	dispatchReward := command.NewDispatchRewardHandler(
		catalog, ledgerRepo, bus, log, command.DefaultMilestonePoints())

	// ─────────────────────────────────────────────────────────────────────────
	// 8. Outbound notifications
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Notifier.Endpoint != "" {
		clientCfg := webhook.DefaultClientConfig(cfg.Notifier.Endpoint)
		clientCfg.Secret = cfg.Notifier.Secret
		clientCfg.Timeout = cfg.Notifier.RequestTimeout
		clientCfg.RateLimiterConfig.RequestsPerSecond = cfg.Notifier.RateLimit
		clientCfg.RateLimiterConfig.BurstSize = cfg.Notifier.RateLimitBurst
		clientCfg.Logger = log

		notifier := service.NewNotifier(webhook.NewClient(clientCfg), log)

		dispatcher := messaging.NewDispatcher(bus, log,
			messaging.RecoveryMiddleware(),
			messaging.LoggingMiddleware(log))
		if err := dispatcher.Register(messaging.HandlerRegistration{
			Name:      "unlock_notifier",
			EventType: shared.EventUnlockNotification,
			Handler:   notifier.HandleEvent,
		}); err != nil {
			return fmt.Errorf("failed to register notifier: %w", err)
		}
		log.Info("unlock notifier registered", logger.String("endpoint", cfg.Notifier.Endpoint))
	} else {
		log.Info("NOTIFIER_ENDPOINT not set, outbound notifications disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. Scheduler and jobs
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	drainJob := jobs.NewDrainOutboxJob(outboxRepo, dispatchReward, log, jobs.DrainOutboxConfig{
		BatchSize:   cfg.Rewards.DrainBatchSize,
		MaxAttempts: cfg.Rewards.MaxAttempts,
		Timeout:     cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(drainJob, scheduler.NewIntervalSchedule(cfg.Rewards.DrainInterval)); err != nil {
		return fmt.Errorf("failed to register drain job: %w", err)
	}

	purgeJob := jobs.NewPurgeDedupJob(dedup, cfg.Gateway.DedupTTL, log)
	if err := sched.Register(purgeJob, scheduler.NewIntervalSchedule(cfg.Scheduler.PurgeInterval)); err != nil {
		return fmt.Errorf("failed to register purge job: %w", err)
	}

	rolloverCron, err := scheduler.ParseCronExpression(cfg.Scheduler.RolloverCron)
	if err != nil {
		return fmt.Errorf("invalid SCHEDULER_ROLLOVER_CRON %q: %w", cfg.Scheduler.RolloverCron, err)
	}
	rolloverJob := jobs.NewDayRolloverJob(streakRepo, cfg.Scheduler.AtRiskLimit, log)
	if err := sched.Register(rolloverJob, rolloverCron); err != nil {
		return fmt.Errorf("failed to register rollover job: %w", err)
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("scheduler started",
			logger.String("drain_interval", cfg.Rewards.DrainInterval.String()),
			logger.String("purge_interval", cfg.Scheduler.PurgeInterval.String()),
			logger.String("rollover_cron", cfg.Scheduler.RolloverCron))
	} else {
		log.Warn("scheduler disabled, background jobs will not run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. Wait for shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if sched.IsRunning() {
		if err := sched.Stop(); err != nil {
			log.Error("scheduler stop failed", logger.Err(err))
		}
	}

	log.Info("progression engine worker stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BOOTSTRAP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func newCache(cfg *config.Config) (*redis.Cache, error) {
	redisCfg := redis.DefaultConfig()
	if cfg.Redis.URL != "" {
		parsed, err := redis.ConfigFromURL(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		redisCfg = parsed
	} else {
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
	}
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	return redis.NewCache(redisCfg)
}

func loadCatalog(cfg *config.Config) (*achievement.Catalog, error) {
	if cfg.Catalog.File != "" {
		return achievement.LoadCatalogFile(cfg.Catalog.File)
	}
	return achievement.DefaultCatalog(), nil
}
