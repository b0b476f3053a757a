package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/app"
	"github.com/oslo-kindergarten/placement-engine/internal/capacity"
	"github.com/oslo-kindergarten/placement-engine/internal/department"
	"github.com/oslo-kindergarten/placement-engine/internal/municipal"
	"github.com/oslo-kindergarten/placement-engine/internal/notify"
	"github.com/oslo-kindergarten/placement-engine/internal/platform/cache"
	"github.com/oslo-kindergarten/placement-engine/internal/platform/db"
	"github.com/oslo-kindergarten/placement-engine/internal/registry"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
	"github.com/oslo-kindergarten/placement-engine/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := cache.New(cfg.RedisAddr)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := cache.Ping(ctx, redisClient); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	deadline, err := cfg.GuaranteeDeadlineTime()
	if err != nil {
		logger.Error("parse guarantee deadline", slog.Any("error", err))
		os.Exit(1)
	}
	policy := municipal.StaticPolicy{Deadline: deadline, WeeklyHours: cfg.MaxWeeklyHours}

	ledger := capacity.NewLedger(capacity.NewPGStore(pool), cfg.ReservationTTL, logger)
	ledger.SetCache(capacity.NewReportCache(redisClient, cfg.CapacityCacheTTL))

	idempotency := shared.NewPGIdempotencyStore(pool)
	admissionService := admission.NewService(
		admission.NewPGRepository(pool),
		ledger,
		department.NewRepository(pool),
		registry.NewPGClient(pool),
		policy,
		idempotency,
		notify.LogDispatcher{Logger: logger},
		logger,
	)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCapacitySweep, Handler: func(ctx context.Context, t *asynq.Task) error {
				return jobs.RunCapacitySweep(ctx, ledger, idempotency, logger)
			}},
			{Type: jobs.TaskFuturePromotion, Handler: func(ctx context.Context, t *asynq.Task) error {
				return jobs.RunFuturePromotion(ctx, admissionService, logger)
			}},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "* * * * *", Task: jobs.NewCapacitySweepTask()},
			{Spec: "10 0 * * *", Task: jobs.NewFuturePromotionTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
