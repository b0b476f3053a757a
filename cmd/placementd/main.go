package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oslo-kindergarten/placement-engine/internal/admission"
	"github.com/oslo-kindergarten/placement-engine/internal/app"
	"github.com/oslo-kindergarten/placement-engine/internal/bulk"
	"github.com/oslo-kindergarten/placement-engine/internal/capacity"
	"github.com/oslo-kindergarten/placement-engine/internal/changerequest"
	"github.com/oslo-kindergarten/placement-engine/internal/department"
	"github.com/oslo-kindergarten/placement-engine/internal/dualplacement"
	"github.com/oslo-kindergarten/placement-engine/internal/municipal"
	"github.com/oslo-kindergarten/placement-engine/internal/notify"
	"github.com/oslo-kindergarten/placement-engine/internal/platform/cache"
	"github.com/oslo-kindergarten/placement-engine/internal/platform/db"
	"github.com/oslo-kindergarten/placement-engine/internal/registry"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
	"github.com/oslo-kindergarten/placement-engine/internal/waitlist"
	"github.com/oslo-kindergarten/placement-engine/jobs"

	"github.com/hibiken/asynq"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := cache.New(cfg.RedisAddr)
	if err := cache.Ping(ctx, redisClient); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	deadline, err := cfg.GuaranteeDeadlineTime()
	if err != nil {
		logger.Error("parse guarantee deadline", slog.Any("error", err))
		os.Exit(1)
	}
	policy := municipal.StaticPolicy{Deadline: deadline, WeeklyHours: cfg.MaxWeeklyHours}

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	notifier := &notify.AsynqDispatcher{Client: jobsClient, Logger: logger}

	ledger := capacity.NewLedger(capacity.NewPGStore(pool), cfg.ReservationTTL, logger)
	ledger.SetCache(capacity.NewReportCache(redisClient, cfg.CapacityCacheTTL))

	idempotency := shared.NewPGIdempotencyStore(pool)
	children := registry.NewPGClient(pool)
	departmentRepo := department.NewRepository(pool)
	admissionRepo := admission.NewPGRepository(pool)

	admissionService := admission.NewService(
		admissionRepo, ledger, departmentRepo, children, policy, idempotency, notifier, logger)
	prioritizer := waitlist.NewPrioritizer(admissionRepo)
	coordinator := dualplacement.NewCoordinator(
		admissionRepo, dualplacement.NewPGRepository(pool), ledger, children, policy, idempotency, logger)
	workflow := changerequest.NewWorkflow(
		changerequest.NewPGRepository(pool), admissionService, idempotency, notifier, logger)
	orchestrator := bulk.NewOrchestrator(admissionService, ledger, idempotency, notifier, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		AdmissionHandler:     admission.NewHandler(logger, admissionService),
		DepartmentHandler:    department.NewHandler(logger, departmentRepo, ledger),
		WaitlistHandler:      waitlist.NewHandler(logger, prioritizer),
		DualPlacementHandler: dualplacement.NewHandler(logger, coordinator),
		ChangeRequestHandler: changerequest.NewHandler(logger, workflow),
		BulkHandler:          bulk.NewHandler(logger, orchestrator),
	})

	// Reservation holds live in this process's ledger, so only this
	// process can sweep them.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ledger.SweepExpired(ctx)
			}
		}
	}()

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("placement engine listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
}
