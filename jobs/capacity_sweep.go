package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/oslo-kindergarten/placement-engine/internal/capacity"
	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

const (
	// TaskCapacitySweep reclaims expired capacity reservations.
	TaskCapacitySweep = "capacity:sweep"
)

// NewCapacitySweepTask constructs an Asynq task for the periodic sweep.
func NewCapacitySweepTask() *asynq.Task {
	return asynq.NewTask(TaskCapacitySweep, nil, asynq.Queue(QueueDefault))
}

// RunCapacitySweep releases reservations past their TTL and prunes stale
// idempotency keys. Reservation holds live in the ledger's process
// memory, so this run only reclaims holds placed by ledgers in the
// worker process; the API process runs its own in-process sweep for the
// holds its handlers place. The idempotency cleanup is shared, the
// store is Postgres-backed.
func RunCapacitySweep(ctx context.Context, ledger *capacity.Ledger, store shared.IdempotencyStore, logger *slog.Logger) error {
	if ledger == nil {
		return nil
	}
	released := ledger.SweepExpired(ctx)
	if released > 0 && logger != nil {
		logger.Info("reclaimed expired reservations",
			slog.String("job", "capacity_sweep"),
			slog.Int("released", released))
	}
	if store != nil {
		if err := store.Cleanup(ctx, 24*time.Hour); err != nil {
			if logger != nil {
				logger.Warn("idempotency cleanup", slog.Any("error", err))
			}
			return err
		}
	}
	return nil
}
