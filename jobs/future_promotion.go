package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskFuturePromotion activates admissions whose start date has arrived.
	TaskFuturePromotion = "admission:promote-future"
)

// FuturePromoter is the slice of the admission service the promotion job
// drives. Keeping the dependency this narrow lets domain packages enqueue
// tasks without this package importing them back.
type FuturePromoter interface {
	PromoteFutureDue(ctx context.Context, asOf time.Time) (int, error)
}

// NewFuturePromotionTask constructs an Asynq task for the nightly promotion run.
func NewFuturePromotionTask() *asynq.Task {
	return asynq.NewTask(TaskFuturePromotion, nil, asynq.Queue(QueueDefault))
}

// RunFuturePromotion moves due future admissions into active placement.
func RunFuturePromotion(ctx context.Context, svc FuturePromoter, logger *slog.Logger) error {
	if svc == nil {
		return nil
	}
	promoted, err := svc.PromoteFutureDue(ctx, time.Now().UTC())
	if err != nil {
		if logger != nil {
			logger.Error("future promotion", slog.Any("error", err))
		}
		return err
	}
	if logger != nil {
		logger.Info("future admissions promoted",
			slog.String("job", "future_promotion"),
			slog.Int("promoted", promoted))
	}
	return nil
}
