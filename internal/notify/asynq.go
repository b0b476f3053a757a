package notify

import (
	"context"
	"log/slog"

	"github.com/oslo-kindergarten/placement-engine/jobs"
)

// AsynqDispatcher hands notifications to the background queue. Enqueue
// failures are logged, never surfaced to the caller.
type AsynqDispatcher struct {
	Client *jobs.Client
	Logger *slog.Logger
}

// Notify enqueues a notification task.
func (d *AsynqDispatcher) Notify(ctx context.Context, recipientRole, templateID string, payload map[string]any) {
	if d == nil || d.Client == nil {
		return
	}
	_, err := d.Client.EnqueueNotify(ctx, jobs.NotifyPayload{
		RecipientRole: recipientRole,
		TemplateID:    templateID,
		Context:       payload,
	})
	if err != nil && d.Logger != nil {
		d.Logger.Warn("enqueue notification",
			slog.String("template_id", templateID),
			slog.Any("error", err))
	}
}
