// Package notify dispatches fire-and-forget notifications after
// notify-worthy state transitions. Content generation and transport are
// external; only dispatch is implemented here.
package notify

import (
	"context"
	"log/slog"
)

// Recipient roles known to the notification templates.
const (
	RoleGuardian   = "guardian"
	RoleCaseworker = "caseworker"
)

// Template identifiers consumed by the dispatch collaborator.
const (
	TemplateTerminated        = "admission_terminated"
	TemplateWaitlistPromotion = "waitlist_promotion"
	TemplateChangeResolved    = "change_request_resolved"
	TemplateBulkNotice        = "bulk_notice"
)

// Dispatcher hands a notification to the delivery collaborator without
// awaiting delivery confirmation.
type Dispatcher interface {
	Notify(ctx context.Context, recipientRole, templateID string, payload map[string]any)
}

// LogDispatcher records dispatches to the log. Used when no queue is
// configured and in tests.
type LogDispatcher struct {
	Logger *slog.Logger
}

// Notify logs the dispatch.
func (d LogDispatcher) Notify(ctx context.Context, recipientRole, templateID string, payload map[string]any) {
	if d.Logger == nil {
		return
	}
	d.Logger.Info("notification dispatched",
		slog.String("recipient_role", recipientRole),
		slog.String("template_id", templateID),
		slog.Any("context", payload))
}

// NopDispatcher drops all notifications.
type NopDispatcher struct{}

// Notify does nothing.
func (NopDispatcher) Notify(context.Context, string, string, map[string]any) {}
