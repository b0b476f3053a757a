package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotify is the task type for outbound guardian and caseworker notices.
	TaskTypeNotify = "notify:send"
)

// NotifyPayload describes a single outbound notification.
type NotifyPayload struct {
	RecipientRole string         `json:"recipient_role"`
	TemplateID    string         `json:"template_id"`
	Context       map[string]any `json:"context,omitempty"`
}

// NewNotifyTask constructs an Asynq task.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}

// HandleNotifyTask processes TaskTypeNotify tasks.
func HandleNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: hand off to the municipal message gateway in phase 2.
	fmt.Printf("[jobs] notify role=%s template=%s\n", payload.RecipientRole, payload.TemplateID)
	return nil
}
