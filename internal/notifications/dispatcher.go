package notifications

import (
	"context"
	"encoding/json"

	"docket/internal/middleware"
	"docket/internal/models"
	"docket/internal/observability"
	"docket/internal/repository"
)

// Event is the JSON frame pushed to websocket clients.
type Event struct {
	Type    string               `json:"type"`
	Payload *models.Notification `json:"payload"`
}

// Dispatcher persists a notification and then pushes it to the recipient's live connections.
// Delivery is best effort: failures are logged and counted, never returned to the workflow.
type Dispatcher struct {
	repo     repository.NotificationRepository
	notifier *Notifier
	local    *Hub
}

// NewDispatcher wires persistence and delivery. When notifier has no Redis client, events go
// straight to the local hub (single-instance deployments).
func NewDispatcher(repo repository.NotificationRepository, notifier *Notifier, local *Hub) *Dispatcher {
	return &Dispatcher{repo: repo, notifier: notifier, local: local}
}

// Notify stores n and publishes it.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) {
	if err := d.repo.Create(ctx, &n); err != nil {
		observability.NotificationFailures.WithLabelValues("persist").Inc()
		middleware.Logger.ErrorContext(ctx, "failed to persist notification",
			"user_id", n.UserID, "type", n.Type, "error", err)
		return
	}

	frame, err := json.Marshal(Event{Type: "notification", Payload: &n})
	if err != nil {
		observability.NotificationFailures.WithLabelValues("encode").Inc()
		return
	}

	if d.notifier.Enabled() {
		if err := d.notifier.PublishUser(ctx, n.UserID, string(frame)); err != nil {
			observability.NotificationFailures.WithLabelValues("publish").Inc()
			middleware.Logger.WarnContext(ctx, "failed to publish notification",
				"user_id", n.UserID, "notification_id", n.ID, "error", err)
		}
		return
	}
	if d.local != nil {
		d.local.Broadcast(n.UserID, string(frame))
	}
}
