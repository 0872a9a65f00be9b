package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingopeer/backend/pkg/queue"
)

// QueueDispatcher enqueues notification events for out-of-band delivery.
// Dispatch is best-effort: enqueue failures are logged, never propagated, so
// a committed session mutation is never rolled back by a notification.
type QueueDispatcher struct {
	queue  *queue.Queue
	logger *zap.Logger
}

// NewQueueDispatcher creates a queue-backed dispatcher.
func NewQueueDispatcher(q *queue.Queue, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{queue: q, logger: logger}
}

// Notify enqueues one notification job for the recipients.
func (d *QueueDispatcher) Notify(ctx context.Context, recipients []uuid.UUID, event string, sessionID uuid.UUID, data map[string]string) {
	if len(recipients) == 0 {
		return
	}
	var raw json.RawMessage
	if len(data) > 0 {
		raw, _ = json.Marshal(data)
	}
	err := d.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		Event:      event,
		SessionID:  sessionID,
		Recipients: recipients,
		Data:       raw,
	})
	if err != nil {
		d.logger.Warn("notification enqueue failed",
			zap.Error(err),
			zap.String("event", event),
			zap.String("session_id", sessionID.String()))
	}
}
