package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lingopeer/backend/internal/directory"
	"github.com/lingopeer/backend/pkg/queue"
)

// NotificationProcessor consumes notification jobs and hands them to the
// delivery provider. Delivery transport (push/email) is an external
// collaborator; here delivery is resolved recipients + structured log.
type NotificationProcessor struct {
	queue     *queue.Queue
	directory directory.Directory
	logger    *zap.Logger
}

// NewNotificationProcessor creates a notification worker.
func NewNotificationProcessor(q *queue.Queue, dir directory.Directory, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{queue: q, directory: dir, logger: logger}
}

// Run consumes jobs until ctx is cancelled. Failed jobs are retried with an
// attempt counter and land in the DLQ after queue.MaxRetries.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}
		if err := p.Process(ctx, job); err != nil {
			p.logger.Warn("notification delivery failed", zap.Error(err), zap.String("job_id", job.ID))
			_ = p.queue.Retry(ctx, job)
		}
	}
}

// Process delivers one notification job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	for _, userID := range payload.Recipients {
		profile, err := p.directory.Lookup(ctx, userID)
		if err != nil {
			return fmt.Errorf("lookup recipient %s: %w", userID, err)
		}
		name := userID.String()
		if profile != nil {
			name = profile.DisplayName
		}
		p.logger.Info("notification delivered",
			zap.String("event", payload.Event),
			zap.String("session_id", payload.SessionID.String()),
			zap.String("recipient", name))
	}
	return nil
}
