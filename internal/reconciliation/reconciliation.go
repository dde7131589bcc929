// Package reconciliation runs a scheduled sweep that re-enqueues messages
// that were persisted but never dispatched — covering the gap between a
// webhook's DB commit and its task-queue enqueue if the process crashed in
// between.
package reconciliation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/queue"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/repository"
)

// BatchSize bounds how many undispatched messages one sweep re-enqueues.
const BatchSize = 100

// Job re-enqueues undispatched messages on a cron schedule.
type Job struct {
	messages *repository.MessageRepository
	queue    *queue.Queue
	logger   observability.Logger
	cron     *cron.Cron
	schedule string
}

// New creates a Job. intervalSeconds is converted to a "@every" cron spec.
func New(messages *repository.MessageRepository, q *queue.Queue, intervalSeconds int, logger observability.Logger) *Job {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	return &Job{
		messages: messages,
		queue:    q,
		logger:   logger.WithPrefix("reconciliation"),
		cron:     cron.New(),
		schedule: "@every " + time.Duration(intervalSeconds*int(time.Second)).String(),
	}
}

// Start schedules the sweep and blocks until ctx is canceled.
func (j *Job) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.schedule, func() { j.sweep(ctx) })
	if err != nil {
		return err
	}
	j.cron.Start()
	<-ctx.Done()
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	return nil
}

func (j *Job) sweep(ctx context.Context) {
	undispatched, err := j.messages.ListUndispatched(ctx, BatchSize)
	if err != nil {
		j.logger.Error("reconciliation sweep failed to list undispatched messages", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(undispatched) == 0 {
		return
	}

	j.logger.Info("reconciliation sweep re-enqueuing undispatched messages", map[string]interface{}{"count": len(undispatched)})
	for _, msg := range undispatched {
		task := models.DeliveryTask{
			TaskID:         msg.ID,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Content:        msg.Content,
			EnqueuedAt:     time.Now(),
		}
		if err := j.queue.Enqueue(ctx, task); err != nil {
			j.logger.Error("reconciliation sweep failed to re-enqueue message", map[string]interface{}{"message_id": msg.ID, "error": err.Error()})
		}
	}
}
