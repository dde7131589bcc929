// Package worker implements the Delivery Worker: it drains the task queue,
// dedups via Redis, calls the AI service for a reply, sends it through the
// messaging platform, and records terminal failures to the dead-letter
// queue — mirroring the teacher's RunWorker poll loop and RetryHandler.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/queue"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/repository"
)

// AIServiceClient calls the gateway's own internal AI API to get a reply for
// a delivery task's message content.
type AIServiceClient interface {
	Process(ctx context.Context, conversationID, message string) (string, error)
}

// PlatformSender delivers a reply through the originating messaging
// platform.
type PlatformSender interface {
	Send(ctx context.Context, platform, externalID, text string) error
}

// Config controls concurrency and retry behavior.
type Config struct {
	Concurrency   int
	DequeueWait   time.Duration
	DedupTTL      time.Duration
	MaxRetries    int
}

// DefaultConfig returns the spec's default worker settings.
func DefaultConfig() Config {
	return Config{Concurrency: 10, DequeueWait: 2 * time.Second, DedupTTL: 24 * time.Hour, MaxRetries: 3}
}

// nonRetryablePhrases classifies errors as permanent, mirroring the
// teacher's substring-based isRetryableError list.
var nonRetryablePhrases = []string{
	"validation failed",
	"invalid payload",
	"unauthorized",
	"forbidden",
	"not found",
}

// Worker is the delivery worker's poll loop and processing pipeline.
type Worker struct {
	cfg      Config
	queue    *queue.Queue
	redis    *redis.Client
	ai       AIServiceClient
	sender   PlatformSender
	messages *repository.MessageRepository
	dlq      *repository.DLQRepository
	logger   observability.Logger
}

// New creates a Worker.
func New(cfg Config, q *queue.Queue, redisClient *redis.Client, ai AIServiceClient, sender PlatformSender, messages *repository.MessageRepository, dlq *repository.DLQRepository, logger observability.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.DequeueWait <= 0 {
		cfg.DequeueWait = 2 * time.Second
	}
	return &Worker{cfg: cfg, queue: q, redis: redisClient, ai: ai, sender: sender, messages: messages, dlq: dlq, logger: logger.WithPrefix("delivery-worker")}
}

// Run starts cfg.Concurrency poll loops and blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.pollLoop(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) pollLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, w.cfg.DequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("dequeue failed", map[string]interface{}{"worker": workerID, "error": err.Error()})
			continue
		}
		if task == nil {
			continue
		}

		if err := w.processTask(ctx, *task); err != nil {
			w.logger.Error("task processing failed permanently", map[string]interface{}{"task_id": task.TaskID, "error": err.Error()})
		}
	}
}

func (w *Worker) dedupKey(task models.DeliveryTask) string {
	sum := sha256.Sum256([]byte(task.Content))
	return fmt.Sprintf("task:%s:%s", task.ConversationID, hex.EncodeToString(sum[:8]))
}

// processTask dedups, calls the AI service and platform sender with bounded
// retry, and records terminal failures to the DLQ.
func (w *Worker) processTask(ctx context.Context, task models.DeliveryTask) error {
	key := w.dedupKey(task)
	ttl := w.cfg.DedupTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	set, err := w.redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		w.logger.Warn("dedup check failed, proceeding without dedup", map[string]interface{}{"error": err.Error()})
	} else if !set {
		w.logger.Info("duplicate delivery task skipped", map[string]interface{}{"task_id": task.TaskID})
		return nil
	}

	var reply string
	err = w.executeWithRetry(ctx, func(ctx context.Context) error {
		out, callErr := w.ai.Process(ctx, task.ConversationID, task.Content)
		if callErr != nil {
			return callErr
		}
		reply = out
		return nil
	})
	if err != nil {
		return w.sendToDLQ(ctx, task, fmt.Sprintf("ai service call failed: %v", err))
	}

	err = w.executeWithRetry(ctx, func(ctx context.Context) error {
		return w.sender.Send(ctx, task.Platform, task.ExternalID, reply)
	})
	if err != nil {
		return w.sendToDLQ(ctx, task, fmt.Sprintf("platform send failed: %v", err))
	}

	if w.messages != nil && task.MessageID != "" {
		if markErr := w.messages.MarkDispatched(ctx, task.MessageID); markErr != nil {
			w.logger.Warn("failed to mark message dispatched", map[string]interface{}{"message_id": task.MessageID, "error": markErr.Error()})
		}
	}

	return nil
}

// executeWithRetry retries transient failures with exponential backoff,
// treating anything matching nonRetryablePhrases as permanent.
func (w *Worker) executeWithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	maxRetries := w.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries))
	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if isNonRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func isNonRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range nonRetryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

func (w *Worker) sendToDLQ(ctx context.Context, task models.DeliveryTask, reason string) error {
	payload, marshalErr := json.Marshal(task)
	if marshalErr != nil {
		payload = []byte(`{}`)
	}

	if w.dlq == nil {
		return fmt.Errorf("%s (no dlq configured)", reason)
	}

	if _, err := w.dlq.Insert(ctx, task.TaskID, "message.delivery", payload, reason); err != nil {
		return fmt.Errorf("record dlq entry: %w", err)
	}
	return fmt.Errorf("%s", reason)
}
