// Package queue implements the Redis-list-backed task queue connecting the
// Webhook Ingest producer to the Delivery Worker consumer.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

const deliveryQueueKey = "queue:delivery_tasks"

// Queue is a simple FIFO list queue: producers LPUSH, the consumer BRPOPs.
type Queue struct {
	client *redis.Client
}

// New creates a Queue over client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes a delivery task onto the queue.
func (q *Queue) Enqueue(ctx context.Context, task models.DeliveryTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal delivery task: %w", err)
	}
	if err := q.client.LPush(ctx, deliveryQueueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue delivery task: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next task, returning nil, nil on
// timeout so the caller's poll loop can check ctx and retry.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.DeliveryTask, error) {
	res, err := q.client.BRPop(ctx, timeout, deliveryQueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue delivery task: %w", err)
	}

	// BRPop returns [key, value]; the payload is the second element.
	if len(res) < 2 {
		return nil, fmt.Errorf("unexpected brpop result shape: %v", res)
	}

	var task models.DeliveryTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshal delivery task: %w", err)
	}
	return &task, nil
}

// Len reports the current queue depth, for the readiness/metrics endpoints.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, deliveryQueueKey).Result()
}
