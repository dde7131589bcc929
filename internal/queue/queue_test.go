package queue

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
	})
}

func TestQueue_EnqueueSurfacesRedisErrors(t *testing.T) {
	q := New(unreachableClient())
	err := q.Enqueue(context.Background(), models.DeliveryTask{TaskID: "t1"})
	assert.Error(t, err)
}

func TestQueue_DequeueSurfacesRedisErrors(t *testing.T) {
	q := New(unreachableClient())
	_, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	assert.Error(t, err)
}
