package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

func unreachableRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond})
}

func TestDeduper_FailsOpenOnRedisOutageByDefault(t *testing.T) {
	d := NewDeduper(unreachableRedisClient(), false, observability.NewNoopLogger())
	duplicate, err := d.Seen(context.Background(), "msg-1", "+15551234567")
	require.NoError(t, err)
	assert.False(t, duplicate)
}

func TestDeduper_FailsClosedInStrictMode(t *testing.T) {
	d := NewDeduper(unreachableRedisClient(), true, observability.NewNoopLogger())
	_, err := d.Seen(context.Background(), "msg-1", "+15551234567")
	assert.Error(t, err)
}
