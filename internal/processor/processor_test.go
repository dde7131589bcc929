package processor

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/cache"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/conversation"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/handlers"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/intent"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/metrics"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/sanitizer"
)

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond, ReadTimeout: 20 * time.Millisecond})
}

type stubHandler struct {
	response string
	err      error
	calls    int
}

func (s *stubHandler) Handle(ctx context.Context, req handlers.Request) (string, error) {
	s.calls++
	return s.response, s.err
}

func newTestProcessor(t *testing.T, registry *handlers.Registry, cacheEnabled bool) *Processor {
	t.Helper()
	logger := observability.NewNoopLogger()

	store, err := conversation.New(unreachableRedis(), conversation.Config{MaxTurns: 20}, logger)
	require.NoError(t, err)

	limiter := resilience.NewSlidingWindowLimiter(unreachableRedis(), resilience.SlidingWindowConfig{MaxRequests: 100, WindowSeconds: 60}, logger)
	respCache := cache.NewRedisCache(unreachableRedis(), cache.Config{Enabled: cacheEnabled, DefaultTTL: time.Minute, KeyPrefix: "cache:"}, logger)

	return New(DefaultConfig(), sanitizer.New(sanitizer.DefaultConfig()), limiter, respCache, store, intent.NewAnalyzer(), registry, metrics.New(nil), logger)
}

func TestProcessor_EmptyAfterSanitizeReturnsFallback(t *testing.T) {
	registry := handlers.NewRegistry(observability.NewNoopLogger())
	registry.RegisterFallback(&stubHandler{response: "should not be called"})
	p := newTestProcessor(t, registry, false)

	result := p.Process(context.Background(), "   \x00\x01  ", "conv-1", "")
	assert.Equal(t, "empty_message", result.Error)
	assert.Equal(t, models.IntentFallback, result.Intent)
}

func TestProcessor_DispatchesToRegisteredHandler(t *testing.T) {
	registry := handlers.NewRegistry(observability.NewNoopLogger())
	greeting := &stubHandler{response: "Hi there! How can I help you today?"}
	registry.Register(models.IntentGreeting, greeting)
	registry.RegisterFallback(&stubHandler{response: "fallback"})
	p := newTestProcessor(t, registry, false)

	result := p.Process(context.Background(), "hi there", "conv-2", "user-1")
	require.Empty(t, result.Error)
	assert.Equal(t, models.IntentGreeting, result.Intent)
	assert.Equal(t, "Hi there! How can I help you today?", result.Response)
	assert.Equal(t, 1, greeting.calls)
}

func TestProcessor_ShortResponseIsNotCached(t *testing.T) {
	registry := handlers.NewRegistry(observability.NewNoopLogger())
	registry.RegisterFallback(&stubHandler{response: "no"})
	p := newTestProcessor(t, registry, true)

	result := p.Process(context.Background(), "random gibberish text", "conv-3", "")
	assert.Equal(t, "no", result.Response)
	assert.False(t, result.CacheHit)
}

func TestProcessor_RegisteredHandlerErrorRetriesViaFallback(t *testing.T) {
	registry := handlers.NewRegistry(observability.NewNoopLogger())
	greeting := &stubHandler{err: assertError{}}
	fallback := &stubHandler{response: "fallback reply"}
	registry.Register(models.IntentGreeting, greeting)
	registry.RegisterFallback(fallback)
	p := newTestProcessor(t, registry, false)

	result := p.Process(context.Background(), "hi there", "conv-5", "")
	require.Empty(t, result.Error)
	assert.Equal(t, "fallback reply", result.Response)
	assert.Equal(t, 1, greeting.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestProcessor_DispatchErrorProducesInternalErrorResult(t *testing.T) {
	registry := handlers.NewRegistry(observability.NewNoopLogger())
	registry.RegisterFallback(&stubHandler{err: assertError{}})
	p := newTestProcessor(t, registry, false)

	result := p.Process(context.Background(), "random gibberish text", "conv-4", "")
	assert.Equal(t, "internal_error", result.Error)
	assert.NotEmpty(t, result.Response)
}

func TestProcessor_CacheKeyDiffersBeforeAndAfterIntent(t *testing.T) {
	p := newTestProcessor(t, handlers.NewRegistry(observability.NewNoopLogger()), true)
	preliminary := p.cacheKey("hello", "")
	refined := p.cacheKey("hello", models.IntentGreeting)
	assert.NotEqual(t, preliminary, refined)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
