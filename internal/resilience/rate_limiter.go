package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

// slidingWindowScript atomically trims the window, counts remaining entries,
// and (if under the limit) records this call, so concurrent requests from
// the same identifier can never race past the limit.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	return 0
end
redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window)
return 1
`

// SlidingWindowConfig configures the inbound per-identifier rate limiter.
type SlidingWindowConfig struct {
	MaxRequests   int
	WindowSeconds int
	KeyPrefix     string
}

// SlidingWindowLimiter enforces a sliding-window request cap per identifier
// (typically a user id) using a Redis Lua script for atomicity, falling back
// to an in-process limiter when Redis is unreachable.
type SlidingWindowLimiter struct {
	client   *redis.Client
	cfg      SlidingWindowConfig
	logger   observability.Logger
	script   *redis.Script
	fallback map[string]*rate.Limiter
}

// NewSlidingWindowLimiter creates a SlidingWindowLimiter.
func NewSlidingWindowLimiter(client *redis.Client, cfg SlidingWindowConfig, logger observability.Logger) *SlidingWindowLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit:"
	}
	return &SlidingWindowLimiter{
		client:   client,
		cfg:      cfg,
		logger:   logger.WithPrefix("sliding-window-limiter"),
		script:   redis.NewScript(slidingWindowScript),
		fallback: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether identifier may make another request right now. On
// Redis failure it degrades to a local token-bucket approximation rather
// than failing the request outright.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, identifier string) error {
	key := l.cfg.KeyPrefix + identifier
	now := float64(time.Now().UnixNano()) / 1e9

	res, err := l.script.Run(ctx, l.client, []string{key}, now, l.cfg.WindowSeconds, l.cfg.MaxRequests).Result()
	if err != nil {
		l.logger.Warn("sliding window limiter falling back to local limiter", map[string]interface{}{"error": err.Error()})
		return l.allowLocal(identifier)
	}

	allowed, ok := res.(int64)
	if !ok || allowed == 0 {
		return &apperrors.RateLimitExceededError{
			Identifier: identifier,
			RetryAfter: time.Duration(l.cfg.WindowSeconds) * time.Second,
		}
	}
	return nil
}

func (l *SlidingWindowLimiter) allowLocal(identifier string) error {
	limiter, ok := l.fallback[identifier]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(l.cfg.MaxRequests)/float64(l.cfg.WindowSeconds)), l.cfg.MaxRequests)
		l.fallback[identifier] = limiter
	}
	if !limiter.Allow() {
		return &apperrors.RateLimitExceededError{
			Identifier: identifier,
			RetryAfter: time.Duration(l.cfg.WindowSeconds) * time.Second,
		}
	}
	return nil
}

// OutboundConfig configures a token-bucket limiter guarding calls to one
// outbound dependency (an LLM provider or the e-commerce API).
type OutboundConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// OutboundLimiter is a simple per-dependency token-bucket limiter for
// outbound calls, distinct from the inbound SlidingWindowLimiter.
type OutboundLimiter struct {
	limiter *rate.Limiter
	name    string
}

// NewOutboundLimiter creates an OutboundLimiter for the named dependency.
func NewOutboundLimiter(name string, cfg OutboundConfig) *OutboundLimiter {
	return &OutboundLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		name:    name,
	}
}

// Wait blocks until a token is available or ctx is done.
func (o *OutboundLimiter) Wait(ctx context.Context) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("outbound limiter %s: %w", o.name, err)
	}
	return nil
}

// Allow reports whether a call may proceed right now without blocking.
func (o *OutboundLimiter) Allow() bool {
	return o.limiter.Allow()
}
