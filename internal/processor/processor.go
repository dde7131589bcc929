// Package processor implements the AI Processor: the orchestrator that
// sanitizes an inbound message, checks the response cache, classifies
// intent, dispatches to a handler under a bounded concurrency semaphore,
// validates and caches the response, and appends the exchange to history —
// mirroring the teacher's loader_service.go config-driven pipeline shape,
// adapted from document ingestion to per-message AI dispatch.
package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"time"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
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

// Config controls the processor's concurrency bound, response validation
// floor, and cache behavior.
type Config struct {
	MaxConcurrentRequests int
	MinLLMResponseLength  int
	CacheTTL              time.Duration
	CacheVersion          string
}

// DefaultConfig returns the spec's default processor settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: 50,
		MinLLMResponseLength:  5,
		CacheTTL:              5 * time.Minute,
		CacheVersion:          "v1",
	}
}

// cachedResponse is the shape stored under a cache key.
type cachedResponse struct {
	Response string           `json:"response"`
	Intent   models.IntentType `json:"intent"`
}

// Processor is the AI Processor orchestrator.
type Processor struct {
	cfg Config

	sanitizer   *sanitizer.Sanitizer
	rateLimiter *resilience.SlidingWindowLimiter
	cache       *cache.RedisCache
	store       *conversation.Store
	analyzer    *intent.Analyzer
	handlers    *handlers.Registry
	metrics     *metrics.Metrics
	logger      observability.Logger

	sem chan struct{}
}

// New creates a Processor wiring together every stage of the pipeline.
func New(
	cfg Config,
	san *sanitizer.Sanitizer,
	rateLimiter *resilience.SlidingWindowLimiter,
	respCache *cache.RedisCache,
	store *conversation.Store,
	analyzer *intent.Analyzer,
	registry *handlers.Registry,
	m *metrics.Metrics,
	logger observability.Logger,
) *Processor {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 50
	}
	if cfg.MinLLMResponseLength <= 0 {
		cfg.MinLLMResponseLength = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Processor{
		cfg:         cfg,
		sanitizer:   san,
		rateLimiter: rateLimiter,
		cache:       respCache,
		store:       store,
		analyzer:    analyzer,
		handlers:    registry,
		metrics:     m,
		logger:      logger.WithPrefix("ai-processor"),
		sem:         make(chan struct{}, cfg.MaxConcurrentRequests),
	}
}

// Process runs the full pipeline for one inbound message and never returns
// an error out of the top level — failures are folded into
// ProcessingResult.Error.
func (p *Processor) Process(ctx context.Context, message, conversationID, userID string) models.ProcessingResult {
	start := time.Now()

	clean := p.sanitizer.Clean(message)
	if clean == "" {
		result := models.ProcessingResult{
			ConversationID: conversationID,
			Response:       "I didn't receive your message. Could you try again?",
			Intent:         models.IntentFallback,
			Error:          "empty_message",
		}
		p.emitMetrics(models.IntentFallback, "error", start)
		return result
	}

	if userID != "" && p.rateLimiter != nil {
		if err := p.rateLimiter.Allow(ctx, userID); err != nil {
			p.logger.Warn("rate limit exceeded", map[string]interface{}{"user_id": userID, "error": err.Error()})
			p.emitMetrics(models.IntentFallback, "error", start)
			return models.ProcessingResult{
				ConversationID: conversationID,
				Response:       "You're sending messages too quickly. Please wait a moment and try again.",
				Intent:         models.IntentFallback,
				Error:          "rate_limited",
			}
		}
	}

	preliminaryKey := p.cacheKey(clean, "")
	if cached, ok := p.lookupCache(ctx, preliminaryKey); ok {
		p.recordCacheHit("response", true)
		p.emitMetrics(cached.Intent, "cache_hit", start)
		return models.ProcessingResult{
			ConversationID: conversationID,
			Response:       cached.Response,
			Intent:         cached.Intent,
			CacheHit:       true,
			ProcessingTime: time.Since(start),
		}
	}
	p.recordCacheHit("response", false)

	history, err := p.store.Load(ctx, conversationID)
	if err != nil {
		p.logger.Warn("failed to load conversation history", map[string]interface{}{"conversation_id": conversationID, "error": err.Error()})
	}

	previousIntent := models.IntentType("")
	if len(history) > 0 {
		previousIntent = history[len(history)-1].Intent
	}
	intentResult := p.analyzer.Analyze(clean, previousIntent)

	refinedKey := p.cacheKey(clean, intentResult.Intent)
	if cached, ok := p.lookupCache(ctx, refinedKey); ok {
		p.recordCacheHit("response", true)
		p.emitMetrics(cached.Intent, "cache_hit", start)
		return models.ProcessingResult{
			ConversationID: conversationID,
			Response:       cached.Response,
			Intent:         cached.Intent,
			CacheHit:       true,
			ProcessingTime: time.Since(start),
		}
	}

	response, dispatchErr := p.dispatch(ctx, clean, intentResult, history)
	if dispatchErr != nil {
		errTag := "internal_error"
		var breakerErr *apperrors.CircuitBreakerOpenError
		if errors.As(dispatchErr, &breakerErr) {
			errTag = "service_unavailable"
		}
		p.logger.Error("handler dispatch failed", map[string]interface{}{"intent": intentResult.Intent, "error": dispatchErr.Error()})
		p.emitMetrics(intentResult.Intent, "error", start)
		return models.ProcessingResult{
			ConversationID: conversationID,
			Response:       "Something went wrong on our end. Please try again shortly.",
			Intent:         intentResult.Intent,
			Confidence:     intentResult.Confidence,
			ProcessingTime: time.Since(start),
			Error:          errTag,
		}
	}

	valid := len(response) >= p.cfg.MinLLMResponseLength
	if valid {
		p.storeCache(ctx, refinedKey, cachedResponse{Response: response, Intent: intentResult.Intent})
	}

	userTurn := models.Turn{Role: "user", Content: clean, Intent: intentResult.Intent, Timestamp: time.Now()}
	assistantTurn := models.Turn{Role: "assistant", Content: response, Intent: intentResult.Intent, Timestamp: time.Now()}
	if err := p.store.AppendTurn(ctx, conversationID, userTurn, assistantTurn); err != nil {
		p.logger.Warn("failed to append conversation turn", map[string]interface{}{"conversation_id": conversationID, "error": err.Error()})
	}

	p.emitMetrics(intentResult.Intent, "ok", start)

	return models.ProcessingResult{
		ConversationID: conversationID,
		Response:       response,
		Intent:         intentResult.Intent,
		Confidence:     intentResult.Confidence,
		ProcessingTime: time.Since(start),
	}
}

// dispatch runs the handler registry under the concurrency semaphore.
func (p *Processor) dispatch(ctx context.Context, message string, intentResult models.IntentResult, history []models.Turn) (string, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.sem }()

	return p.handlers.Dispatch(ctx, handlers.Request{
		Message: message,
		Intent:  intentResult,
		History: history,
	})
}

func (p *Processor) lookupCache(ctx context.Context, key string) (cachedResponse, bool) {
	if p.cache == nil {
		return cachedResponse{}, false
	}
	var cr cachedResponse
	if err := p.cache.GetJSON(ctx, key, &cr); err != nil {
		return cachedResponse{}, false
	}
	return cr, true
}

func (p *Processor) storeCache(ctx context.Context, key string, cr cachedResponse) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetJSON(ctx, key, cr, p.cfg.CacheTTL); err != nil {
		p.logger.Warn("failed to store cached response", map[string]interface{}{"error": err.Error()})
	}
}

func (p *Processor) recordCacheHit(cacheType string, hit bool) {
	if p.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	p.metrics.CacheHitsTotal.WithLabelValues(cacheType, result).Inc()
}

func (p *Processor) emitMetrics(intentType models.IntentType, status string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.IntentTotal.WithLabelValues(string(intentType), status).Inc()
	p.metrics.ProcessingSeconds.WithLabelValues(string(intentType)).Observe(time.Since(start).Seconds())
}

// cacheKey builds the response-cache key (without the RedisCache's own
// prefix, which it applies itself). When intentType is empty, this is the
// preliminary pre-intent lookup key; otherwise it is the refined post-intent
// key used for the write path.
func (p *Processor) cacheKey(message string, intentType models.IntentType) string {
	payload := message + ":" + p.cfg.CacheVersion
	if intentType != "" {
		payload = message + ":" + string(intentType) + ":" + p.cfg.CacheVersion
	}
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}
