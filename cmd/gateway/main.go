// Package main is the entry point for the conversational messaging gateway.
package main

import (
	"context"
	"crypto/subtle"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gatewayapi "github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/api"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/cache"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/config"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/conversation"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/ecommerce"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/handlers"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/intent"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/llm/providers"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/metrics"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/platform"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/processor"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/queue"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/reconciliation"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/repository"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/sanitizer"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/webhook"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/worker"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Gateway\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", version, buildTime, gitCommit)
		os.Exit(0)
	}

	logger := observability.NewLogger("gateway")
	logger.Info("starting gateway", map[string]interface{}{
		"version": version, "build_time": buildTime, "git_commit": gitCommit,
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	db, err := connectDatabase(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	redisClient, err := connectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	breakers := resilience.NewRegistry(logger, registry)

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	dlqRepo := repository.NewDLQRepository(db)

	san := sanitizer.New(sanitizer.Config{MaxLength: cfg.Processor.MaxMessageLength})

	convStore, err := conversation.New(redisClient, conversation.Config{
		TTL:              time.Duration(cfg.Conversation.TTLSeconds) * time.Second,
		MaxTurns:         cfg.Conversation.MaxTurns,
		FallbackCapacity: cfg.Conversation.FallbackCapacity,
		SweepInterval:    cfg.Conversation.SweepInterval,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create conversation store: %v", err)
	}
	go convStore.Run(ctx)

	respCache := cache.NewRedisCache(redisClient, cache.Config{
		Enabled:    true,
		DefaultTTL: cfg.Cache.TTL,
		KeyPrefix:  "cache:",
	}, logger)

	rateLimiter := resilience.NewSlidingWindowLimiter(redisClient, resilience.SlidingWindowConfig{
		MaxRequests:   cfg.RateLimit.MaxRequests,
		WindowSeconds: cfg.RateLimit.WindowSeconds,
	}, logger)

	analyzer := intent.NewAnalyzer()

	geminiBreaker := breakers.Get(resilience.CircuitBreakerConfig{
		Name: "gemini", FailureThreshold: cfg.CircuitBreaker.LLMFailureThreshold, ResetTimeout: cfg.CircuitBreaker.LLMRecoveryTimeout,
	})
	openaiBreaker := breakers.Get(resilience.CircuitBreakerConfig{
		Name: "openai", FailureThreshold: cfg.CircuitBreaker.LLMFailureThreshold, ResetTimeout: cfg.CircuitBreaker.LLMRecoveryTimeout,
	})
	ecommerceBreaker := breakers.Get(resilience.CircuitBreakerConfig{
		Name: "ecommerce", FailureThreshold: cfg.CircuitBreaker.EcommerceFailureThreshold, ResetTimeout: cfg.CircuitBreaker.EcommerceRecoveryTimeout,
	})
	platformBreaker := breakers.Get(resilience.CircuitBreakerConfig{
		Name: "platform", FailureThreshold: cfg.CircuitBreaker.EcommerceFailureThreshold, ResetTimeout: cfg.CircuitBreaker.EcommerceRecoveryTimeout,
	})

	geminiProvider := providers.NewGeminiProvider(providers.Config{APIKey: cfg.Providers.GeminiAPIKey})
	openaiProvider := providers.NewOpenAIProvider(providers.Config{APIKey: cfg.Providers.OpenAIAPIKey})
	fallbackHandler := handlers.NewFallbackHandler(geminiProvider, openaiProvider, geminiBreaker, openaiBreaker, logger)

	retriever := knowledge.New(geminiProvider, knowledge.Config{
		CachePath:           cfg.Knowledge.CachePath,
		EmbeddingBatchSize:  cfg.Knowledge.EmbeddingBatchSize,
		SimilarityThreshold: cfg.Knowledge.SimilarityThreshold,
	}, logger)

	ecommerceClient := ecommerce.New(ecommerce.Config{
		BaseURL: cfg.Providers.EcommerceAPIURL,
	}, ecommerceBreaker)

	handlerRegistry := handlers.NewRegistry(logger)
	handlerRegistry.RegisterFallback(fallbackHandler)
	handlerRegistry.Register(models.IntentGreeting, handlers.NewGreetingHandler())
	handlerRegistry.Register(models.IntentProductQuery, handlers.NewProductQueryHandler(ecommerceClient))
	handlerRegistry.Register(models.IntentProductDetails, handlers.NewProductDetailsHandler(ecommerceClient))
	handlerRegistry.Register(models.IntentOrderStatus, handlers.NewOrderStatusHandler(ecommerceClient))
	handlerRegistry.Register(models.IntentKnowledgeQuery, handlers.NewKnowledgeQueryHandler(retriever, fallbackHandler))

	proc := processor.New(processor.Config{
		MaxConcurrentRequests: cfg.Processor.MaxConcurrentRequests,
		MinLLMResponseLength:  cfg.Processor.MinLLMResponseLength,
		CacheTTL:              cfg.Cache.TTL,
		CacheVersion:          cfg.Cache.Version,
	}, san, rateLimiter, respCache, convStore, analyzer, handlerRegistry, m, logger)

	// Public surface: webhook ingest, verification, health, metrics — mirrors
	// the teacher's gorilla/mux-routed health/metrics server.
	taskQueue := queue.New(redisClient)
	deduper := webhook.NewDeduper(redisClient, cfg.Webhook.StrictRedisDedup, logger)
	validator := webhook.NewValidator(cfg.Webhook.Secret, cfg.Webhook.ReplayWindow)
	webhookHandler := webhook.New(
		webhook.Config{VerifyToken: cfg.Webhook.VerifyToken},
		validator, deduper, rateLimiter, san, db, conversationRepo, messageRepo, taskQueue, logger,
	)

	publicRouter := mux.NewRouter()
	webhookHandler.RegisterRoutes(publicRouter)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	publicRouter.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := cfg.Providers.InternalAPIKey
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(apiKey)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		metricsHandler.ServeHTTP(w, r)
	})).Methods(http.MethodGet)
	publicRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	}).Methods(http.MethodGet)

	publicServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Service.PublicPort), Handler: publicRouter}
	go func() {
		logger.Info("starting public server", map[string]interface{}{"port": cfg.Service.PublicPort})
		if err := publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("public server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	// Internal surface: the gin-routed AI API the delivery worker calls into.
	healthChecker := gatewayapi.NewHealthChecker(redisClient, db)
	internalAPI := gatewayapi.New(proc, healthChecker, cfg.Providers.InternalAPIKey, logger)
	internalServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Service.HealthPort), Handler: internalAPI.Handler()}
	go func() {
		logger.Info("starting internal api server", map[string]interface{}{"port": cfg.Service.HealthPort})
		if err := internalServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("internal api server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	// Delivery worker: drains the task queue, calls back into this same
	// process's AI processor, and sends replies through the platform client.
	platformClient := platform.New(platform.Config{
		BaseURL: cfg.Providers.PlatformAPIURL,
		Token:   cfg.Providers.PlatformToken,
	}, platformBreaker)
	deliveryWorker := worker.New(
		worker.Config{
			Concurrency: cfg.Worker.Concurrency,
			DequeueWait: cfg.Worker.PollInterval,
			DedupTTL:    cfg.Worker.HardTimeLimit,
			MaxRetries:  3,
		},
		taskQueue, redisClient, &localAIClient{proc: proc}, platformClient, messageRepo, dlqRepo, logger,
	)
	go deliveryWorker.Run(ctx)

	reconciliationJob := reconciliation.New(messageRepo, taskQueue, cfg.Worker.ReconciliationIntervalSecs, logger)
	go func() {
		if err := reconciliationJob.Start(ctx); err != nil {
			logger.Error("reconciliation job error", map[string]interface{}{"error": err.Error()})
		}
	}()

	gin.SetMode(gin.ReleaseMode)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
	}

	logger.Info("starting graceful shutdown", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if err := publicServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown public server", map[string]interface{}{"error": err.Error()})
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown internal api server", map[string]interface{}{"error": err.Error()})
	}

	cancel()
	logger.Info("shutdown complete", nil)
}

// localAIClient adapts the in-process Processor to worker.AIServiceClient,
// so the delivery worker calls the AI pipeline directly instead of hopping
// through the internal HTTP API within the same binary.
type localAIClient struct {
	proc *processor.Processor
}

func (c *localAIClient) Process(ctx context.Context, conversationID, message string) (string, error) {
	result := c.proc.Process(ctx, message, conversationID, conversationID)
	if result.Error != "" {
		return "", fmt.Errorf("ai processor: %s", result.Error)
	}
	return result.Response, nil
}

// connectDatabase establishes a database connection with retry logic.
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*sqlx.DB, error) {
	maxRetries := 10
	baseDelay := 1 * time.Second

	logger.Info("connecting to database", nil)

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := sqlx.Open("postgres", cfg.DSN)
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr == nil {
				db.SetMaxOpenConns(cfg.MaxOpenConns)
				db.SetMaxIdleConns(cfg.MaxIdleConns)
				logger.Info("database connection established", nil)
				return db, nil
			} else {
				_ = db.Close()
				err = fmt.Errorf("failed to ping database: %w", pingErr)
			}
		}
		lastErr = err

		if i < maxRetries-1 {
			delay := baseDelay * (1 << uint(i))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			logger.Warn("database connection failed, retrying", map[string]interface{}{
				"attempt": i + 1, "max_attempts": maxRetries, "delay": delay.String(), "error": err.Error(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, lastErr)
}

// connectRedis establishes the shared Redis connection used by the
// conversation store, rate limiter, dedup keys, and response cache.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger observability.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.OperationTimeout > 0 {
		opts.ReadTimeout = cfg.OperationTimeout
		opts.WriteTimeout = cfg.OperationTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed at startup, continuing degraded", map[string]interface{}{"error": err.Error()})
	}

	return client, nil
}
