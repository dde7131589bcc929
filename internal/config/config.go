// Package config loads the gateway's configuration from environment
// variables (and an optional config file), the way the rest of this
// codebase has always done it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServiceConfig covers process-level bootstrap knobs.
type ServiceConfig struct {
	PublicPort      int           `mapstructure:"public_port"`
	HealthPort      int           `mapstructure:"health_port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WebhookConfig covers inbound webhook verification and replay protection.
type WebhookConfig struct {
	VerifyToken      string        `mapstructure:"verify_token"`
	Secret           string        `mapstructure:"secret"`
	ReplayWindow     time.Duration `mapstructure:"replay_window"`
	StrictRedisDedup bool          `mapstructure:"strict_redis_dedup"`
}

// RedisConfig covers the shared Redis connection used by the conversation
// store, rate limiter, dedup keys, and response cache.
type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// DatabaseConfig covers the Postgres connection backing Conversation,
// Message, and DLQEntry persistence.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// ConversationConfig covers the Conversation Store's Redis and fallback
// tiers.
type ConversationConfig struct {
	TTLSeconds       int           `mapstructure:"ttl_seconds"`
	MaxTurns         int           `mapstructure:"max_turns"`
	FallbackCapacity int           `mapstructure:"fallback_capacity"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// CacheConfig covers the AI processor's response cache.
type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	Version string        `mapstructure:"version"`
}

// RateLimitConfig covers the inbound sliding-window limiter.
type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// CircuitBreakerConfig covers the per-dependency breaker thresholds named in
// the spec (LLM providers share one threshold pair; e-commerce has its own).
type CircuitBreakerConfig struct {
	LLMFailureThreshold       int           `mapstructure:"llm_failure_threshold"`
	LLMRecoveryTimeout        time.Duration `mapstructure:"llm_recovery_timeout"`
	EcommerceFailureThreshold int           `mapstructure:"ecommerce_failure_threshold"`
	EcommerceRecoveryTimeout  time.Duration `mapstructure:"ecommerce_recovery_timeout"`
}

// KnowledgeConfig covers the embedding/knowledge retriever.
type KnowledgeConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	EmbeddingDimension  int     `mapstructure:"embedding_dimension"`
	EmbeddingBatchSize  int     `mapstructure:"embedding_batch_size"`
	CachePath           string  `mapstructure:"cache_path"`
}

// ProcessorConfig covers the AI processor orchestration knobs.
type ProcessorConfig struct {
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`
	MinLLMResponseLength  int `mapstructure:"min_llm_response_length"`
	MaxMessageLength      int `mapstructure:"max_message_length"`
}

// WorkerConfig covers the delivery worker's polling and concurrency.
type WorkerConfig struct {
	PollInterval               time.Duration `mapstructure:"poll_interval"`
	Concurrency                int           `mapstructure:"concurrency"`
	SoftTimeLimit              time.Duration `mapstructure:"soft_time_limit"`
	HardTimeLimit              time.Duration `mapstructure:"hard_time_limit"`
	ReconciliationIntervalSecs int           `mapstructure:"reconciliation_interval_seconds"`
}

// ProvidersConfig covers outbound third-party dependencies.
type ProvidersConfig struct {
	InternalAPIKey  string `mapstructure:"internal_api_key"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	EcommerceAPIURL string `mapstructure:"ecommerce_api_url"`
	PlatformAPIURL  string `mapstructure:"platform_api_url"`
	PlatformToken   string `mapstructure:"platform_token"`
	AIServiceURL    string `mapstructure:"ai_service_url"`
	EmbeddingURL    string `mapstructure:"embedding_url"`
}

// Config is the complete gateway configuration, assembled from environment
// variables (and optionally a gateway.yaml file) by Load.
type Config struct {
	Service        ServiceConfig        `mapstructure:"service"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Conversation   ConversationConfig   `mapstructure:"conversation"`
	Cache          CacheConfig          `mapstructure:"cache"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Knowledge      KnowledgeConfig      `mapstructure:"knowledge"`
	Processor      ProcessorConfig      `mapstructure:"processor"`
	Worker         WorkerConfig         `mapstructure:"worker"`
	Providers      ProvidersConfig      `mapstructure:"providers"`
}

// Load reads configuration from the environment (with an optional
// gateway.yaml/gateway.json overlay) and validates it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	v.SetConfigName("gateway")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.public_port", 8080)
	v.SetDefault("service.health_port", 8081)
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.shutdown_timeout", 15*time.Second)

	v.SetDefault("webhook.replay_window", 300*time.Second)
	v.SetDefault("webhook.strict_redis_dedup", false)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.operation_timeout", 5*time.Second)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("conversation.ttl_seconds", 3600)
	v.SetDefault("conversation.max_turns", 20)
	v.SetDefault("conversation.fallback_capacity", 1000)
	v.SetDefault("conversation.sweep_interval", 300*time.Second)

	v.SetDefault("cache.ttl", 300*time.Second)
	v.SetDefault("cache.version", "v1")

	v.SetDefault("rate_limit.max_requests", 100)
	v.SetDefault("rate_limit.window_seconds", 60)

	v.SetDefault("circuit_breaker.llm_failure_threshold", 5)
	v.SetDefault("circuit_breaker.llm_recovery_timeout", 60*time.Second)
	v.SetDefault("circuit_breaker.ecommerce_failure_threshold", 3)
	v.SetDefault("circuit_breaker.ecommerce_recovery_timeout", 30*time.Second)

	v.SetDefault("knowledge.similarity_threshold", 0.75)
	v.SetDefault("knowledge.embedding_dimension", 768)
	v.SetDefault("knowledge.embedding_batch_size", 10)
	v.SetDefault("knowledge.cache_path", "./data/embedding_cache.json")

	v.SetDefault("processor.max_concurrent_requests", 50)
	v.SetDefault("processor.min_llm_response_length", 5)
	v.SetDefault("processor.max_message_length", 4096)

	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.soft_time_limit", 120*time.Second)
	v.SetDefault("worker.hard_time_limit", 150*time.Second)
	v.SetDefault("worker.reconciliation_interval_seconds", 60)
}

// bindEnvVars binds every environment variable named in the specification to
// its mapstructure key, so operators can set WEBHOOK_SECRET etc. directly
// without needing a config file.
func bindEnvVars(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"service.public_port":      "SERVICE_PORT",
		"service.health_port":      "HEALTH_PORT",
		"service.log_level":        "LOG_LEVEL",
		"service.shutdown_timeout": "SHUTDOWN_TIMEOUT",

		"webhook.verify_token":       "WEBHOOK_VERIFY_TOKEN",
		"webhook.secret":             "WEBHOOK_SECRET",
		"webhook.replay_window":      "WEBHOOK_TIMEOUT",
		"webhook.strict_redis_dedup": "STRICT_REDIS_DEDUP",

		"redis.url": "REDIS_URL",

		"database.dsn": "DATABASE_URL",

		"conversation.ttl_seconds": "CONVERSATION_TTL_SECONDS",

		"cache.ttl":     "CACHE_TTL",
		"cache.version": "CACHE_VERSION",

		"rate_limit.max_requests":   "RATE_LIMIT_REQUESTS",
		"rate_limit.window_seconds": "RATE_LIMIT_WINDOW",

		"circuit_breaker.llm_failure_threshold":       "LLM_FAILURE_THRESHOLD",
		"circuit_breaker.llm_recovery_timeout":        "LLM_RECOVERY_TIMEOUT",
		"circuit_breaker.ecommerce_failure_threshold": "ECOMMERCE_FAILURE_THRESHOLD",
		"circuit_breaker.ecommerce_recovery_timeout":  "ECOMMERCE_RECOVERY_TIMEOUT",

		"knowledge.similarity_threshold": "SIMILARITY_THRESHOLD",
		"knowledge.embedding_dimension":  "EMBEDDING_DIMENSION",
		"knowledge.embedding_batch_size": "EMBEDDING_BATCH_SIZE",

		"processor.max_concurrent_requests": "MAX_CONCURRENT_REQUESTS",
		"processor.max_message_length":      "MAX_MESSAGE_LENGTH",

		"worker.reconciliation_interval_seconds": "RECONCILIATION_INTERVAL_SECONDS",

		"providers.internal_api_key":  "INTERNAL_API_KEY",
		"providers.gemini_api_key":    "GEMINI_API_KEY",
		"providers.openai_api_key":    "OPENAI_API_KEY",
		"providers.ecommerce_api_url": "ECOMMERCE_API_URL",
		"providers.platform_api_url":  "PLATFORM_API_URL",
		"providers.platform_token":    "PLATFORM_TOKEN",
		"providers.ai_service_url":    "AI_SERVICE_URL",
		"providers.embedding_url":     "EMBEDDING_URL",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// validate rejects configurations that would make the gateway unsafe to run,
// mirroring the spec's fail-closed posture on webhook verification.
func validate(cfg *Config) error {
	if cfg.Service.PublicPort <= 0 || cfg.Service.PublicPort > 65535 {
		return fmt.Errorf("invalid service port: %d", cfg.Service.PublicPort)
	}
	if cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret (WEBHOOK_SECRET) must be set")
	}
	if cfg.Providers.InternalAPIKey == "" {
		return fmt.Errorf("providers.internal_api_key (INTERNAL_API_KEY) must be set")
	}
	if cfg.Conversation.MaxTurns <= 0 {
		return fmt.Errorf("conversation.max_turns must be positive")
	}
	if cfg.Knowledge.SimilarityThreshold < 0 || cfg.Knowledge.SimilarityThreshold > 1 {
		return fmt.Errorf("knowledge.similarity_threshold must be within [0,1]")
	}
	return nil
}
