// Package conversation implements the tiered Conversation Store: Redis is
// the primary tier for rolling chat history, with an in-memory LRU fallback
// so the gateway degrades instead of failing outright when Redis is
// unreachable.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

// Status reports store health for the readiness endpoint.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Config controls the store's TTL, history depth, and fallback sizing.
type Config struct {
	TTL              time.Duration
	MaxTurns         int
	FallbackCapacity int
	SweepInterval    time.Duration
}

type fallbackEntry struct {
	turns     []models.Turn
	expiresAt time.Time
}

// Store is the tiered conversation history store.
type Store struct {
	redis  *redis.Client
	logger observability.Logger
	cfg    Config

	mu       sync.Mutex
	fallback *lru.Cache[string, *fallbackEntry]

	degraded bool
}

// New creates a Store backed by redisClient, with an LRU fallback sized per
// cfg.FallbackCapacity.
func New(redisClient *redis.Client, cfg Config, logger observability.Logger) (*Store, error) {
	if cfg.FallbackCapacity <= 0 {
		cfg.FallbackCapacity = 1000
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 20
	}

	fb, err := lru.New[string, *fallbackEntry](cfg.FallbackCapacity)
	if err != nil {
		return nil, fmt.Errorf("create fallback lru: %w", err)
	}

	return &Store{
		redis:    redisClient,
		logger:   logger.WithPrefix("conversation-store"),
		cfg:      cfg,
		fallback: fb,
	}, nil
}

// Run starts the background sweep that evicts expired fallback entries. It
// blocks until ctx is canceled.
func (s *Store) Run(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		s.cfg.SweepInterval = 5 * time.Minute
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, key := range s.fallback.Keys() {
		entry, ok := s.fallback.Peek(key)
		if !ok {
			continue
		}
		if now.After(entry.expiresAt) {
			s.fallback.Remove(key)
		}
	}
}

func historyKey(conversationID string) string {
	return "history:" + conversationID
}

// Load returns up to cfg.MaxTurns of history for conversationID, newest
// last.
func (s *Store) Load(ctx context.Context, conversationID string) ([]models.Turn, error) {
	key := historyKey(conversationID)

	raw, err := s.redis.Get(ctx, key).Bytes()
	if err == nil {
		var turns []models.Turn
		if jsonErr := json.Unmarshal(raw, &turns); jsonErr == nil {
			s.markHealthy()
			return capTurns(turns, s.cfg.MaxTurns), nil
		}
		// A stored value that no longer decodes is dropped rather than served.
		s.redis.Del(ctx, key)
		return nil, nil
	} else if err != redis.Nil {
		s.markDegraded(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.fallback.Get(conversationID)
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return capTurns(entry.turns, s.cfg.MaxTurns), nil
}

// Save persists the full turn list for conversationID, trimmed to
// cfg.MaxTurns, with the configured TTL.
func (s *Store) Save(ctx context.Context, conversationID string, turns []models.Turn) error {
	turns = capTurns(turns, s.cfg.MaxTurns)
	key := historyKey(conversationID)

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	ttl := s.cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		s.markDegraded(err)
	} else {
		s.markHealthy()
	}

	s.mu.Lock()
	s.fallback.Add(conversationID, &fallbackEntry{turns: turns, expiresAt: time.Now().Add(ttl)})
	s.mu.Unlock()

	return nil
}

// AppendTurn loads, appends, and saves in one call — the combined
// "save_history" operation the processor uses instead of two separate
// add_turn calls.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, userTurn, assistantTurn models.Turn) error {
	turns, err := s.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	turns = append(turns, userTurn, assistantTurn)
	return s.Save(ctx, conversationID, turns)
}

// Status reports whether the Redis tier is reachable.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

func (s *Store) markDegraded(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		s.logger.Warn("conversation store falling back to in-memory cache", map[string]interface{}{"error": err.Error()})
	}
	s.degraded = true
}

func (s *Store) markHealthy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = false
}

func capTurns(turns []models.Turn, max int) []models.Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}
