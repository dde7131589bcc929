package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

// dedupTTL is how long a seen external message id is remembered.
const dedupTTL = 300 * time.Second

// Deduper atomically marks an external message id as seen via Redis
// SET-if-not-exists, so a redelivered webhook is processed at most once.
type Deduper struct {
	client *redis.Client
	strict bool
	logger observability.Logger
}

// NewDeduper creates a Deduper. strict mirrors STRICT_REDIS_DEDUP: when
// true, a Redis outage fails closed (treats every message as a duplicate is
// unacceptable, so instead it surfaces an error); when false (the default)
// a Redis outage fails open and processing proceeds without dedup.
func NewDeduper(client *redis.Client, strict bool, logger observability.Logger) *Deduper {
	return &Deduper{client: client, strict: strict, logger: logger.WithPrefix("webhook-dedup")}
}

func dedupKey(externalMessageID, phone string) string {
	return fmt.Sprintf("webhook_seen:%s:%s", externalMessageID, phone)
}

// Seen reports whether this (externalMessageID, phone) pair was already
// processed. On Redis failure it fails open (returns false, nil) unless
// strict mode is set, in which case it returns the error.
func (d *Deduper) Seen(ctx context.Context, externalMessageID, phone string) (bool, error) {
	key := dedupKey(externalMessageID, phone)

	set, err := d.client.SetNX(ctx, key, "1", dedupTTL).Result()
	if err != nil {
		if d.strict {
			return false, fmt.Errorf("dedup check unavailable (strict mode): %w", err)
		}
		d.logger.Warn("dedup check failed, failing open", map[string]interface{}{"error": err.Error()})
		return false, nil
	}

	return !set, nil
}
