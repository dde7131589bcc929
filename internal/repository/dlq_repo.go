package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

// DLQRepository persists delivery tasks the worker could not complete after
// exhausting its retry budget.
type DLQRepository struct {
	db *sqlx.DB
}

// NewDLQRepository creates a DLQRepository.
func NewDLQRepository(db *sqlx.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// Insert records a failed task, returning its generated id.
func (r *DLQRepository) Insert(ctx context.Context, taskID, eventType string, payload []byte, errMsg string) (string, error) {
	const query = `
		INSERT INTO webhook_dlq (task_id, event_type, payload, error_message, retry_count, status, created_at)
		VALUES ($1, $2, $3, $4, 0, 'pending', NOW())
		RETURNING id`

	var id string
	if err := r.db.GetContext(ctx, &id, query, taskID, eventType, payload, errMsg); err != nil {
		return "", fmt.Errorf("insert dlq entry: %w", err)
	}
	return id, nil
}

// ListRetryable returns pending entries older than 5 minutes with fewer than
// 3 retries, matching the teacher worker's reconciliation window.
func (r *DLQRepository) ListRetryable(ctx context.Context, limit int) ([]models.DLQEntry, error) {
	const query = `
		SELECT id, task_id, event_type, payload, error_message, retry_count, last_retry_at, created_at, status
		FROM webhook_dlq
		WHERE status = 'pending' AND created_at < NOW() - INTERVAL '5 minutes' AND retry_count < 3
		ORDER BY created_at ASC
		LIMIT $1`

	var entries []models.DLQEntry
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list retryable dlq entries: %w", err)
	}
	return entries, nil
}

// MarkRetried increments the retry count and stamps last_retry_at.
func (r *DLQRepository) MarkRetried(ctx context.Context, id string) error {
	const query = `UPDATE webhook_dlq SET retry_count = retry_count + 1, last_retry_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("mark dlq retried: %w", err)
	}
	return nil
}

// MarkStatus transitions an entry to "resolved" or "abandoned".
func (r *DLQRepository) MarkStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE webhook_dlq SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("mark dlq status: %w", err)
	}
	return nil
}
