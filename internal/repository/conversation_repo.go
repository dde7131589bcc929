// Package repository implements Postgres-backed persistence for
// conversations, messages, and dead-lettered delivery tasks, via sqlx over
// lib/pq.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

// ConversationRepository persists Conversation rows.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a ConversationRepository.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Upsert inserts a new conversation with status=active or updates the
// existing one for (platform, external_id), returning the row's id. The
// unique index on (platform, external_id) is what actually enforces "at
// most one conversation per customer_phone" — status is only ever touched
// by an existing row's own transitions, never reset back to active here.
func (r *ConversationRepository) Upsert(ctx context.Context, tx *sqlx.Tx, platform, externalID string, lastIntent models.IntentType) (string, error) {
	const query = `
		INSERT INTO conversations (platform, external_id, status, last_intent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (platform, external_id) DO UPDATE
			SET last_intent = EXCLUDED.last_intent, updated_at = NOW()
		RETURNING id`

	var id string
	if err := tx.GetContext(ctx, &id, query, platform, externalID, models.ConversationActive, lastIntent); err != nil {
		return "", fmt.Errorf("upsert conversation: %w", err)
	}
	return id, nil
}

// GetByExternalID looks up a conversation by platform and external user id.
func (r *ConversationRepository) GetByExternalID(ctx context.Context, platform, externalID string) (*models.Conversation, error) {
	const query = `SELECT id, platform, external_id, status, last_intent, created_at, updated_at FROM conversations WHERE platform = $1 AND external_id = $2`

	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, platform, externalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// UpdateStatus transitions a conversation to a new status (e.g. closing it
// or marking it blocked), independent of message arrival.
func (r *ConversationRepository) UpdateStatus(ctx context.Context, conversationID, status string) error {
	const query = `UPDATE conversations SET status = $1, updated_at = NOW() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, status, conversationID); err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	return nil
}
