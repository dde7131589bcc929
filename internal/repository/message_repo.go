package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

// pqUniqueViolation is the Postgres SQLSTATE for a unique-constraint
// violation, raised when external_message_id collides with an already
// committed message.
const pqUniqueViolation = "23505"

// MessageRepository persists inbound/outbound Message rows.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert records one message within tx, returning its generated id. The
// webhook ingest path always persists the message before enqueuing a
// delivery task, so a crash between the two never loses the message.
// externalMessageID is nullable (empty means NULL, used for outbound
// messages); a collision against the unique index on external_message_id
// comes back as *apperrors.DuplicateEventError rather than a generic error,
// so the caller can map it to 409 instead of 500.
func (r *MessageRepository) Insert(ctx context.Context, tx *sqlx.Tx, conversationID, direction, content, externalMessageID string) (string, error) {
	const query = `
		INSERT INTO messages (conversation_id, direction, content, external_message_id, status, dispatched, created_at)
		VALUES ($1, $2, $3, $4, $5, false, NOW())
		RETURNING id`

	status := models.MessageReceived
	if direction == "outbound" {
		status = models.MessageSent
	}

	extID := sql.NullString{String: externalMessageID, Valid: externalMessageID != ""}

	var id string
	if err := tx.GetContext(ctx, &id, query, conversationID, direction, content, extID, status); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return "", &apperrors.DuplicateEventError{Reason: "external_message_id already recorded"}
		}
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// MarkDispatched flags a message as successfully delivered.
func (r *MessageRepository) MarkDispatched(ctx context.Context, messageID string) error {
	const query = `UPDATE messages SET dispatched = true, status = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, models.MessageDelivered, messageID); err != nil {
		return fmt.Errorf("mark message dispatched: %w", err)
	}
	return nil
}

// ListUndispatched returns messages committed more than staleness interval
// ago that never got marked dispatched, for the reconciliation sweep.
func (r *MessageRepository) ListUndispatched(ctx context.Context, limit int) ([]UndispatchedMessage, error) {
	const query = `
		SELECT id, conversation_id, content, created_at
		FROM messages
		WHERE dispatched = false AND direction = 'inbound' AND created_at < NOW() - INTERVAL '5 minutes'
		ORDER BY created_at ASC
		LIMIT $1`

	var rows []UndispatchedMessage
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list undispatched messages: %w", err)
	}
	return rows, nil
}

// UndispatchedMessage is a message the reconciliation job must re-enqueue.
type UndispatchedMessage struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}
