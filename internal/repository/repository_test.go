package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock
}

func TestConversationRepository_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs("whatsapp", "user-1", models.ConversationActive, models.IntentGreeting).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("conv-1"))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	id, err := repo.Upsert(context.Background(), tx, "whatsapp", "user-1", models.IntentGreeting)
	require.NoError(t, err)
	require.Equal(t, "conv-1", id)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("conv-1", "inbound", "hello", sql.NullString{String: "wamid.abc", Valid: true}, models.MessageReceived).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-1"))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	id, err := repo.Insert(context.Background(), tx, "conv-1", "inbound", "hello", "wamid.abc")
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_Insert_DuplicateExternalIDReturnsDuplicateEventError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("conv-1", "inbound", "hello", sql.NullString{String: "wamid.abc", Valid: true}, models.MessageReceived).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)

	_, err = repo.Insert(context.Background(), tx, "conv-1", "inbound", "hello", "wamid.abc")
	require.Error(t, err)
	var dupErr *apperrors.DuplicateEventError
	require.ErrorAs(t, err, &dupErr)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDLQRepository(db)

	mock.ExpectQuery(`INSERT INTO webhook_dlq`).
		WithArgs("task-1", "message.send", []byte(`{"a":1}`), "boom").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("dlq-1"))

	id, err := repo.Insert(context.Background(), "task-1", "message.send", []byte(`{"a":1}`), "boom")
	require.NoError(t, err)
	require.Equal(t, "dlq-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQRepository_ListRetryable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDLQRepository(db)

	rows := sqlmock.NewRows([]string{"id", "task_id", "event_type", "payload", "error_message", "retry_count", "last_retry_at", "created_at", "status"}).
		AddRow("dlq-1", "task-1", "message.send", []byte(`{}`), "boom", 1, nil, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "pending")
	mock.ExpectQuery(`SELECT id, task_id, event_type, payload, error_message, retry_count, last_retry_at, created_at, status`).
		WillReturnRows(rows)

	entries, err := repo.ListRetryable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "dlq-1", entries[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
