package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/queue"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/repository"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/sanitizer"
)

const platformName = "whatsapp"

// Config holds the verify token used by the GET subscription challenge.
type Config struct {
	VerifyToken string
}

// Handler serves the public webhook verification and ingest endpoints.
type Handler struct {
	cfg          Config
	validator    *Validator
	deduper      *Deduper
	rateLimiter  *resilience.SlidingWindowLimiter
	sanitizer    *sanitizer.Sanitizer
	db           *sqlx.DB
	conversations *repository.ConversationRepository
	messages     *repository.MessageRepository
	queue        *queue.Queue
	logger       observability.Logger
}

// New creates a Handler.
func New(
	cfg Config,
	validator *Validator,
	deduper *Deduper,
	rateLimiter *resilience.SlidingWindowLimiter,
	san *sanitizer.Sanitizer,
	db *sqlx.DB,
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	q *queue.Queue,
	logger observability.Logger,
) *Handler {
	return &Handler{
		cfg:           cfg,
		validator:     validator,
		deduper:       deduper,
		rateLimiter:   rateLimiter,
		sanitizer:     san,
		db:            db,
		conversations: conversations,
		messages:      messages,
		queue:         q,
		logger:        logger.WithPrefix("webhook-handler"),
	}
}

// RegisterRoutes wires the verification and ingest endpoints onto router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhook", h.handleVerify).Methods(http.MethodGet)
	router.HandleFunc("/webhook", h.handleIngest).Methods(http.MethodPost)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("mode") == "subscribe" && q.Get("verify_token") == h.cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("challenge")))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read body"})
		return
	}
	defer r.Body.Close()

	if err := h.validator.VerifySignature(body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		h.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature verification failed"})
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}

	msg, err := extractMessage(payload)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if msg.StatusOnly || msg.NonTextIgnored {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "OK", "reason": "non_text_ignored"})
		return
	}

	if err := h.validator.CheckReplayWindow(msg.Timestamp); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	identifier := msg.From
	if identifier == "" {
		identifier = r.RemoteAddr
	}
	if err := h.rateLimiter.Allow(ctx, identifier); err != nil {
		h.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	duplicate, err := h.deduper.Seen(ctx, msg.ExternalID, msg.From)
	if err != nil {
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "dedup check failed"})
		return
	}
	if duplicate {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "OK", "reason": "duplicate_ignored"})
		return
	}

	text := h.sanitizer.Clean(msg.Text)
	if text == "" {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "empty message"})
		return
	}

	conversationID, messageID, err := h.persist(ctx, msg.From, msg.ExternalID, text)
	if err != nil {
		var dupErr *apperrors.DuplicateEventError
		if errors.As(err, &dupErr) {
			h.respondJSON(w, http.StatusConflict, map[string]string{"error": dupErr.Reason})
			return
		}
		h.logger.Error("failed to persist inbound message", map[string]interface{}{"error": err.Error()})
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "persistence failed"})
		return
	}

	task := models.DeliveryTask{
		TaskID:         uuid.NewString(),
		ConversationID: conversationID,
		Platform:       platformName,
		ExternalID:     msg.From,
		MessageID:      messageID,
		Content:        text,
	}
	if err := h.queue.Enqueue(ctx, task); err != nil {
		h.logger.Error("failed to enqueue delivery task after commit", map[string]interface{}{"conversation_id": conversationID, "error": err.Error()})
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// persist upserts the conversation and inserts the message within a single
// transaction, committing only once both succeed. A unique-constraint
// violation on externalMessageID surfaces as *apperrors.DuplicateEventError
// (unwrapped, not re-wrapped with fmt.Errorf) so the caller can map it to
// 409 instead of 500.
func (h *Handler) persist(ctx context.Context, phone, externalMessageID, text string) (conversationID, messageID string, err error) {
	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	conversationID, err = h.conversations.Upsert(ctx, tx, platformName, phone, "")
	if err != nil {
		return "", "", fmt.Errorf("upsert conversation: %w", err)
	}

	messageID, err = h.messages.Insert(ctx, tx, conversationID, "inbound", text, externalMessageID)
	if err != nil {
		var dupErr *apperrors.DuplicateEventError
		if errors.As(err, &dupErr) {
			return "", "", dupErr
		}
		return "", "", fmt.Errorf("insert message: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", "", fmt.Errorf("commit transaction: %w", err)
	}

	return conversationID, messageID, nil
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
