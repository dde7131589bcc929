// Package models holds the gateway's persistent and in-flight domain types:
// conversations, messages, intent results, and the delivery worker's
// dead-letter records.
package models

import (
	"database/sql"
	"time"
)

// Conversation status values. A conversation is created active and never
// destroyed; only its status transitions.
const (
	ConversationActive  = "active"
	ConversationClosed  = "closed"
	ConversationPending = "pending"
	ConversationBlocked = "blocked"
)

// Message status values.
const (
	MessageReceived  = "received"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
	MessageFailed    = "failed"
)

// IntentType enumerates the conversation intents the Intent Analyzer can
// classify a message into.
type IntentType string

const (
	IntentGreeting       IntentType = "GREETING"
	IntentProductQuery   IntentType = "PRODUCT_QUERY"
	IntentProductDetails IntentType = "PRODUCT_DETAILS"
	IntentOrderStatus    IntentType = "ORDER_STATUS"
	IntentKnowledgeQuery IntentType = "KNOWLEDGE_QUERY"
	IntentFallback       IntentType = "FALLBACK"
)

// Entity is a single extracted entity (order id, product name, phone, email)
// with the matched text, used to boost intent scores and populate handler
// arguments.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IntentResult is the Intent Analyzer's verdict for one message.
type IntentResult struct {
	Intent     IntentType        `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   []Entity          `json:"entities"`
	Scores     map[IntentType]float64 `json:"scores,omitempty"`
}

// Turn is one exchange in a conversation's rolling history.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Intent    IntentType `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the top-level persisted thread for one customer on one
// platform, keyed by platform + external user id.
type Conversation struct {
	ID          string    `db:"id" json:"id"`
	Platform    string    `db:"platform" json:"platform"`
	ExternalID  string    `db:"external_id" json:"external_id"`
	Status      string    `db:"status" json:"status"`
	LastIntent  IntentType `db:"last_intent" json:"last_intent,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Message is one inbound or outbound wire message persisted for audit and
// reconciliation, distinct from the lightweight Turn kept in the rolling
// conversation history.
type Message struct {
	ID                string         `db:"id" json:"id"`
	ConversationID    string         `db:"conversation_id" json:"conversation_id"`
	Direction         string         `db:"direction" json:"direction"` // "inbound" or "outbound"
	Content           string         `db:"content" json:"content"`
	ExternalMessageID sql.NullString `db:"external_message_id" json:"external_message_id,omitempty"`
	Status            string         `db:"status" json:"status"`
	Dispatched        bool           `db:"dispatched" json:"dispatched"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// ProcessingResult is the AI Processor's output for one inbound message,
// returned to the internal API and, on the happy path, enqueued for
// delivery.
type ProcessingResult struct {
	ConversationID string     `json:"conversation_id"`
	Response       string     `json:"response"`
	Intent         IntentType `json:"intent"`
	Confidence     float64    `json:"confidence"`
	CacheHit       bool       `json:"cache_hit"`
	ProcessingTime time.Duration `json:"processing_time"`
	Error          string     `json:"error,omitempty"`
}

// DLQEntry records a delivery task that exhausted its retry budget, so it can
// be inspected and, where appropriate, retried out of band.
type DLQEntry struct {
	ID           string     `db:"id" json:"id"`
	TaskID       string     `db:"task_id" json:"task_id"`
	EventType    string     `db:"event_type" json:"event_type"`
	Payload      []byte     `db:"payload" json:"payload"`
	ErrorMessage string     `db:"error_message" json:"error_message"`
	RetryCount   int        `db:"retry_count" json:"retry_count"`
	LastRetryAt  *time.Time `db:"last_retry_at" json:"last_retry_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	Status       string     `db:"status" json:"status"` // "pending", "resolved", "abandoned"
}

// DeliveryTask is the unit of work handed from the Webhook Ingest to the
// Delivery Worker over the task queue.
type DeliveryTask struct {
	TaskID         string    `json:"task_id"`
	ConversationID string    `json:"conversation_id"`
	Platform       string    `json:"platform"`
	ExternalID     string    `json:"external_id"`
	MessageID      string    `json:"message_id"`
	Content        string    `json:"content"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	Attempt        int       `json:"attempt"`
}
