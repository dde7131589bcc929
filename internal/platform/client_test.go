package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
)

func testBreaker() *resilience.CircuitBreaker {
	cfg := resilience.DefaultCircuitBreakerConfig("platform")
	cfg.FailureThreshold = 3
	cfg.ResetTimeout = time.Hour
	return resilience.NewCircuitBreaker(cfg, observability.NewNoopLogger(), nil)
}

func TestClient_Send_SucceedsWithMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "whatsapp", body.MessagingProduct)
		assert.Equal(t, "text", body.Type)
		assert.Equal(t, "+15551234567", body.To)
		assert.Equal(t, "hello", body.Text.Body)

		_ = json.NewEncoder(w).Encode(sendMessageResponse{Messages: []struct {
			ID string `json:"id"`
		}{{ID: "wamid.reply1"}}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testBreaker())
	err := c.Send(context.Background(), "whatsapp", "+15551234567", "hello")
	require.NoError(t, err)
}

func TestClient_Send_FailsWhenMessageIDMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testBreaker())
	err := c.Send(context.Background(), "whatsapp", "+15551234567", "hello")
	assert.Error(t, err)
}

func TestClient_Send_RateLimitIsRetryable(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testBreaker())
	err := c.Send(context.Background(), "whatsapp", "+15551234567", "hello")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	var svcErr *apperrors.ExternalServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.True(t, svcErr.IsRetryable)
}
