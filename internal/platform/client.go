// Package platform implements the gateway's outbound messaging client: the
// Delivery Worker's PlatformSender, posting replies back through the
// originating messaging platform's send-message API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
)

// Config configures the outbound platform API client.
type Config struct {
	BaseURL string
	Token   string
}

// Client sends replies through the messaging platform's API, wrapped in the
// circuit breaker passed to New.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.CircuitBreaker
}

// New creates a Client bound to the given circuit breaker instance.
func New(cfg Config, breaker *resilience.CircuitBreaker) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}, breaker: breaker}
}

// sendMessageRequest mirrors the platform's documented send-message body
// shape: {messaging_product, to, type: "text", text: {body}}.
type sendMessageRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type sendMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send delivers text to externalID over platform in a single attempt through
// the breaker; it does not retry. Transient failures (network errors, 429,
// 5xx) come back as retryable ExternalServiceErrors for the caller to retry.
// A response with no messages[0].id is treated as a failure even on a 2xx
// status, matching the platform's own success contract.
func (c *Client) Send(ctx context.Context, platform, externalID, text string) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		body := sendMessageRequest{MessagingProduct: platform, To: externalID, Type: "text"}
		body.Text.Body = text
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode platform send request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build platform send request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return &apperrors.ExternalServiceError{Service: "platform", IsRetryable: true, Err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &apperrors.ExternalServiceError{Service: "platform", IsRetryable: true, Err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return &apperrors.ExternalServiceError{Service: "platform", StatusCode: resp.StatusCode, IsRetryable: true, Err: fmt.Errorf("rate limited")}
		}
		if resp.StatusCode >= 300 {
			return &apperrors.ExternalServiceError{
				Service:     "platform",
				StatusCode:  resp.StatusCode,
				IsRetryable: resp.StatusCode >= 500,
				Err:         fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)),
			}
		}

		var parsed sendMessageResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("decode platform send response: %w", err)
		}
		if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
			return &apperrors.ExternalServiceError{Service: "platform", IsRetryable: false, Err: fmt.Errorf("response missing messages[0].id")}
		}
		return nil
	})
}
