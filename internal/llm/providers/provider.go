// Package providers implements the gateway's LLM provider clients: Gemini as
// primary, OpenAI as fallback, each wrapped by its own circuit breaker so a
// provider outage degrades to the other instead of failing every request.
// Each provider is called once per request; a failed call is not retried
// against the same provider.
package providers

import (
	"context"
	"net/http"
	"time"
)

// ChatMessage is one turn of conversation history handed to a provider as
// prompt context.
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// CompletionRequest is a provider-agnostic chat completion request.
type CompletionRequest struct {
	SystemPrompt string
	History      []ChatMessage
	UserMessage  string
	MaxTokens    int
	Temperature  float64
}

// CompletionResponse is a provider-agnostic chat completion result.
type CompletionResponse struct {
	Text         string
	Model        string
	FinishReason string
}

// Provider is implemented by each LLM backend the Fallback handler can call.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// EmbeddingProvider is implemented by backends that can turn text into a
// fixed-dimension vector for the Knowledge Retriever.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config is shared HTTP client configuration across providers.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
