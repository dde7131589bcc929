package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
)

// OpenAIProvider calls the Chat Completions API as the Fallback handler's
// second LLM, used when Gemini's circuit breaker is open or its call fails.
type OpenAIProvider struct {
	cfg        Config
	httpClient *http.Client
}

// NewOpenAIProvider creates an OpenAIProvider.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{cfg: cfg, httpClient: newHTTPClient(cfg.RequestTimeout)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation to OpenAI's chat completions endpoint.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]openAIMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, turn := range req.History {
		messages = append(messages, openAIMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.UserMessage})

	body := openAIChatRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "read response: " + err.Error()}
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "decode response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil {
			reason = parsed.Error.Message
		}
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: reason}
	}

	if len(parsed.Choices) == 0 {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "empty response"}
	}

	return &CompletionResponse{
		Text:         parsed.Choices[0].Message.Content,
		Model:        p.cfg.Model,
		FinishReason: parsed.Choices[0].FinishReason,
	}, nil
}
