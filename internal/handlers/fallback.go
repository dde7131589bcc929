package handlers

import (
	"context"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/llm/providers"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/resilience"
)

// MinResponseLength is the shortest LLM reply the FallbackHandler accepts: a
// shorter primary reply fails over to the secondary provider, and a shorter
// secondary reply is returned as an AIServiceError.
const MinResponseLength = 5

// SystemPrompt is the instruction every LLM call is grounded with.
const SystemPrompt = "You are a helpful customer support assistant for an online store. Be concise and friendly."

// FallbackHandler answers anything the other handlers don't own — and
// anything they delegate to it — by calling Gemini first and failing over
// to OpenAI when Gemini's circuit breaker is open or the call itself fails.
type FallbackHandler struct {
	primary        providers.Provider
	secondary      providers.Provider
	primaryBreaker *resilience.CircuitBreaker
	secondaryBreaker *resilience.CircuitBreaker
	logger         observability.Logger
}

// NewFallbackHandler creates a FallbackHandler.
func NewFallbackHandler(primary, secondary providers.Provider, primaryBreaker, secondaryBreaker *resilience.CircuitBreaker, logger observability.Logger) *FallbackHandler {
	return &FallbackHandler{
		primary:          primary,
		secondary:        secondary,
		primaryBreaker:   primaryBreaker,
		secondaryBreaker: secondaryBreaker,
		logger:           logger.WithPrefix("fallback-handler"),
	}
}

func (h *FallbackHandler) Handle(ctx context.Context, req Request) (string, error) {
	history := make([]providers.ChatMessage, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, providers.ChatMessage{Role: t.Role, Content: t.Content})
	}

	completionReq := providers.CompletionRequest{
		SystemPrompt: SystemPrompt,
		History:      history,
		UserMessage:  req.Message,
		MaxTokens:    512,
		Temperature:  0.4,
	}

	text, err := h.callThrough(ctx, h.primary, h.primaryBreaker, completionReq)
	if err == nil && len(text) >= MinResponseLength {
		return text, nil
	}
	if err != nil {
		h.logger.Warn("primary llm provider failed, trying secondary", map[string]interface{}{"error": err.Error()})
	}

	text, err = h.callThrough(ctx, h.secondary, h.secondaryBreaker, completionReq)
	if err != nil {
		return "", err
	}
	if len(text) < MinResponseLength {
		return "", &apperrors.AIServiceError{Provider: h.secondary.Name(), Reason: "response too short"}
	}
	return text, nil
}

func (h *FallbackHandler) callThrough(ctx context.Context, p providers.Provider, breaker *resilience.CircuitBreaker, req providers.CompletionRequest) (string, error) {
	var result string
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return err
		}
		result = resp.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
