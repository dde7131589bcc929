package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

type stubHandler struct {
	response string
	err      error
}

func (s *stubHandler) Handle(ctx context.Context, req Request) (string, error) {
	return s.response, s.err
}

func TestRegistry_DispatchesToRegisteredHandler(t *testing.T) {
	r := NewRegistry(observability.NewNoopLogger())
	r.Register(models.IntentGreeting, &stubHandler{response: "hi!"})

	out, err := r.Dispatch(context.Background(), Request{Intent: models.IntentResult{Intent: models.IntentGreeting}})
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}

func TestRegistry_FallsBackWhenIntentUnregistered(t *testing.T) {
	r := NewRegistry(observability.NewNoopLogger())
	r.RegisterFallback(&stubHandler{response: "fallback reply"})

	out, err := r.Dispatch(context.Background(), Request{Intent: models.IntentResult{Intent: models.IntentFallback}})
	require.NoError(t, err)
	assert.Equal(t, "fallback reply", out)
}

func TestRegistry_RetriesViaFallbackWhenRegisteredHandlerErrors(t *testing.T) {
	r := NewRegistry(observability.NewNoopLogger())
	r.Register(models.IntentProductQuery, &stubHandler{err: errors.New("e-commerce API unreachable")})
	r.RegisterFallback(&stubHandler{response: "fallback reply"})

	out, err := r.Dispatch(context.Background(), Request{Intent: models.IntentResult{Intent: models.IntentProductQuery}})
	require.NoError(t, err)
	assert.Equal(t, "fallback reply", out)
}

func TestRegistry_ReturnsFallbackErrorWhenBothFail(t *testing.T) {
	r := NewRegistry(observability.NewNoopLogger())
	handlerErr := errors.New("e-commerce API unreachable")
	fallbackErr := errors.New("llm providers unreachable")
	r.Register(models.IntentProductQuery, &stubHandler{err: handlerErr})
	r.RegisterFallback(&stubHandler{err: fallbackErr})

	_, err := r.Dispatch(context.Background(), Request{Intent: models.IntentResult{Intent: models.IntentProductQuery}})
	require.Error(t, err)
	assert.Equal(t, fallbackErr, err)
}

func TestGreetingHandler_AlwaysReplies(t *testing.T) {
	h := NewGreetingHandler()
	out, err := h.Handle(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestGreetingHandler_DistinguishesFirstTimeFromReturning(t *testing.T) {
	h := NewGreetingHandler()

	firstTime, err := h.Handle(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)

	returning, err := h.Handle(context.Background(), Request{
		Message: "hi",
		History: []models.Turn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "Hi there!"}},
	})
	require.NoError(t, err)

	assert.NotEqual(t, firstTime, returning)
}
