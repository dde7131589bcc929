// Package handlers implements one Handler per intent the Intent Analyzer can
// produce, registered into a Registry the AI Processor dispatches through —
// no reflection, no handler-name strings outside this package.
package handlers

import (
	"context"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

// Request carries everything a handler needs to produce a reply.
type Request struct {
	Message  string
	Intent   models.IntentResult
	History  []models.Turn
}

// Handler produces a customer-facing reply for one intent.
type Handler interface {
	Handle(ctx context.Context, req Request) (string, error)
}

// Registry maps each intent to the handler that serves it.
type Registry struct {
	handlers map[models.IntentType]Handler
	fallback Handler
	logger   observability.Logger
}

// NewRegistry creates an empty Registry. Register each handler, then
// RegisterFallback for the intent-less catch-all.
func NewRegistry(logger observability.Logger) *Registry {
	return &Registry{handlers: make(map[models.IntentType]Handler), logger: logger.WithPrefix("handler-registry")}
}

// Register binds a handler to an intent.
func (r *Registry) Register(intent models.IntentType, h Handler) {
	r.handlers[intent] = h
}

// RegisterFallback sets the handler used when no intent-specific handler is
// registered, or the registered handler returns no usable response.
func (r *Registry) RegisterFallback(h Handler) {
	r.fallback = h
}

// Dispatch runs the handler registered for req.Intent.Intent. If none is
// registered, it goes straight to the fallback handler. If the registered
// handler errors — a dead e-commerce API, a provider timeout — the error is
// logged and Dispatch retries once via the fallback handler before giving
// up, so a single flaky dependency degrades to a generic reply instead of
// surfacing as a hard failure.
func (r *Registry) Dispatch(ctx context.Context, req Request) (string, error) {
	h, ok := r.handlers[req.Intent.Intent]
	if !ok {
		return r.dispatchFallback(ctx, req)
	}

	resp, err := h.Handle(ctx, req)
	if err == nil {
		return resp, nil
	}

	r.logger.Error("handler failed, retrying via fallback", map[string]interface{}{"intent": req.Intent.Intent, "error": err.Error()})
	resp, fallbackErr := r.dispatchFallback(ctx, req)
	if fallbackErr != nil {
		return "", fallbackErr
	}
	return resp, nil
}

func (r *Registry) dispatchFallback(ctx context.Context, req Request) (string, error) {
	if r.fallback == nil {
		return "", nil
	}
	return r.fallback.Handle(ctx, req)
}
