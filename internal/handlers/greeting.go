package handlers

import (
	"context"
)

// GreetingHandler replies to salutations without touching any dependency —
// the cheapest possible handler, and the one most requests hit first in a
// conversation.
type GreetingHandler struct{}

// NewGreetingHandler creates a GreetingHandler.
func NewGreetingHandler() *GreetingHandler { return &GreetingHandler{} }

func (h *GreetingHandler) Handle(ctx context.Context, req Request) (string, error) {
	if len(req.History) == 0 {
		return "Hi there! Welcome — how can I help you today?", nil
	}
	return "Hey, good to hear from you again! What can I help with?", nil
}
