package handlers

import (
	"context"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
)

// KnowledgeQueryThreshold is the similarity a top knowledge-base hit must
// clear before its text is returned directly; below it, the question is
// ambiguous enough to hand off to the LLM fallback instead of guessing.
const KnowledgeQueryThreshold = 0.8

// KnowledgeQueryHandler answers FAQ-style questions from the retriever's
// document set, delegating to the Fallback handler when no document is a
// confident enough match.
type KnowledgeQueryHandler struct {
	retriever *knowledge.Retriever
	fallback  Handler
}

// NewKnowledgeQueryHandler creates a KnowledgeQueryHandler.
func NewKnowledgeQueryHandler(retriever *knowledge.Retriever, fallback Handler) *KnowledgeQueryHandler {
	return &KnowledgeQueryHandler{retriever: retriever, fallback: fallback}
}

func (h *KnowledgeQueryHandler) Handle(ctx context.Context, req Request) (string, error) {
	results, err := h.retriever.Search(ctx, req.Message, 1)
	if err != nil {
		return h.fallback.Handle(ctx, req)
	}

	if len(results) == 0 || results[0].Similarity < KnowledgeQueryThreshold {
		return h.fallback.Handle(ctx, req)
	}

	return results[0].Document.Text, nil
}
