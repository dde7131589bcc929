package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/apperrors"
)

func TestGeminiProvider_Complete_ParsesCandidateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiGenerateResponse{}
		resp.Candidates = []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		}{
			{Content: geminiContent{Parts: []geminiPart{{Text: "hello from gemini"}}}, FinishReason: "STOP"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewGeminiProvider(Config{BaseURL: srv.URL, APIKey: "key", Model: "gemini-1.5-flash"})
	out, err := p.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello from gemini", out.Text)
	assert.Equal(t, "STOP", out.FinishReason)
}

func TestGeminiProvider_Complete_BlockedPromptReturnsAIServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiGenerateResponse{PromptFeedback: &struct {
			BlockReason string `json:"blockReason"`
		}{BlockReason: "SAFETY"}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewGeminiProvider(Config{BaseURL: srv.URL, APIKey: "key"})
	_, err := p.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
	require.Error(t, err)
	var aiErr *apperrors.AIServiceError
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, "gemini", aiErr.Provider)
}

func TestGeminiProvider_Embed_ReturnsVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := geminiEmbedResponse{Embeddings: []struct {
			Values []float32 `json:"values"`
		}{
			{Values: []float32{0.1, 0.2, 0.3}},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewGeminiProvider(Config{BaseURL: srv.URL, APIKey: "key"})
	out, err := p.Embed(context.Background(), []string{"doc one"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, out[0])
}

func TestGeminiProvider_Complete_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(Config{BaseURL: srv.URL, APIKey: "key"})
	_, err := p.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
	require.Error(t, err)
}
