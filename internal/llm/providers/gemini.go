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

// GeminiProvider calls the Gemini generateContent and embedContent APIs.
type GeminiProvider struct {
	cfg        Config
	httpClient *http.Client
}

// NewGeminiProvider creates a GeminiProvider.
func NewGeminiProvider(cfg Config) *GeminiProvider {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{cfg: cfg, httpClient: newHTTPClient(cfg.RequestTimeout)}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Complete sends the conversation to Gemini's generateContent endpoint and
// returns the first candidate's text. A finish reason other than STOP, or an
// empty text, is reported as an AIServiceError.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.UserMessage}}})

	body := geminiGenerateRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.cfg.BaseURL, p.cfg.Model, p.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "read response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody))}
	}

	var parsed geminiGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "decode response: " + err.Error()}
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "blocked: " + parsed.PromptFeedback.BlockReason}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "empty response"}
	}

	candidate := parsed.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "finish reason: " + candidate.FinishReason}
	}
	if candidate.Content.Parts[0].Text == "" {
		return nil, &apperrors.AIServiceError{Provider: p.Name(), Reason: "empty response"}
	}

	return &CompletionResponse{
		Text:         candidate.Content.Parts[0].Text,
		Model:        p.cfg.Model,
		FinishReason: candidate.FinishReason,
	}, nil
}

type geminiEmbedRequest struct {
	Requests []geminiEmbedInstance `json:"requests"`
}

type geminiEmbedInstance struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed generates embedding vectors for a batch of texts via Gemini's
// batchEmbedContents endpoint.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := "models/text-embedding-004"
	requests := make([]geminiEmbedInstance, len(texts))
	for i, text := range texts {
		requests[i] = geminiEmbedInstance{
			Model:   model,
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}
	}

	payload, err := json.Marshal(geminiEmbedRequest{Requests: requests})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/models/text-embedding-004:batchEmbedContents?key=%s", p.cfg.BaseURL, p.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &apperrors.ExternalServiceError{Service: "gemini-embedding", IsRetryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apperrors.ExternalServiceError{Service: "gemini-embedding", StatusCode: resp.StatusCode, IsRetryable: resp.StatusCode >= 500, Err: fmt.Errorf("%s", string(respBody))}
	}

	var parsed geminiEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, e := range parsed.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
