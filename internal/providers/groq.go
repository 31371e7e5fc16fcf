package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// GroqProvider is the larger-context fallback backend, reached over Groq's
// OpenAI-compatible API.
type GroqProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *http.Client
}

func NewGroqProvider(keyName string) *GroqProvider {
	model := strings.TrimSpace(os.Getenv("TREEFLOW_GROQ_MODEL"))
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqProvider{
		keyName: keyName,
		apiKey:  resolveKey("GROQ", keyName),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *GroqProvider) Info() ModelInfo {
	return ModelInfo{
		Name:              "groq",
		Model:             g.model,
		MaxInputTokens:    1000000,
		MaxOutputTokens:   32768,
		InputCostPerMTok:  0.59,
		OutputCostPerMTok: 0.79,
	}
}

func (g *GroqProvider) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func (g *GroqProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if g.apiKey == "" {
		return CompletionResponse{}, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	payload := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	body, err := postJSON(ctx, g.client, "groq", "https://api.groq.com/openai/v1/chat/completions", g.apiKey, payload)
	if err != nil {
		return CompletionResponse{}, err
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CompletionResponse{}, &ProviderError{Provider: "groq", Kind: KindMalformed, Message: "decode completion response: " + err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return CompletionResponse{}, &ProviderError{Provider: "groq", Kind: KindMalformed, Message: "empty choices"}
	}
	return CompletionResponse{
		Text:         parsed.Choices[0].Message.Content,
		StopReason:   parsed.Choices[0].FinishReason,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// Embed is unsupported on Groq; embedding traffic goes to openai or ollama.
func (g *GroqProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	return nil, &ProviderError{Provider: "groq", Kind: KindPermanent, Message: "embeddings not supported"}
}
