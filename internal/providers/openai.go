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

// OpenAIProvider is the default primary backend: mid-sized context, JSON
// mode, and hosted embeddings.
type OpenAIProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	model := strings.TrimSpace(os.Getenv("TREEFLOW_OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		keyName: keyName,
		apiKey:  resolveKey("OPENAI", keyName),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OpenAIProvider) Info() ModelInfo {
	return ModelInfo{
		Name:              "openai",
		Model:             o.model,
		MaxInputTokens:    128000,
		MaxOutputTokens:   16384,
		InputCostPerMTok:  0.15,
		OutputCostPerMTok: 0.60,
	}
}

func (o *OpenAIProvider) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func (o *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if o.apiKey == "" {
		return CompletionResponse{}, fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	payload := map[string]any{
		"model": o.model,
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
	body, err := postJSON(ctx, o.client, "openai", "https://api.openai.com/v1/chat/completions", o.apiKey, payload)
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
		return CompletionResponse{}, &ProviderError{Provider: "openai", Kind: KindMalformed, Message: "decode completion response: " + err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return CompletionResponse{}, &ProviderError{Provider: "openai", Kind: KindMalformed, Message: "empty choices"}
	}
	return CompletionResponse{
		Text:         parsed.Choices[0].Message.Content,
		StopReason:   parsed.Choices[0].FinishReason,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	payload := map[string]any{"model": "text-embedding-3-small", "input": req.Inputs}
	body, err := postJSON(ctx, o.client, "openai", "https://api.openai.com/v1/embeddings", o.apiKey, payload)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{Provider: "openai", Kind: KindMalformed, Message: "decode embedding response: " + err.Error()}
	}
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, matchDimension(d.Embedding, req.Dimension))
	}
	return out, nil
}

func resolveKey(provider, alias string) string {
	if alias != "" {
		if v := os.Getenv("TREEFLOW_" + provider + "_KEY_" + strings.ToUpper(alias)); v != "" {
			return v
		}
	}
	return os.Getenv(provider + "_API_KEY")
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
