package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaProvider serves local, free generation and embeddings.
type OllamaProvider struct {
	alias      string
	baseURL    string
	model      string
	embedModel string
	client     *http.Client
}

func NewOllamaProvider(alias string) *OllamaProvider {
	baseURL := strings.TrimSpace(os.Getenv("TREEFLOW_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := strings.TrimSpace(os.Getenv("TREEFLOW_OLLAMA_MODEL"))
	if model == "" {
		model = "llama3.1"
	}
	embedModel := strings.TrimSpace(os.Getenv("TREEFLOW_OLLAMA_EMBED_MODEL"))
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &OllamaProvider{
		alias:      alias,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Timeout: 180 * time.Second},
	}
}

func (o *OllamaProvider) Info() ModelInfo {
	return ModelInfo{
		Name:            "ollama",
		Model:           o.model,
		MaxInputTokens:  32768,
		MaxOutputTokens: 8192,
	}
}

func (o *OllamaProvider) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func (o *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	payload := map[string]any{
		"model":  o.model,
		"system": req.System,
		"prompt": req.Prompt,
		"stream": false,
	}
	if req.JSONMode {
		payload["format"] = "json"
	}
	body, err := postJSON(ctx, o.client, "ollama", o.baseURL+"/api/generate", "", payload)
	if err != nil {
		return CompletionResponse{}, err
	}
	var parsed struct {
		Response   string `json:"response"`
		DoneReason string `json:"done_reason"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CompletionResponse{}, &ProviderError{Provider: "ollama", Kind: KindMalformed, Message: "decode generate response: " + err.Error()}
	}
	return CompletionResponse{Text: parsed.Response, StopReason: parsed.DoneReason}, nil
}

func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		payload := map[string]any{"model": o.embedModel, "prompt": text}
		body, err := postJSON(ctx, o.client, "ollama", o.baseURL+"/api/embeddings", "", payload)
		if err != nil {
			return nil, err
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &ProviderError{Provider: "ollama", Kind: KindMalformed, Message: "decode embedding response: " + err.Error()}
		}
		if len(parsed.Embedding) == 0 {
			return nil, &ProviderError{Provider: "ollama", Kind: KindMalformed, Message: "empty embedding"}
		}
		out = append(out, matchDimension(parsed.Embedding, req.Dimension))
	}
	return out, nil
}
