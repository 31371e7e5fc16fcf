package providers

import "context"

// ModelInfo reports a backend's identity, token budgets, and nominal
// per-million-token costs for after-the-fact accounting.
type ModelInfo struct {
	Name              string  `json:"name"`
	Model             string  `json:"model"`
	MaxInputTokens    int     `json:"max_input_tokens"`
	MaxOutputTokens   int     `json:"max_output_tokens"`
	InputCostPerMTok  float64 `json:"input_cost_per_mtok"`
	OutputCostPerMTok float64 `json:"output_cost_per_mtok"`
}

// Operation names carried on requests, used for audit rows and for the
// mock backend's canned responses.
const (
	OpDiscoverPhases  = "discover_phases"
	OpExtractPhase    = "extract_phase"
	OpVerifyTree      = "verify_tree"
	OpExtractWorkflow = "extract_workflow"
	OpExtractSection  = "extract_section"
	OpDedupJudge      = "dedup_judge"
	OpSynthesizeNode  = "synthesize_node"
	OpEmbedChunks     = "embed_chunks"
)

type CompletionRequest struct {
	Operation string `json:"operation"`
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	JSONMode  bool   `json:"json_mode,omitempty"`
}

type CompletionResponse struct {
	Text         string `json:"text"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

// Provider is the single capability surface over interchangeable LLM
// backends. Typed extraction operations are layered on top by the extract
// package; callers wrap output-producing calls in the shared retry policy.
type Provider interface {
	Info() ModelInfo
	EstimateTokens(text string) int
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, error)
}
