package providers

import (
	"context"
	"hash/fnv"
	"math"
)

// MockProvider returns deterministic, schema-valid output for every
// operation. Used in tests and as the default backend when no keys are
// configured.
type MockProvider struct {
	alias string

	// CompleteFn and EmbedFn override the canned behavior when set.
	CompleteFn func(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	EmbedFn    func(ctx context.Context, req EmbedRequest) ([][]float32, error)
}

func NewMockProvider(alias string) *MockProvider {
	return &MockProvider{alias: alias}
}

func (m *MockProvider) Info() ModelInfo {
	return ModelInfo{
		Name:            "mock",
		Model:           "mock-1",
		MaxInputTokens:  1000000,
		MaxOutputTokens: 65536,
	}
}

func (m *MockProvider) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, err
	}
	text, ok := cannedResponses[req.Operation]
	if !ok {
		text = cannedResponses[OpExtractWorkflow]
	}
	return CompletionResponse{
		Text:         text,
		StopReason:   "stop",
		InputTokens:  m.EstimateTokens(req.Prompt),
		OutputTokens: m.EstimateTokens(text),
	}, nil
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	if m.EmbedFn != nil {
		return m.EmbedFn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := req.Dimension
	if dim <= 0 {
		dim = 1536
	}
	out := make([][]float32, len(req.Inputs))
	for i, text := range req.Inputs {
		out[i] = deterministicVector(text, dim)
	}
	return out, nil
}

// deterministicVector builds a unit vector seeded by the input text, so the
// same chunk always embeds to the same point.
func deterministicVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<52) - 1.0
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

var cannedResponses = map[string]string{
	OpDiscoverPhases: `{
  "phases": [
    {"name": "Sample Preparation", "type": "protocol", "estimated_node_count": 3, "key_topics": ["buffers", "incubation"]},
    {"name": "Data Collection", "type": "data_creation", "estimated_node_count": 3, "key_topics": ["imaging"]},
    {"name": "Statistical Analysis", "type": "analysis", "estimated_node_count": 2, "key_topics": ["anova"]}
  ],
  "content_inventory": [
    {"name": "ANOVA", "item_type": "statistical_test", "phase": "Statistical Analysis"},
    {"name": "Figure 1", "item_type": "figure", "phase": "Data Collection"}
  ],
  "estimated_total_nodes": 8
}`,
	OpExtractPhase: `{
  "nodes": [
    {
      "title": "Prepare lysis buffer",
      "content": {"text": "Combine Tris-HCl and NaCl, adjust to pH 7.4.", "steps": ["Combine reagents", "Adjust pH"]},
      "node_type": "protocol",
      "dependencies": [],
      "parameters": {"ph": "7.4"},
      "confidence": 0.9
    },
    {
      "title": "Lyse cells",
      "content": {"text": "Incubate cells in lysis buffer for 30 minutes on ice."},
      "node_type": "protocol",
      "dependencies": [
        {"target_title": "Prepare lysis buffer", "dependency_type": "requires", "evidence_text": "in lysis buffer", "confidence": 0.85}
      ],
      "confidence": 0.85
    }
  ]
}`,
	OpVerifyTree: `{
  "is_complete": true,
  "missing_content": [],
  "misplaced_nodes": [],
  "duplicate_nodes": [],
  "suggestions": [],
  "quality_score": 8.5
}`,
	OpExtractWorkflow: `{
  "name": "Mock Workflow",
  "description": "Deterministic extraction output.",
  "blocks": [
    {
      "name": "Protocol Block",
      "block_type": "protocol",
      "position": 1,
      "nodes": [
        {
          "title": "Prepare samples",
          "content": {"text": "Prepare the experimental samples."},
          "node_type": "protocol",
          "confidence": 0.9
        }
      ]
    },
    {
      "name": "Analysis Block",
      "block_type": "analysis",
      "position": 3,
      "nodes": [
        {
          "title": "Run statistical analysis",
          "content": {"text": "Analyze the collected measurements."},
          "node_type": "analysis",
          "dependencies": [
            {"target_title": "Prepare samples", "dependency_type": "uses_output", "evidence_text": "collected measurements", "confidence": 0.8}
          ],
          "confidence": 0.8
        }
      ]
    }
  ]
}`,
	OpExtractSection: `{
  "nodes": [
    {
      "title": "Section extraction step",
      "content": {"text": "Single step extracted from a section."},
      "node_type": "protocol",
      "confidence": 0.8
    }
  ]
}`,
	OpDedupJudge: `{"duplicate": false, "confidence": 0.7, "reason": "steps differ in reagents"}`,
	OpSynthesizeNode: `{
  "title": "Synthesized step",
  "content": {"text": "Summary of the clustered chunks."},
  "node_type": "protocol",
  "confidence": 0.75
}`,
}
