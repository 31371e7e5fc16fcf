package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treeflow/internal/providers"
	"treeflow/internal/tree"
)

func node(title, text string, confidence float64) tree.Node {
	return tree.Node{
		Title:      title,
		Content:    tree.NodeContent{Text: text},
		Type:       tree.NodeProtocol,
		Confidence: confidence,
	}
}

// newTestClient wires a Client to a scriptable mock backend with no real
// delays.
func newTestClient(t *testing.T, completeFn func(ctx context.Context, req providers.CompletionRequest) (providers.CompletionResponse, error)) (*Client, *providers.MockProvider) {
	t.Helper()
	manager, err := providers.NewManagerFromList("mock")
	require.NoError(t, err)
	mock, err := manager.ByName("mock")
	require.NoError(t, err)
	mp := mock.(*providers.MockProvider)
	mp.CompleteFn = completeFn

	tracker := providers.NewRateLimitTracker(nil)
	selector := providers.NewSelector("mock", "mock", 0, 0, tracker)
	retry := providers.RetryPolicy{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}
	return NewClient(manager, selector, tracker, retry, nil), mp
}

func TestClientObservesRateLimits(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(ctx context.Context, req providers.CompletionRequest) (providers.CompletionResponse, error) {
		calls++
		return providers.CompletionResponse{}, &providers.ProviderError{Provider: "mock", Status: 429, Kind: providers.KindRateLimit, Message: "slow down"}
	})

	_, err := client.DiscoverPhases(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, client.tracker.LimitedWithin("mock", time.Minute), "429 recorded before surfacing")
	assert.Greater(t, calls, 1, "rate limits are retried")
}

func TestClientSynthesizeNodeValidatesOutput(t *testing.T) {
	client, _ := newTestClient(t, func(ctx context.Context, req providers.CompletionRequest) (providers.CompletionResponse, error) {
		return providers.CompletionResponse{Text: `{"title": "Synth step", "content": {"text": "combined"}, "node_type": "bogus", "confidence": 2.0}`, StopReason: "stop"}, nil
	})

	n, err := client.SynthesizeNode(context.Background(), []string{"a", "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Synth step", n.Title)
	assert.Equal(t, 1.0, n.Confidence, "confidence clamped by repair")
}

func TestClientJudgeDuplicatesScalesSimilarity(t *testing.T) {
	client, _ := newTestClient(t, func(ctx context.Context, req providers.CompletionRequest) (providers.CompletionResponse, error) {
		return providers.CompletionResponse{Text: `{"is_duplicate": true, "similarity": 0.92, "reasoning": "same step"}`, StopReason: "stop"}, nil
	})

	v, err := client.JudgeDuplicates(context.Background(), node("A", "a", 0.5), node("B", "b", 0.5))
	require.NoError(t, err)
	assert.True(t, v.IsDuplicate)
	assert.InDelta(t, 92.0, v.Similarity, 0.01, "unit-interval similarity rescaled to 0-100")
}
