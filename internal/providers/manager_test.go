package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("openai|groq:teamkey|mock")
	require.Len(t, refs, 3)
	assert.Equal(t, "openai", refs[0].Name)
	assert.Equal(t, "groq", refs[1].Name)
	assert.Equal(t, "teamkey", refs[1].KeyAlias)
	assert.Equal(t, "mock", refs[2].Name)

	refs = ParseProviderList("")
	require.Len(t, refs, 1)
	assert.Equal(t, "mock", refs[0].Name)
}

func TestManagerByName(t *testing.T) {
	m, err := NewManagerFromList("mock|ollama")
	require.NoError(t, err)

	p, err := m.ByName("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Info().Name)

	_, err = m.ByName("openai")
	assert.Error(t, err)
	assert.True(t, m.Has("ollama"))
	assert.False(t, m.Has("openai"))
}

func TestManagerRejectsUnknownProvider(t *testing.T) {
	_, err := NewManagerFromList("mock|anthropic")
	assert.Error(t, err)
}

func TestMockEmbeddingsAreDeterministic(t *testing.T) {
	p := NewMockProvider("")
	req := EmbedRequest{Operation: OpEmbedChunks, Inputs: []string{"alpha", "beta", "alpha"}, Dimension: 64}

	vecs, err := p.Embed(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2], "same text embeds to the same vector")
	assert.NotEqual(t, vecs[0], vecs[1])
	assert.Len(t, vecs[0], 64)
}

func TestMockCompleteReturnsOperationJSON(t *testing.T) {
	p := NewMockProvider("")

	resp, err := p.Complete(context.Background(), CompletionRequest{Operation: OpDiscoverPhases, Prompt: "doc"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "phases")
	assert.Equal(t, "stop", resp.StopReason)

	resp, err = p.Complete(context.Background(), CompletionRequest{Operation: OpVerifyTree, Prompt: "tree"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "quality_score")
}
