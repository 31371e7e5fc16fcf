package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treeflow/internal/providers"
	"treeflow/internal/util"
)

func noDelay(ctx context.Context, d time.Duration) error { return nil }

func fastRetry() providers.RetryPolicy {
	return providers.RetryPolicy{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "chunk text number " + string(rune('a'+i%26))
	}
	return out
}

func TestGenerateBatchesAndPreservesOrder(t *testing.T) {
	var batchSizes []int
	mock := providers.NewMockProvider("")
	mock.EmbedFn = func(ctx context.Context, req providers.EmbedRequest) ([][]float32, error) {
		batchSizes = append(batchSizes, len(req.Inputs))
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = make([]float32, req.Dimension)
			out[i][0] = float32(len(batchSizes)) // tag vectors with batch number
		}
		return out, nil
	}

	g := NewGenerator(mock, fastRetry(), Options{BatchSize: 10, Dimension: 8}, nil)
	g.sleep = noDelay

	res, err := g.Generate(context.Background(), texts(25))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10, 5}, batchSizes)
	assert.Equal(t, 3, res.Batches)
	require.Len(t, res.Vectors, 25)
	assert.Equal(t, float32(1), res.Vectors[0][0])
	assert.Equal(t, float32(3), res.Vectors[24][0])
	assert.Positive(t, res.InputTokens)
}

func TestGenerateAbortsWholeRunOnBatchFailure(t *testing.T) {
	calls := 0
	mock := providers.NewMockProvider("")
	mock.EmbedFn = func(ctx context.Context, req providers.EmbedRequest) ([][]float32, error) {
		calls++
		if calls > 1 {
			return nil, &providers.ProviderError{Provider: "mock", Status: 400, Kind: providers.KindPermanent, Message: "bad batch"}
		}
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = make([]float32, req.Dimension)
		}
		return out, nil
	}

	g := NewGenerator(mock, fastRetry(), Options{BatchSize: 10, Dimension: 8}, nil)
	g.sleep = noDelay

	res, err := g.Generate(context.Background(), texts(25))
	require.Error(t, err)
	assert.Nil(t, res, "no partial vectors on failure")
}

func TestGenerateRejectsDimensionMismatch(t *testing.T) {
	mock := providers.NewMockProvider("")
	mock.EmbedFn = func(ctx context.Context, req providers.EmbedRequest) ([][]float32, error) {
		return [][]float32{make([]float32, 4)}, nil
	}

	g := NewGenerator(mock, fastRetry(), Options{BatchSize: 10, Dimension: 8}, nil)
	g.sleep = noDelay

	_, err := g.Generate(context.Background(), []string{"one"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrEmbeddingDimension))
}

func TestGenerateBatchTimeoutIsTyped(t *testing.T) {
	mock := providers.NewMockProvider("")
	mock.EmbedFn = func(ctx context.Context, req providers.EmbedRequest) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	g := NewGenerator(mock, providers.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}, Options{BatchSize: 10, BatchTimeout: 20 * time.Millisecond, Dimension: 8}, nil)
	g.sleep = noDelay

	_, err := g.Generate(context.Background(), []string{"one"})
	require.Error(t, err)
	assert.True(t, util.IsTimeout(err), "hard cutoff surfaces as a timeout, got: %v", err)
}

func TestGenerateEmptyInput(t *testing.T) {
	g := NewGenerator(providers.NewMockProvider(""), fastRetry(), Options{}, nil)
	res, err := g.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Vectors)
	assert.Zero(t, res.Batches)
}

func TestGenerateDelaysBetweenBatches(t *testing.T) {
	var delays []time.Duration
	mock := providers.NewMockProvider("")

	g := NewGenerator(mock, fastRetry(), Options{BatchSize: 5, BatchDelay: 50 * time.Millisecond, Dimension: 16}, nil)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := g.Generate(context.Background(), texts(12))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, delays, "no delay before the first batch")
}
