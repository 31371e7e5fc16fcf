// Package embed turns chunk text into fixed-dimension vectors in batches,
// with a hard per-batch deadline and all-or-nothing failure semantics.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"treeflow/internal/providers"
	"treeflow/internal/util"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 60 * time.Second
	defaultBatchDelay   = 200 * time.Millisecond
)

type Options struct {
	BatchSize    int
	BatchTimeout time.Duration
	BatchDelay   time.Duration
	Dimension    int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 || o.BatchSize > defaultBatchSize {
		o.BatchSize = defaultBatchSize
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = defaultBatchTimeout
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = defaultBatchDelay
	}
	if o.Dimension <= 0 {
		o.Dimension = 1536
	}
	return o
}

// Result carries the vectors in input order plus token accounting.
type Result struct {
	Vectors     [][]float32
	InputTokens int
	Batches     int
}

type Generator struct {
	provider providers.Provider
	retry    providers.RetryPolicy
	opts     Options
	logger   *zap.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGenerator(provider providers.Provider, retry providers.RetryPolicy, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		provider: provider,
		retry:    retry,
		opts:     opts.withDefaults(),
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Generate embeds all texts, preserving order. Any batch failure aborts the
// whole run; partial vectors are never returned.
func (g *Generator) Generate(ctx context.Context, texts []string) (*Result, error) {
	if len(texts) == 0 {
		return &Result{}, nil
	}
	res := &Result{Vectors: make([][]float32, 0, len(texts))}
	for start := 0; start < len(texts); start += g.opts.BatchSize {
		end := start + g.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if res.Batches > 0 && g.opts.BatchDelay > 0 {
			if err := g.sleep(ctx, g.opts.BatchDelay); err != nil {
				return nil, err
			}
		}

		vecs, err := g.embedBatch(ctx, batch)
		if err != nil {
			g.logger.Warn("embedding batch failed, aborting run",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			return nil, fmt.Errorf("embed batch %d: %w", res.Batches, err)
		}
		res.Vectors = append(res.Vectors, vecs...)
		res.Batches++
		for _, text := range batch {
			res.InputTokens += g.provider.EstimateTokens(text)
		}
	}
	return res, nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	bctx, cancel := context.WithTimeout(ctx, g.opts.BatchTimeout)
	defer cancel()

	var vecs [][]float32
	err := g.retry.Do(bctx, func(ctx context.Context) error {
		out, err := g.provider.Embed(ctx, providers.EmbedRequest{
			Operation: providers.OpEmbedChunks,
			Inputs:    batch,
			Dimension: g.opts.Dimension,
		})
		if err != nil {
			return err
		}
		if len(out) != len(batch) {
			return fmt.Errorf("provider returned %d vectors for %d inputs", len(out), len(batch))
		}
		for _, v := range out {
			if len(v) != g.opts.Dimension {
				return fmt.Errorf("%w: got %d, want %d", util.ErrEmbeddingDimension, len(v), g.opts.Dimension)
			}
		}
		vecs = out
		return nil
	})
	if err != nil {
		// Distinguish the hard batch cutoff from provider-side failures so
		// callers report it as a pipeline timeout rather than a model error.
		if errors.Is(err, context.DeadlineExceeded) || (bctx.Err() == context.DeadlineExceeded && ctx.Err() == nil) {
			return nil, &util.TimeoutError{Op: "embedding batch", Limit: g.opts.BatchTimeout}
		}
		return nil, err
	}
	return vecs, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
