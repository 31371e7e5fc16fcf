// Package pipeline exposes the document-to-tree operations the workflows and
// the synchronous fallback path both execute: preprocess, extraction,
// clustering, and node synthesis.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"treeflow/internal/config"
	"treeflow/internal/embed"
	"treeflow/internal/extract"
	"treeflow/internal/models"
	"treeflow/internal/providers"
	"treeflow/internal/storage"
)

// SourceStore is the subset of storage.SourceRepo the pipeline needs.
type SourceStore interface {
	GetSource(ctx context.Context, sourceID string) (models.Source, error)
	UpdateStatus(ctx context.Context, sourceID, status, errorMessage string) error
}

type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error
	ListChunksByOwner(ctx context.Context, ownerID string) ([]models.Chunk, error)
	CountChunksByOwner(ctx context.Context, ownerID string) (int, error)
}

type JobStore interface {
	InsertJob(ctx context.Context, j models.ExtractionJob) error
	UpdateJobStatus(ctx context.Context, jobID, status, errorMessage string) error
	SetJobCost(ctx context.Context, jobID string, cost float64) error
}

type ProposalStore interface {
	InsertProposals(ctx context.Context, proposals []models.ProposedNode) error
}

type AuditStore interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

type Service struct {
	cfg    config.Config
	logger *zap.Logger

	sources   SourceStore
	chunks    ChunkStore
	jobs      JobStore
	proposals ProposalStore
	audit     AuditStore

	tracker  *providers.RateLimitTracker
	client   *extract.Client
	embedder *embed.Generator
}

// NewService wires the pg-backed repositories and the provider stack from
// config. The extract client audits every provider call into the llm_calls
// table; audit failures are logged, never fatal.
func NewService(cfg config.Config, db *storage.DB, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	llms, err := providers.NewManagerFromList(cfg.LLMProviders)
	if err != nil {
		return nil, fmt.Errorf("build llm providers: %w", err)
	}
	embedders, err := providers.NewManagerFromList(cfg.EmbedProviders)
	if err != nil {
		return nil, fmt.Errorf("build embed providers: %w", err)
	}

	tracker := providers.NewRateLimitTracker(time.Now)
	window := time.Duration(cfg.RateLimitWindowSecs) * time.Second
	selector := providers.NewSelector(cfg.PrimaryProvider, cfg.FallbackProvider, cfg.PromptTokenThreshold, window, tracker)

	svc := &Service{
		cfg:       cfg,
		logger:    logger,
		sources:   storage.NewSourceRepo(db),
		chunks:    storage.NewChunkRepo(db),
		jobs:      storage.NewJobRepo(db),
		proposals: storage.NewNodeRepo(db),
		audit:     storage.NewLLMAuditRepo(db),
		tracker:   tracker,
	}

	svc.client = extract.NewClient(llms, selector, tracker, providers.RetryPolicy{}, logger)
	svc.client.SetAudit(svc.auditCall)

	svc.embedder = embed.NewGenerator(embedders.Default(), providers.RetryPolicy{}, embed.Options{
		BatchSize:    cfg.EmbedBatchSize,
		BatchTimeout: time.Duration(cfg.EmbedTimeoutSecs) * time.Second,
		BatchDelay:   time.Duration(cfg.EmbedBatchDelayMs) * time.Millisecond,
		Dimension:    cfg.EmbedDim,
	}, logger)

	return svc, nil
}

// Client exposes the shared extract client for callers that need the typed
// operations directly.
func (s *Service) Client() *extract.Client { return s.client }
