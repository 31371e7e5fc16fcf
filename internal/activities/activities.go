package activities

import (
	"context"
	"fmt"

	"treeflow/internal/config"
	"treeflow/internal/logging"
	"treeflow/internal/pipeline"
	"treeflow/internal/storage"
)

type Activities struct {
	cfg config.Config
	svc *pipeline.Service
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	svc, err := pipeline.NewService(cfg, db, logger)
	if err != nil {
		return nil, err
	}
	return &Activities{cfg: cfg, svc: svc}, nil
}

func (a *Activities) UpdateSourceStatusActivity(ctx context.Context, in UpdateSourceStatusInput) error {
	return a.svc.UpdateSourceStatus(ctx, in.SourceID, in.Status, in.ErrorMessage)
}

func (a *Activities) CheckCapacityActivity(ctx context.Context, in CheckCapacityInput) error {
	return a.svc.CheckCapacity(ctx, in.OwnerID)
}

func (a *Activities) LoadSourceTextActivity(ctx context.Context, in LoadSourceTextInput) (LoadSourceTextOutput, error) {
	text, pages, err := a.svc.LoadSourceText(ctx, in.SourceID)
	if err != nil {
		return LoadSourceTextOutput{}, err
	}
	return LoadSourceTextOutput{Text: text, Pages: pages}, nil
}

func (a *Activities) SegmentSourceActivity(ctx context.Context, in SegmentSourceInput) (SegmentSourceOutput, error) {
	chunks, err := a.svc.SegmentSource(ctx, in.SourceID, in.Text)
	if err != nil {
		return SegmentSourceOutput{}, err
	}
	return SegmentSourceOutput{Chunks: chunks}, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	out, err := a.svc.EmbedTexts(ctx, in.Texts)
	if err != nil {
		return EmbedChunksOutput{}, err
	}
	return EmbedChunksOutput{Vectors: out.Vectors, InputTokens: out.InputTokens, Batches: out.Batches}, nil
}

func (a *Activities) UpsertChunksActivity(ctx context.Context, in UpsertChunksInput) error {
	return a.svc.StoreChunks(ctx, in.Chunks, in.Vectors)
}

func (a *Activities) CreateExtractionJobActivity(ctx context.Context, in CreateExtractionJobInput) (CreateExtractionJobOutput, error) {
	job, err := a.svc.CreateJob(ctx, in.OwnerID, in.TreeName)
	if err != nil {
		return CreateExtractionJobOutput{}, err
	}
	return CreateExtractionJobOutput{Job: job}, nil
}

func (a *Activities) LoadDocumentsActivity(ctx context.Context, in LoadDocumentsInput) (LoadDocumentsOutput, error) {
	docs, err := a.svc.LoadDocuments(ctx, in.OwnerID, in.SourceIDs)
	if err != nil {
		return LoadDocumentsOutput{}, err
	}
	return LoadDocumentsOutput{Documents: docs}, nil
}

func (a *Activities) AnalyzeComplexityActivity(ctx context.Context, in AnalyzeComplexityInput) (AnalyzeComplexityOutput, error) {
	_ = ctx
	return AnalyzeComplexityOutput{Report: a.svc.AnalyzeDocument(in.Document)}, nil
}

func (a *Activities) RunMultiPassActivity(ctx context.Context, in RunMultiPassInput) (RunMultiPassOutput, error) {
	out, err := a.svc.RunMultiPass(ctx, in.Job, in.Documents)
	if err != nil {
		return RunMultiPassOutput{}, err
	}
	res := RunMultiPassOutput{
		JobID:        out.JobID,
		NodeCount:    out.Result.NodeCount,
		PhaseCount:   out.Result.PhaseCount,
		CostEstimate: out.Result.CostEstimate,
		Scores:       out.Scores,
		ArtifactPath: out.ArtifactPath,
	}
	if v := out.Result.Verification; v != nil {
		res.QualityScore = v.QualityScore
		res.IsComplete = v.IsComplete
	}
	return res, nil
}

func (a *Activities) RunSingleDocumentActivity(ctx context.Context, in RunSingleDocumentInput) (RunSingleDocumentOutput, error) {
	res, err := a.svc.RunSingleDocument(ctx, in.Job, in.Document, in.Hint)
	if err != nil {
		return RunSingleDocumentOutput{}, err
	}
	return RunSingleDocumentOutput{
		JobID:     in.Job.JobID,
		NodeCount: res.Summary.TotalNodes,
		Strategy:  res.Report.Strategy,
		Scores:    res.Scores,
	}, nil
}

func (a *Activities) FailJobActivity(ctx context.Context, in FailJobInput) error {
	a.svc.FailJob(ctx, in.JobID, fmt.Errorf("%s", in.Reason))
	return nil
}

func (a *Activities) ClusterChunksActivity(ctx context.Context, in ClusterChunksInput) (ClusterChunksOutput, error) {
	clusters, err := a.svc.ClusterChunks(ctx, in.OwnerID, in.Options)
	if err != nil {
		return ClusterChunksOutput{}, err
	}
	return ClusterChunksOutput{Clusters: clusters}, nil
}

func (a *Activities) SynthesizeNodeActivity(ctx context.Context, in SynthesizeNodeInput) (SynthesizeNodeOutput, error) {
	node, err := a.svc.SynthesizeNode(ctx, in.Chunks, in.Hint)
	if err != nil {
		return SynthesizeNodeOutput{}, err
	}
	return SynthesizeNodeOutput{Node: *node}, nil
}
