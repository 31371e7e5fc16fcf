package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"treeflow/internal/analyze"
	"treeflow/internal/dedup"
	"treeflow/internal/docparse"
	"treeflow/internal/extract"
	"treeflow/internal/infer"
	"treeflow/internal/models"
	"treeflow/internal/score"
	"treeflow/internal/tree"
	"treeflow/internal/util"
)

type ExtractionResult struct {
	Tree      tree.Tree        `json:"tree"`
	Summary   tree.Summary     `json:"summary"`
	Report    analyze.Report   `json:"report"`
	Scores    score.Aggregate  `json:"scores"`
	Decisions []dedup.Decision `json:"dedup_decisions,omitempty"`
}

// AnalyzeDocument scores a parsed document for strategy and provider choice.
func (s *Service) AnalyzeDocument(doc docparse.ParsedDocument) analyze.Report {
	return analyze.Analyze(doc, analyze.Config{
		TokenThreshold:   s.cfg.PromptTokenThreshold,
		PrimaryProvider:  s.cfg.PrimaryProvider,
		FallbackProvider: s.cfg.FallbackProvider,
	})
}

// ExtractWorkflow extracts a tree from a single document, choosing between
// single-shot and hierarchical extraction from the complexity report, then
// refines it: dependency inference, confidence rescoring, deduplication.
func (s *Service) ExtractWorkflow(ctx context.Context, doc docparse.ParsedDocument, hint string) (*ExtractionResult, error) {
	report := s.AnalyzeDocument(doc)

	var t *tree.Tree
	var err error
	if report.Hierarchical {
		h := extract.NewHierarchicalExtractor(s.client, s.cfg.MaxConcurrentExtract, s.logger)
		t, err = h.Extract(ctx, doc)
	} else {
		t, err = s.client.ExtractWorkflow(ctx, doc, hint)
	}
	if err != nil {
		return nil, err
	}

	decisions, err := s.RefineTree(ctx, t)
	if err != nil {
		return nil, err
	}
	return &ExtractionResult{
		Tree:      *t,
		Summary:   tree.BuildSummary(*t),
		Report:    report,
		Scores:    s.aggregateTree(*t),
		Decisions: decisions,
	}, nil
}

type MultiPassRunResult struct {
	JobID        string                   `json:"job_id"`
	Result       *extract.MultiPassResult `json:"result"`
	Summary      tree.Summary             `json:"summary"`
	Scores       score.Aggregate          `json:"scores"`
	ArtifactPath string                   `json:"artifact_path,omitempty"`
}

// ExtractWorkflowMultiPass runs discovery, per-phase extraction, and
// verification over the document set for one owner, refines the assembled
// tree, persists proposals under a new job row, and writes the run artifact.
func (s *Service) ExtractWorkflowMultiPass(ctx context.Context, ownerID, treeName string, docs []docparse.ParsedDocument) (*MultiPassRunResult, error) {
	job, err := s.CreateJob(ctx, ownerID, treeName)
	if err != nil {
		return nil, err
	}
	out, err := s.RunMultiPass(ctx, job, docs)
	if err != nil {
		s.FailJob(ctx, job.JobID, err)
		return nil, err
	}
	return out, nil
}

// CreateJob inserts a running extraction job row.
func (s *Service) CreateJob(ctx context.Context, ownerID, treeName string) (models.ExtractionJob, error) {
	job := models.ExtractionJob{
		JobID:    uuid.NewString(),
		OwnerID:  ownerID,
		TreeName: treeName,
		Provider: s.cfg.PrimaryProvider,
		Status:   models.JobStatusRunning,
	}
	if err := s.jobs.InsertJob(ctx, job); err != nil {
		return models.ExtractionJob{}, fmt.Errorf("create extraction job: %w", err)
	}
	return job, nil
}

// RunMultiPass executes the three-pass orchestrator for an existing job and
// completes the job row on success.
func (s *Service) RunMultiPass(ctx context.Context, job models.ExtractionJob, docs []docparse.ParsedDocument) (*MultiPassRunResult, error) {
	ctx = WithAuditScope(ctx, job.OwnerID, job.JobID)

	o := extract.NewOrchestrator(s.client, s.cfg.MaxConcurrentExtract, s.logger)
	res, err := o.Run(ctx, docs)
	if err != nil {
		return nil, err
	}
	res.Tree.Name = job.TreeName

	if _, err := s.RefineTree(ctx, &res.Tree); err != nil {
		return nil, err
	}

	if err := s.PersistProposals(ctx, job, res.Tree); err != nil {
		return nil, err
	}
	if err := s.jobs.SetJobCost(ctx, job.JobID, res.CostEstimate); err != nil {
		s.logger.Warn("persist job cost", zap.String("job_id", job.JobID), zap.Error(err))
	}
	if err := s.jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusCompleted, ""); err != nil {
		s.logger.Warn("persist job status", zap.String("job_id", job.JobID), zap.Error(err))
	}

	out := &MultiPassRunResult{
		JobID:   job.JobID,
		Result:  res,
		Summary: tree.BuildSummary(res.Tree),
		Scores:  s.aggregateTree(res.Tree),
	}
	out.ArtifactPath = s.writeRunArtifact(job, out)
	return out, nil
}

// RunSingleDocument extracts from one document for an existing job and
// completes the job row on success.
func (s *Service) RunSingleDocument(ctx context.Context, job models.ExtractionJob, doc docparse.ParsedDocument, hint string) (*ExtractionResult, error) {
	ctx = WithAuditScope(ctx, job.OwnerID, job.JobID)

	res, err := s.ExtractWorkflow(ctx, doc, hint)
	if err != nil {
		return nil, err
	}
	res.Tree.Name = job.TreeName

	if err := s.PersistProposals(ctx, job, res.Tree); err != nil {
		return nil, err
	}
	if err := s.jobs.UpdateJobStatus(ctx, job.JobID, models.JobStatusCompleted, ""); err != nil {
		s.logger.Warn("persist job status", zap.String("job_id", job.JobID), zap.Error(err))
	}
	return res, nil
}

// FailJob records a terminal job failure, best effort.
func (s *Service) FailJob(ctx context.Context, jobID string, cause error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.jobs.UpdateJobStatus(sctx, jobID, models.JobStatusFailed, cause.Error()); err != nil {
		s.logger.Warn("persist job failure", zap.String("job_id", jobID), zap.Error(err))
	}
}

// RefineTree runs the post-extraction passes in place: rule-based dependency
// inference, confidence rescoring for nodes the model left unscored, and
// per-block deduplication with LLM escalation for the ambiguous band.
func (s *Service) RefineTree(ctx context.Context, t *tree.Tree) ([]dedup.Decision, error) {
	engine := dedup.NewEngine(s.client, s.logger)
	all := make([]dedup.Decision, 0)
	for bi := range t.Blocks {
		nodes := infer.Infer(t.Blocks[bi].Nodes)
		for ni := range nodes {
			s.rescoreNode(&nodes[ni])
		}
		deduped, decisions, err := engine.Dedupe(ctx, nodes)
		if err != nil {
			return nil, fmt.Errorf("dedupe block %q: %w", t.Blocks[bi].Name, err)
		}
		t.Blocks[bi].Nodes = deduped
		all = append(all, decisions...)
	}
	return all, nil
}

// rescoreNode assigns a factor-based confidence to nodes the extractor left
// at zero and flags anything under the review threshold.
func (s *Service) rescoreNode(n *tree.Node) {
	if n.Confidence == 0 {
		n.Confidence = score.Confidence(score.Factors{
			SourceCount:        len(n.Provenance.Sources) + len(n.Provenance.ChunkIDs),
			HasStructuredSteps: len(n.Content.Steps) > 0,
			HasParameters:      len(n.Parameters) > 0,
			NeedsVerification:  n.NeedsVerification,
		})
	}
	if n.Confidence < s.cfg.ReviewThreshold {
		n.NeedsVerification = true
	}
}

func (s *Service) aggregateTree(t tree.Tree) score.Aggregate {
	nodes := t.Nodes()
	scores := make([]float64, 0, len(nodes))
	for _, n := range nodes {
		scores = append(scores, n.Confidence)
	}
	return score.AggregateScores(scores, s.cfg.ReviewThreshold)
}

// PersistProposals stores every extracted node as a reviewable proposal.
func (s *Service) PersistProposals(ctx context.Context, job models.ExtractionJob, t tree.Tree) error {
	nodes := t.Nodes()
	proposals := make([]models.ProposedNode, 0, len(nodes))
	for _, n := range nodes {
		payload, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode proposal payload: %w", err)
		}
		proposals = append(proposals, models.ProposedNode{
			ProposalID: uuid.NewString(),
			JobID:      job.JobID,
			OwnerID:    job.OwnerID,
			Title:      n.Title,
			NodeType:   string(n.Type),
			Status:     models.ProposalStatusProposed,
			Confidence: n.Confidence,
			Payload:    payload,
		})
	}
	if len(proposals) == 0 {
		return nil
	}
	if err := s.proposals.InsertProposals(ctx, proposals); err != nil {
		return fmt.Errorf("persist proposals for job %s: %w", job.JobID, err)
	}
	return nil
}

// writeRunArtifact drops the full run result under the data-out root. A
// failed write costs the artifact, never the run.
func (s *Service) writeRunArtifact(job models.ExtractionJob, out *MultiPassRunResult) string {
	path := filepath.Join(s.cfg.DataOutRoot, job.OwnerID, "jobs", job.JobID, "result.json")
	if err := util.WriteJSONAtomic(path, out); err != nil {
		s.logger.Warn("write run artifact", zap.String("job_id", job.JobID), zap.Error(err))
		return ""
	}
	return path
}
