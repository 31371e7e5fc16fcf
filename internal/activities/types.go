package activities

import (
	"treeflow/internal/analyze"
	"treeflow/internal/cluster"
	"treeflow/internal/docparse"
	"treeflow/internal/models"
	"treeflow/internal/score"
	"treeflow/internal/tree"
)

type UpdateSourceStatusInput struct {
	SourceID     string `json:"source_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type CheckCapacityInput struct {
	OwnerID string `json:"owner_id"`
}

type LoadSourceTextInput struct {
	SourceID string `json:"source_id"`
}

type LoadSourceTextOutput struct {
	Text  string `json:"text"`
	Pages int    `json:"pages,omitempty"`
}

type SegmentSourceInput struct {
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
}

type SegmentSourceOutput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksInput struct {
	Texts []string `json:"texts"`
}

type EmbedChunksOutput struct {
	Vectors     [][]float32 `json:"vectors"`
	InputTokens int         `json:"input_tokens"`
	Batches     int         `json:"batches"`
}

type UpsertChunksInput struct {
	Chunks  []models.Chunk `json:"chunks"`
	Vectors [][]float32    `json:"vectors"`
}

type CreateExtractionJobInput struct {
	OwnerID  string `json:"owner_id"`
	TreeName string `json:"tree_name"`
}

type CreateExtractionJobOutput struct {
	Job models.ExtractionJob `json:"job"`
}

type LoadDocumentsInput struct {
	OwnerID   string   `json:"owner_id"`
	SourceIDs []string `json:"source_ids"`
}

type LoadDocumentsOutput struct {
	Documents []docparse.ParsedDocument `json:"documents"`
}

type AnalyzeComplexityInput struct {
	Document docparse.ParsedDocument `json:"document"`
}

type AnalyzeComplexityOutput struct {
	Report analyze.Report `json:"report"`
}

type RunMultiPassInput struct {
	Job       models.ExtractionJob      `json:"job"`
	Documents []docparse.ParsedDocument `json:"documents"`
}

type RunMultiPassOutput struct {
	JobID        string          `json:"job_id"`
	NodeCount    int             `json:"node_count"`
	PhaseCount   int             `json:"phase_count"`
	CostEstimate float64         `json:"cost_estimate"`
	QualityScore float64         `json:"quality_score"`
	IsComplete   bool            `json:"is_complete"`
	Scores       score.Aggregate `json:"scores"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
}

type RunSingleDocumentInput struct {
	Job      models.ExtractionJob    `json:"job"`
	Document docparse.ParsedDocument `json:"document"`
	Hint     string                  `json:"hint,omitempty"`
}

type RunSingleDocumentOutput struct {
	JobID     string          `json:"job_id"`
	NodeCount int             `json:"node_count"`
	Strategy  string          `json:"strategy"`
	Scores    score.Aggregate `json:"scores"`
}

type FailJobInput struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

type ClusterChunksInput struct {
	OwnerID string          `json:"owner_id"`
	Options cluster.Options `json:"options"`
}

type ClusterChunksOutput struct {
	Clusters []cluster.Cluster `json:"clusters"`
}

type SynthesizeNodeInput struct {
	Chunks []models.Chunk `json:"chunks"`
	Hint   string         `json:"hint,omitempty"`
}

type SynthesizeNodeOutput struct {
	Node tree.Node `json:"node"`
}
