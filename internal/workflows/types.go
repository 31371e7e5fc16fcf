package workflows

type SourcePreprocessInput struct {
	SourceID string `json:"source_id"`
	OwnerID  string `json:"owner_id"`
}

type TreeExtractionInput struct {
	OwnerID   string   `json:"owner_id"`
	SourceIDs []string `json:"source_ids"`
	TreeName  string   `json:"tree_name"`
	Hint      string   `json:"hint,omitempty"`
}

type SourcePreprocessStatus struct {
	SourceID    string            `json:"source_id"`
	OwnerID     string            `json:"owner_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	ChunkCount  int               `json:"chunk_count"`
	TotalTokens int               `json:"total_tokens"`
	Steps       map[string]string `json:"steps"`
}

type TreeExtractionStatus struct {
	JobID        string            `json:"job_id"`
	OwnerID      string            `json:"owner_id"`
	CurrentStep  string            `json:"current_step"`
	Status       string            `json:"status"`
	FailReason   string            `json:"fail_reason,omitempty"`
	Strategy     string            `json:"strategy,omitempty"`
	NodeCount    int               `json:"node_count"`
	CostEstimate float64           `json:"cost_estimate"`
	QualityScore float64           `json:"quality_score"`
	Steps        map[string]string `json:"steps"`
}
