package models

import "time"

const (
	SourceStatusUploaded   = "uploaded"
	SourceStatusProcessing = "processing"
	SourceStatusCompleted  = "completed"
	SourceStatusFailed     = "failed"
)

type Source struct {
	SourceID     string    `json:"source_id"`
	OwnerID      string    `json:"owner_id"`
	Filename     string    `json:"filename"`
	SourceType   string    `json:"source_type"` // paper, spreadsheet, repository, text
	BlobPath     string    `json:"blob_path"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Chunk is immutable once created and belongs to exactly one source.
type Chunk struct {
	ChunkID       string            `json:"chunk_id"`
	SourceID      string            `json:"source_id"`
	OwnerID       string            `json:"owner_id"`
	ChunkIndex    int               `json:"chunk_index"`
	Text          string            `json:"text"`
	SourceType    string            `json:"source_type"`
	SourceRef     string            `json:"source_ref"`
	TokenEstimate int               `json:"token_estimate"`
	Embedding     []float32         `json:"embedding,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

type ExtractionJob struct {
	JobID        string    `json:"job_id"`
	OwnerID      string    `json:"owner_id"`
	TreeName     string    `json:"tree_name"`
	Provider     string    `json:"provider,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CostEstimate float64   `json:"cost_estimate"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	ProposalStatusProposed = "proposed"
	ProposalStatusAccepted = "accepted"
	ProposalStatusRejected = "rejected"
)

// ProposedNode wraps an extracted node payload with provenance and a review
// status; the payload stays opaque JSON until a reviewer accepts it.
type ProposedNode struct {
	ProposalID string    `json:"proposal_id"`
	JobID      string    `json:"job_id"`
	OwnerID    string    `json:"owner_id"`
	Title      string    `json:"title"`
	NodeType   string    `json:"node_type"`
	Status     string    `json:"status"`
	Confidence float64   `json:"confidence"`
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
}
