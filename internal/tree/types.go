package tree

type NodeType string

const (
	NodeProtocol     NodeType = "protocol"
	NodeDataCreation NodeType = "data_creation"
	NodeAnalysis     NodeType = "analysis"
	NodeResults      NodeType = "results"
)

type DependencyType string

const (
	DepRequires   DependencyType = "requires"
	DepUsesOutput DependencyType = "uses_output"
	DepFollows    DependencyType = "follows"
	DepValidates  DependencyType = "validates"
)

// Dependency points at another node by title. Evidence is the phrase that
// triggered the link; MatchedVia identifies the rule or model that produced it.
type Dependency struct {
	TargetTitle string         `json:"target_title"`
	Type        DependencyType `json:"dependency_type"`
	Evidence    string         `json:"evidence_text,omitempty"`
	Confidence  float64        `json:"confidence"`
	MatchedVia  string         `json:"matched_via,omitempty"`
}

type Attachment struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	FileURL     string `json:"file_url,omitempty"`
}

type Link struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	LinkType    string `json:"link_type,omitempty"`
}

type Provenance struct {
	SourceFile string   `json:"source_file,omitempty"`
	PageStart  int      `json:"page_start,omitempty"`
	PageEnd    int      `json:"page_end,omitempty"`
	ChunkIDs   []string `json:"chunk_ids,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

type NodeContent struct {
	Text  string   `json:"text"`
	Steps []string `json:"steps,omitempty"`
}

// Node is one extracted experimental step. A non-empty SubtreeRef marks the
// node as a reference to a nested tree instead of a leaf step; resolution
// happens in a separate pass, never inline.
type Node struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Content           NodeContent       `json:"content"`
	Type              NodeType          `json:"node_type"`
	Status            string            `json:"status,omitempty"`
	Dependencies      []Dependency      `json:"dependencies,omitempty"`
	Attachments       []Attachment      `json:"attachments,omitempty"`
	Links             []Link            `json:"links,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Parameters        map[string]string `json:"parameters,omitempty"`
	Provenance        Provenance        `json:"provenance,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Confidence        float64           `json:"confidence"`
	NeedsVerification bool              `json:"needs_verification,omitempty"`
	SubtreeRef        string            `json:"subtree_ref,omitempty"`
}

type Block struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        NodeType `json:"block_type"`
	Position    int      `json:"position"`
	Nodes       []Node   `json:"nodes"`
}

type Tree struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	Blocks      []Block `json:"blocks"`
}

type Summary struct {
	TotalNodes        int            `json:"total_nodes"`
	TotalBlocks       int            `json:"total_blocks"`
	TotalDependencies int            `json:"total_dependencies"`
	TotalAttachments  int            `json:"total_attachments"`
	TotalLinks        int            `json:"total_links"`
	NodesByType       map[string]int `json:"nodes_by_type"`
	NodesByBlock      map[string]int `json:"nodes_by_block"`
}

type PageRange struct {
	Document string `json:"document"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

type Phase struct {
	Name               string      `json:"name"`
	Type               string      `json:"type"`
	SourceDocuments    []string    `json:"source_documents,omitempty"`
	PageRanges         []PageRange `json:"page_ranges,omitempty"`
	EstimatedNodeCount int         `json:"estimated_node_count"`
	KeyTopics          []string    `json:"key_topics,omitempty"`
}

// ContentItem is one explicitly mentioned artifact from the discovery
// inventory: statistical tests, models, datasets, figures, tables, software.
type ContentItem struct {
	Name     string `json:"name"`
	ItemType string `json:"item_type"`
	Phase    string `json:"phase,omitempty"`
}

type DiscoveryResult struct {
	Phases              []Phase       `json:"phases"`
	Inventory           []ContentItem `json:"content_inventory"`
	CrossReferences     []string      `json:"cross_references,omitempty"`
	EstimatedTotalNodes int           `json:"estimated_total_nodes"`
}

type MissingContent struct {
	Name           string `json:"name"`
	ItemType       string `json:"item_type"`
	SuggestedPhase string `json:"suggested_phase,omitempty"`
}

type MisplacedNode struct {
	Title     string `json:"title"`
	FromPhase string `json:"from_phase"`
	ToPhase   string `json:"to_phase"`
}

type DuplicatePair struct {
	TitleA           string  `json:"title_a"`
	TitleB           string  `json:"title_b"`
	Similarity       float64 `json:"similarity"`
	MergeRecommended bool    `json:"merge_recommended"`
}

type VerificationResult struct {
	IsComplete     bool             `json:"is_complete"`
	MissingContent []MissingContent `json:"missing_content,omitempty"`
	MisplacedNodes []MisplacedNode  `json:"misplaced_nodes,omitempty"`
	DuplicateNodes []DuplicatePair  `json:"duplicate_nodes,omitempty"`
	Suggestions    []string         `json:"suggestions,omitempty"`
	QualityScore   float64          `json:"quality_score"`
}
