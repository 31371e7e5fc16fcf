// Package extract layers the typed extraction operations on top of the
// provider abstraction: prompt construction, provider selection, retry,
// response decoding, and schema validation.
package extract

import (
	"context"
	"time"

	"go.uber.org/zap"

	"treeflow/internal/dedup"
	"treeflow/internal/docparse"
	"treeflow/internal/providers"
	"treeflow/internal/tree"
)

// Usage is reported to the audit hook after every completed provider call.
type Usage struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Operation    string `json:"operation"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	DurationMs   int64  `json:"duration_ms"`
}

type AuditFunc func(ctx context.Context, u Usage, err error)

type Client struct {
	manager  *providers.Manager
	selector *providers.Selector
	tracker  *providers.RateLimitTracker
	retry    providers.RetryPolicy
	logger   *zap.Logger
	audit    AuditFunc
}

func NewClient(manager *providers.Manager, selector *providers.Selector, tracker *providers.RateLimitTracker, retry providers.RetryPolicy, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		manager:  manager,
		selector: selector,
		tracker:  tracker,
		retry:    retry,
		logger:   logger,
	}
}

// SetAudit installs the usage hook; pass nil to disable.
func (c *Client) SetAudit(fn AuditFunc) { c.audit = fn }

// chooseProvider resolves the selector's choice against what is actually
// configured, falling back to the default backend.
func (c *Client) chooseProvider(promptLen int) string {
	name := c.selector.Choose(promptLen / 4)
	if c.manager.Has(name) {
		return name
	}
	return c.manager.Default().Info().Name
}

// complete runs one provider call under the retry policy, decoding the JSON
// payload into out. A run that exhausts retries on a rate limit, or returns
// a truncated response, is re-issued once against the fallback provider.
func (c *Client) complete(ctx context.Context, op, system, prompt string, maxTokens int, out any) error {
	name := c.chooseProvider(len(prompt))
	err := c.completeOn(ctx, name, op, system, prompt, maxTokens, out)
	if err == nil {
		return nil
	}
	kind := providers.Classify(err)
	if kind != providers.KindRateLimit && kind != providers.KindQuota && kind != providers.KindTruncated {
		return err
	}
	alt := c.selector.FallbackFor(name)
	if alt == name || !c.manager.Has(alt) {
		return err
	}
	c.logger.Info("re-issuing call on fallback provider",
		zap.String("operation", op),
		zap.String("from", name),
		zap.String("to", alt),
		zap.String("reason", string(kind)))
	return c.completeOn(ctx, alt, op, system, prompt, maxTokens, out)
}

func (c *Client) completeOn(ctx context.Context, name, op, system, prompt string, maxTokens int, out any) error {
	p, err := c.manager.ByName(name)
	if err != nil {
		return err
	}
	retry := c.retry
	prevOnError := retry.OnError
	retry.OnError = func(err error) {
		c.tracker.Observe(name, err)
		if prevOnError != nil {
			prevOnError(err)
		}
	}

	req := providers.CompletionRequest{
		Operation: op,
		System:    system,
		Prompt:    prompt,
		MaxTokens: maxTokens,
		JSONMode:  true,
	}
	return retry.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		resp, err := p.Complete(ctx, req)
		if err == nil {
			err = decodePayload(name, resp, out)
		}
		if c.audit != nil {
			c.audit(ctx, Usage{
				Provider:     name,
				Model:        p.Info().Model,
				Operation:    op,
				InputTokens:  resp.InputTokens,
				OutputTokens: resp.OutputTokens,
				DurationMs:   time.Since(start).Milliseconds(),
			}, err)
		}
		return err
	})
}

// DiscoverPhases runs the discovery pass over the full document set.
func (c *Client) DiscoverPhases(ctx context.Context, docs []docparse.ParsedDocument) (*tree.DiscoveryResult, error) {
	var res tree.DiscoveryResult
	if err := c.complete(ctx, providers.OpDiscoverPhases, systemExtraction, discoveryPrompt(docs), 0, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PhaseRequest scopes one phase-extraction call.
type PhaseRequest struct {
	Phase     tree.Phase
	Docs      []docparse.ParsedDocument
	Checklist []tree.ContentItem
	// StrictFormat appends the explicit-formatting instruction used on the
	// single retry after a schema failure.
	StrictFormat bool
}

// ExtractPhase extracts validated nodes for one discovered phase.
func (c *Client) ExtractPhase(ctx context.Context, req PhaseRequest) ([]tree.Node, error) {
	var payload struct {
		Nodes []tree.Node `json:"nodes"`
	}
	prompt := phasePrompt(req.Phase, req.Docs, req.Checklist, req.StrictFormat)
	if err := c.complete(ctx, providers.OpExtractPhase, systemExtraction, prompt, 0, &payload); err != nil {
		return nil, err
	}
	return ValidateNodes(payload.Nodes)
}

// VerifyTree runs the verification pass over the inventory and all nodes.
func (c *Client) VerifyTree(ctx context.Context, inventory []tree.ContentItem, nodes []tree.Node) (*tree.VerificationResult, error) {
	var res tree.VerificationResult
	if err := c.complete(ctx, providers.OpVerifyTree, systemExtraction, verificationPrompt(inventory, nodes), 0, &res); err != nil {
		return nil, err
	}
	if res.QualityScore < 0 {
		res.QualityScore = 0
	} else if res.QualityScore > 10 {
		res.QualityScore = 10
	}
	return &res, nil
}

// ExtractWorkflow is the single-pass extraction used for ordinary documents.
func (c *Client) ExtractWorkflow(ctx context.Context, doc docparse.ParsedDocument, hint string) (*tree.Tree, error) {
	var t tree.Tree
	if err := c.complete(ctx, providers.OpExtractWorkflow, systemExtraction, workflowPrompt(doc, hint), 0, &t); err != nil {
		return nil, err
	}
	fixed, err := ValidateTree(t)
	if err != nil {
		return nil, err
	}
	return &fixed, nil
}

// ExtractOverview pulls a small high-level tree from top-level sections only.
func (c *Client) ExtractOverview(ctx context.Context, doc docparse.ParsedDocument, maxNodes int) (*tree.Tree, error) {
	var t tree.Tree
	if err := c.complete(ctx, providers.OpExtractWorkflow, systemExtraction, overviewPrompt(doc, maxNodes), 0, &t); err != nil {
		return nil, err
	}
	fixed, err := ValidateTree(t)
	if err != nil {
		return nil, err
	}
	return &fixed, nil
}

// ExtractSection extracts nodes from one document section.
func (c *Client) ExtractSection(ctx context.Context, docName string, sec docparse.Section) ([]tree.Node, error) {
	var payload struct {
		Nodes []tree.Node `json:"nodes"`
	}
	if err := c.complete(ctx, providers.OpExtractSection, systemExtraction, sectionPrompt(docName, sec), 0, &payload); err != nil {
		return nil, err
	}
	return ValidateNodes(payload.Nodes)
}

// JudgeDuplicates implements dedup.Judge.
func (c *Client) JudgeDuplicates(ctx context.Context, a, b tree.Node) (dedup.Verdict, error) {
	var payload struct {
		IsDuplicate bool    `json:"is_duplicate"`
		Duplicate   bool    `json:"duplicate"`
		Similarity  float64 `json:"similarity"`
		Reasoning   string  `json:"reasoning"`
		Reason      string  `json:"reason"`
	}
	if err := c.complete(ctx, providers.OpDedupJudge, systemExtraction, dedupJudgePrompt(a, b), 0, &payload); err != nil {
		return dedup.Verdict{}, err
	}
	v := dedup.Verdict{
		IsDuplicate: payload.IsDuplicate || payload.Duplicate,
		Similarity:  payload.Similarity,
		Reasoning:   payload.Reasoning,
	}
	if v.Reasoning == "" {
		v.Reasoning = payload.Reason
	}
	// Some backends answer confidence on [0,1] instead of 0-100.
	if v.Similarity > 0 && v.Similarity <= 1 {
		v.Similarity *= 100
	}
	return v, nil
}

// SynthesizeNode collapses related chunk texts into a single validated node.
func (c *Client) SynthesizeNode(ctx context.Context, texts []string, hint string) (*tree.Node, error) {
	var n tree.Node
	if err := c.complete(ctx, providers.OpSynthesizeNode, systemExtraction, synthesizePrompt(texts, hint), 0, &n); err != nil {
		return nil, err
	}
	fixed, err := ValidateNodes([]tree.Node{n})
	if err != nil {
		return nil, err
	}
	return &fixed[0], nil
}
