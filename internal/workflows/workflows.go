package workflows

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"treeflow/internal/activities"
	"treeflow/internal/analyze"
	"treeflow/internal/models"
)

const (
	QueryGetPreprocessStatus = "GetPreprocessStatus"
	QueryGetExtractionStatus = "GetExtractionStatus"
)

// SourcePreprocessWorkflow drives one uploaded source through capacity
// check, text extraction, segmentation, embedding, and chunk upsert.
// Known terminal conditions (quota, no extractable text) resolve to a
// "failed" result with the source row updated, never a workflow error.
func SourcePreprocessWorkflow(ctx workflow.Context, input SourcePreprocessInput) (string, error) {
	status := SourcePreprocessStatus{
		SourceID:    input.SourceID,
		OwnerID:     input.OwnerID,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetPreprocessStatus, func() (SourcePreprocessStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	failSource := func(reason string) {
		status.Status = "failed"
		status.FailReason = reason
		status.Steps[status.CurrentStep] = "failed"
		_ = workflow.ExecuteActivity(ctx, "UpdateSourceStatusActivity", activities.UpdateSourceStatusInput{
			SourceID:     input.SourceID,
			Status:       models.SourceStatusFailed,
			ErrorMessage: reason,
		}).Get(ctx, nil)
	}

	status.CurrentStep = "mark_processing"
	status.Steps[status.CurrentStep] = "processing"
	_ = workflow.ExecuteActivity(ctx, "UpdateSourceStatusActivity", activities.UpdateSourceStatusInput{
		SourceID: input.SourceID,
		Status:   models.SourceStatusProcessing,
	}).Get(ctx, nil)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "check_capacity"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "CheckCapacityActivity", activities.CheckCapacityInput{OwnerID: input.OwnerID}).Get(ctx, nil); err != nil {
		if isCapacityError(err) {
			failSource(err.Error())
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "load_text"
	status.Steps[status.CurrentStep] = "processing"
	var textOut activities.LoadSourceTextOutput
	if err := workflow.ExecuteActivity(ctx, "LoadSourceTextActivity", activities.LoadSourceTextInput{SourceID: input.SourceID}).Get(ctx, &textOut); err != nil {
		if isNoTextError(err) {
			failSource("no extractable text found in document")
			return status.Status, nil
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "segment"
	status.Steps[status.CurrentStep] = "processing"
	var segOut activities.SegmentSourceOutput
	if err := workflow.ExecuteActivity(ctx, "SegmentSourceActivity", activities.SegmentSourceInput{SourceID: input.SourceID, Text: textOut.Text}).Get(ctx, &segOut); err != nil {
		return "", err
	}
	if len(segOut.Chunks) == 0 {
		failSource("no extractable text found in document")
		return status.Status, nil
	}
	status.ChunkCount = len(segOut.Chunks)
	for _, c := range segOut.Chunks {
		status.TotalTokens += c.TokenEstimate
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed_chunks"
	status.Steps[status.CurrentStep] = "processing"
	texts := make([]string, 0, len(segOut.Chunks))
	for _, c := range segOut.Chunks {
		texts = append(texts, c.Text)
	}
	var embedOut activities.EmbedChunksOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", activities.EmbedChunksInput{Texts: texts}).Get(ctx, &embedOut); err != nil {
		failSource("embedding failed: " + err.Error())
		return status.Status, nil
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "upsert_chunks"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpsertChunksActivity", activities.UpsertChunksInput{Chunks: segOut.Chunks, Vectors: embedOut.Vectors}).Get(ctx, nil); err != nil {
		failSource("chunk upsert failed: " + err.Error())
		return status.Status, nil
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "mark_completed"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpdateSourceStatusActivity", activities.UpdateSourceStatusInput{
		SourceID: input.SourceID,
		Status:   models.SourceStatusCompleted,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = "completed"
	return status.Status, nil
}

// TreeExtractionWorkflow creates a job, loads the owner's documents, and
// runs either the multi-pass orchestrator (multiple documents or a
// comprehensive single one) or the single-document path. Extraction aborts
// from schema validation or discovery fail the job and resolve gracefully.
func TreeExtractionWorkflow(ctx workflow.Context, input TreeExtractionInput) (string, error) {
	status := TreeExtractionStatus{
		OwnerID:     input.OwnerID,
		CurrentStep: "init",
		Status:      "running",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetExtractionStatus, func() (TreeExtractionStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	status.CurrentStep = "create_job"
	status.Steps[status.CurrentStep] = "processing"
	var jobOut activities.CreateExtractionJobOutput
	if err := workflow.ExecuteActivity(ctx, "CreateExtractionJobActivity", activities.CreateExtractionJobInput{
		OwnerID:  input.OwnerID,
		TreeName: input.TreeName,
	}).Get(ctx, &jobOut); err != nil {
		return "", err
	}
	status.JobID = jobOut.Job.JobID
	status.Steps[status.CurrentStep] = "done"

	failJob := func(reason string) {
		status.Status = "failed"
		status.FailReason = reason
		status.Steps[status.CurrentStep] = "failed"
		_ = workflow.ExecuteActivity(ctx, "FailJobActivity", activities.FailJobInput{
			JobID:  jobOut.Job.JobID,
			Reason: reason,
		}).Get(ctx, nil)
	}

	status.CurrentStep = "load_documents"
	status.Steps[status.CurrentStep] = "processing"
	var docsOut activities.LoadDocumentsOutput
	if err := workflow.ExecuteActivity(ctx, "LoadDocumentsActivity", activities.LoadDocumentsInput{
		OwnerID:   input.OwnerID,
		SourceIDs: input.SourceIDs,
	}).Get(ctx, &docsOut); err != nil {
		failJob("document load failed: " + err.Error())
		return status.Status, nil
	}
	if len(docsOut.Documents) == 0 {
		failJob("no documents to extract from")
		return status.Status, nil
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "analyze"
	status.Steps[status.CurrentStep] = "processing"
	var analyzeOut activities.AnalyzeComplexityOutput
	if err := workflow.ExecuteActivity(ctx, "AnalyzeComplexityActivity", activities.AnalyzeComplexityInput{
		Document: docsOut.Documents[0],
	}).Get(ctx, &analyzeOut); err != nil {
		return "", err
	}
	status.Strategy = analyzeOut.Report.Strategy
	status.Steps[status.CurrentStep] = "done"

	multiPass := len(docsOut.Documents) > 1 || analyzeOut.Report.Strategy == analyze.StrategyComprehensive

	if multiPass {
		status.CurrentStep = "multi_pass_extraction"
		status.Steps[status.CurrentStep] = "processing"
		var runOut activities.RunMultiPassOutput
		if err := workflow.ExecuteActivity(ctx, "RunMultiPassActivity", activities.RunMultiPassInput{
			Job:       jobOut.Job,
			Documents: docsOut.Documents,
		}).Get(ctx, &runOut); err != nil {
			if isExtractionAbort(err) {
				failJob(err.Error())
				return status.Status, nil
			}
			return "", err
		}
		status.NodeCount = runOut.NodeCount
		status.CostEstimate = runOut.CostEstimate
		status.QualityScore = runOut.QualityScore
		status.Steps[status.CurrentStep] = "done"
	} else {
		status.CurrentStep = "single_document_extraction"
		status.Steps[status.CurrentStep] = "processing"
		var runOut activities.RunSingleDocumentOutput
		if err := workflow.ExecuteActivity(ctx, "RunSingleDocumentActivity", activities.RunSingleDocumentInput{
			Job:      jobOut.Job,
			Document: docsOut.Documents[0],
			Hint:     input.Hint,
		}).Get(ctx, &runOut); err != nil {
			if isExtractionAbort(err) {
				failJob(err.Error())
				return status.Status, nil
			}
			return "", err
		}
		status.NodeCount = runOut.NodeCount
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "done"
	status.Status = "completed"
	return status.Status, nil
}

func isCapacityError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "over capacity")
}

func isNoTextError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no extractable text")
}

// isExtractionAbort matches the terminal extraction failures: schema
// validation that survived the strict retry, discovery returning nothing,
// and hierarchical section majorities failing.
func isExtractionAbort(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "schema validation failed") ||
		strings.Contains(e, "discovery pass") ||
		strings.Contains(e, "section extractions failed")
}
