package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"treeflow/internal/activities"
	"treeflow/internal/analyze"
	"treeflow/internal/docparse"
	"treeflow/internal/models"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerPreprocessActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "UpdateSourceStatusActivity", func(context.Context, activities.UpdateSourceStatusInput) error { return nil })
	registerActivityName(env, "CheckCapacityActivity", func(context.Context, activities.CheckCapacityInput) error { return nil })
	registerActivityName(env, "LoadSourceTextActivity", func(context.Context, activities.LoadSourceTextInput) (activities.LoadSourceTextOutput, error) {
		return activities.LoadSourceTextOutput{}, nil
	})
	registerActivityName(env, "SegmentSourceActivity", func(context.Context, activities.SegmentSourceInput) (activities.SegmentSourceOutput, error) {
		return activities.SegmentSourceOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) error { return nil })
}

func TestSourcePreprocessWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SourcePreprocessWorkflow)
	registerPreprocessActivities(env)

	chunks := []models.Chunk{
		{ChunkID: "c1", SourceID: "src1", OwnerID: "owner1", ChunkIndex: 0, Text: "first chunk", TokenEstimate: 3},
		{ChunkID: "c2", SourceID: "src1", OwnerID: "owner1", ChunkIndex: 1, Text: "second chunk", TokenEstimate: 3},
	}

	env.OnActivity("UpdateSourceStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("CheckCapacityActivity", mock.Anything, activities.CheckCapacityInput{OwnerID: "owner1"}).Return(nil)
	env.OnActivity("LoadSourceTextActivity", mock.Anything, activities.LoadSourceTextInput{SourceID: "src1"}).Return(activities.LoadSourceTextOutput{Text: "first chunk second chunk", Pages: 2}, nil)
	env.OnActivity("SegmentSourceActivity", mock.Anything, mock.Anything).Return(activities.SegmentSourceOutput{Chunks: chunks}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, activities.EmbedChunksInput{Texts: []string{"first chunk", "second chunk"}}).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}, {0.2}}, InputTokens: 6, Batches: 1}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(SourcePreprocessWorkflow, SourcePreprocessInput{SourceID: "src1", OwnerID: "owner1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)
}

func TestSourcePreprocessWorkflowCapacityFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SourcePreprocessWorkflow)
	registerPreprocessActivities(env)

	env.OnActivity("UpdateSourceStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("CheckCapacityActivity", mock.Anything, mock.Anything).Return(errors.New("owner owner1 over capacity: 50000 of 50000 chunks used"))

	env.ExecuteWorkflow(SourcePreprocessWorkflow, SourcePreprocessInput{SourceID: "src1", OwnerID: "owner1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestSourcePreprocessWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SourcePreprocessWorkflow)
	registerPreprocessActivities(env)

	env.OnActivity("UpdateSourceStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("CheckCapacityActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LoadSourceTextActivity", mock.Anything, mock.Anything).Return(activities.LoadSourceTextOutput{}, errors.New("no extractable text found in document"))

	env.ExecuteWorkflow(SourcePreprocessWorkflow, SourcePreprocessInput{SourceID: "src1", OwnerID: "owner1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func registerExtractionActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "CreateExtractionJobActivity", func(context.Context, activities.CreateExtractionJobInput) (activities.CreateExtractionJobOutput, error) {
		return activities.CreateExtractionJobOutput{}, nil
	})
	registerActivityName(env, "LoadDocumentsActivity", func(context.Context, activities.LoadDocumentsInput) (activities.LoadDocumentsOutput, error) {
		return activities.LoadDocumentsOutput{}, nil
	})
	registerActivityName(env, "AnalyzeComplexityActivity", func(context.Context, activities.AnalyzeComplexityInput) (activities.AnalyzeComplexityOutput, error) {
		return activities.AnalyzeComplexityOutput{}, nil
	})
	registerActivityName(env, "RunMultiPassActivity", func(context.Context, activities.RunMultiPassInput) (activities.RunMultiPassOutput, error) {
		return activities.RunMultiPassOutput{}, nil
	})
	registerActivityName(env, "RunSingleDocumentActivity", func(context.Context, activities.RunSingleDocumentInput) (activities.RunSingleDocumentOutput, error) {
		return activities.RunSingleDocumentOutput{}, nil
	})
	registerActivityName(env, "FailJobActivity", func(context.Context, activities.FailJobInput) error { return nil })
}

func twoTestDocuments() []docparse.ParsedDocument {
	return []docparse.ParsedDocument{
		{Name: "paper.pdf", Sections: []docparse.Section{{Title: "Methods", Content: "sample prep", Level: 1}}},
		{Name: "supplement.pdf", Sections: []docparse.Section{{Title: "Protocol", Content: "reagents", Level: 1}}},
	}
}

func TestTreeExtractionWorkflowMultiPass(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(TreeExtractionWorkflow)
	registerExtractionActivities(env)

	job := models.ExtractionJob{JobID: "job1", OwnerID: "owner1", TreeName: "My Tree", Status: models.JobStatusRunning}

	env.OnActivity("CreateExtractionJobActivity", mock.Anything, activities.CreateExtractionJobInput{OwnerID: "owner1", TreeName: "My Tree"}).Return(activities.CreateExtractionJobOutput{Job: job}, nil)
	env.OnActivity("LoadDocumentsActivity", mock.Anything, mock.Anything).Return(activities.LoadDocumentsOutput{Documents: twoTestDocuments()}, nil)
	env.OnActivity("AnalyzeComplexityActivity", mock.Anything, mock.Anything).Return(activities.AnalyzeComplexityOutput{Report: analyze.Report{Strategy: analyze.StrategyModerate}}, nil)
	env.OnActivity("RunMultiPassActivity", mock.Anything, mock.Anything).Return(activities.RunMultiPassOutput{JobID: "job1", NodeCount: 7, PhaseCount: 2, CostEstimate: 0.37, QualityScore: 8, IsComplete: true}, nil)

	env.ExecuteWorkflow(TreeExtractionWorkflow, TreeExtractionInput{OwnerID: "owner1", SourceIDs: []string{"s1", "s2"}, TreeName: "My Tree"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)
	env.AssertNotCalled(t, "RunSingleDocumentActivity", mock.Anything, mock.Anything)
}

func TestTreeExtractionWorkflowSingleDocument(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(TreeExtractionWorkflow)
	registerExtractionActivities(env)

	job := models.ExtractionJob{JobID: "job2", OwnerID: "owner1", TreeName: "Solo", Status: models.JobStatusRunning}
	docs := twoTestDocuments()[:1]

	env.OnActivity("CreateExtractionJobActivity", mock.Anything, mock.Anything).Return(activities.CreateExtractionJobOutput{Job: job}, nil)
	env.OnActivity("LoadDocumentsActivity", mock.Anything, mock.Anything).Return(activities.LoadDocumentsOutput{Documents: docs}, nil)
	env.OnActivity("AnalyzeComplexityActivity", mock.Anything, mock.Anything).Return(activities.AnalyzeComplexityOutput{Report: analyze.Report{Strategy: analyze.StrategySimple}}, nil)
	env.OnActivity("RunSingleDocumentActivity", mock.Anything, mock.Anything).Return(activities.RunSingleDocumentOutput{JobID: "job2", NodeCount: 4, Strategy: analyze.StrategySimple}, nil)

	env.ExecuteWorkflow(TreeExtractionWorkflow, TreeExtractionInput{OwnerID: "owner1", SourceIDs: []string{"s1"}, TreeName: "Solo"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)
	env.AssertNotCalled(t, "RunMultiPassActivity", mock.Anything, mock.Anything)
}

func TestTreeExtractionWorkflowValidationAbortFailsJob(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(TreeExtractionWorkflow)
	registerExtractionActivities(env)

	job := models.ExtractionJob{JobID: "job3", OwnerID: "owner1", TreeName: "Broken", Status: models.JobStatusRunning}

	env.OnActivity("CreateExtractionJobActivity", mock.Anything, mock.Anything).Return(activities.CreateExtractionJobOutput{Job: job}, nil)
	env.OnActivity("LoadDocumentsActivity", mock.Anything, mock.Anything).Return(activities.LoadDocumentsOutput{Documents: twoTestDocuments()}, nil)
	env.OnActivity("AnalyzeComplexityActivity", mock.Anything, mock.Anything).Return(activities.AnalyzeComplexityOutput{Report: analyze.Report{Strategy: analyze.StrategyComprehensive}}, nil)
	env.OnActivity("RunMultiPassActivity", mock.Anything, mock.Anything).Return(activities.RunMultiPassOutput{}, errors.New(`extract phase "Methods": schema validation failed: nodes[0].title: must be non-empty (got )`))
	env.OnActivity("FailJobActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(TreeExtractionWorkflow, TreeExtractionInput{OwnerID: "owner1", SourceIDs: []string{"s1", "s2"}, TreeName: "Broken"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
	env.AssertCalled(t, "FailJobActivity", mock.Anything, mock.Anything)
}
