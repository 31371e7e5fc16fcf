package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"

	"treeflow/internal/models"
)

type fakeWorkflowRun struct {
	id string
}

func (r *fakeWorkflowRun) GetID() string    { return r.id }
func (r *fakeWorkflowRun) GetRunID() string { return r.id + "-run" }
func (r *fakeWorkflowRun) Get(context.Context, interface{}) error {
	return nil
}
func (r *fakeWorkflowRun) GetWithOptions(context.Context, interface{}, client.WorkflowRunGetOptions) error {
	return nil
}

type fakeStarter struct {
	err     error
	started []string
}

func (f *fakeStarter) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, workflow interface{}, _ ...interface{}) (client.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	name, _ := workflow.(string)
	f.started = append(f.started, name)
	id := options.ID
	if id == "" {
		id = "generated"
	}
	return &fakeWorkflowRun{id: id}, nil
}

func TestDispatchPreprocessUsesTemporal(t *testing.T) {
	dir := t.TempDir()
	svc, stores := newTestService(t, testConfig(dir))
	starter := &fakeStarter{}
	d := NewDispatcher(starter, svc, "treeflow", nil)

	id, err := d.DispatchPreprocess(context.Background(), "src1", "owner1")
	require.NoError(t, err)
	require.Equal(t, "preprocess-src1", id)
	require.Equal(t, []string{SourcePreprocessWorkflowName}, starter.started)
	require.Empty(t, stores.sources.statuses, "temporal path must not run the pipeline inline")
}

func TestDispatchPreprocessFallsBackInline(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	svc, stores := newTestService(t, cfg)
	writeSourceBlob(t, dir, "doc.txt", "Enough text to run the inline preprocess path end to end.")
	stores.sources.sources["src1"] = models.Source{SourceID: "src1", OwnerID: "owner1", Filename: "doc.txt", SourceType: "text", BlobPath: "doc.txt"}

	starter := &fakeStarter{err: errors.New("connection refused")}
	d := NewDispatcher(starter, svc, "treeflow", nil)

	id, err := d.DispatchPreprocess(context.Background(), "src1", "owner1")
	require.NoError(t, err)
	require.Empty(t, id, "inline runs have no workflow id")
	require.NotEmpty(t, stores.chunks.stored)
	require.Equal(t, models.SourceStatusCompleted, stores.sources.statuses[len(stores.sources.statuses)-1])
}

func TestDispatchPreprocessNilTemporalRunsInline(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	svc, stores := newTestService(t, cfg)
	writeSourceBlob(t, dir, "doc.txt", "Another body of text for the no-temporal configuration.")
	stores.sources.sources["src1"] = models.Source{SourceID: "src1", OwnerID: "owner1", Filename: "doc.txt", SourceType: "text", BlobPath: "doc.txt"}

	d := NewDispatcher(nil, svc, "treeflow", nil)
	_, err := d.DispatchPreprocess(context.Background(), "src1", "owner1")
	require.NoError(t, err)
	require.NotEmpty(t, stores.chunks.stored)
}
