package pipeline

import (
	"context"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

const (
	SourcePreprocessWorkflowName = "SourcePreprocessWorkflow"
	TreeExtractionWorkflowName   = "TreeExtractionWorkflow"
)

// TemporalStarter is the slice of client.Client the dispatcher uses.
type TemporalStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Dispatcher hands work to Temporal when it can and runs the same sequence
// in-process when it cannot. Inline runs return an empty workflow id.
type Dispatcher struct {
	temporal  TemporalStarter
	svc       *Service
	taskQueue string
	logger    *zap.Logger
}

func NewDispatcher(temporal TemporalStarter, svc *Service, taskQueue string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{temporal: temporal, svc: svc, taskQueue: taskQueue, logger: logger}
}

// preprocessDispatchInput mirrors workflows.SourcePreprocessInput; the
// dispatcher cannot import the workflows package without a cycle, so the two
// structs share json field names instead.
type preprocessDispatchInput struct {
	SourceID string `json:"source_id"`
	OwnerID  string `json:"owner_id"`
}

type extractionDispatchInput struct {
	OwnerID   string   `json:"owner_id"`
	SourceIDs []string `json:"source_ids"`
	TreeName  string   `json:"tree_name"`
	Hint      string   `json:"hint,omitempty"`
}

// DispatchPreprocess starts the preprocess workflow for a source. If the
// Temporal start fails the sequence runs synchronously here and the error
// (if any) comes from that inline run.
func (d *Dispatcher) DispatchPreprocess(ctx context.Context, sourceID, ownerID string) (string, error) {
	if d.temporal != nil {
		run, err := d.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        "preprocess-" + sourceID,
			TaskQueue: d.taskQueue,
		}, SourcePreprocessWorkflowName, preprocessDispatchInput{SourceID: sourceID, OwnerID: ownerID})
		if err == nil {
			return run.GetID(), nil
		}
		d.logger.Warn("temporal dispatch failed, running preprocess inline",
			zap.String("source_id", sourceID), zap.Error(err))
	}
	_, err := d.svc.Preprocess(ctx, sourceID, ownerID)
	return "", err
}

// DispatchExtraction starts the extraction workflow, falling back to an
// inline multi-pass run the same way.
func (d *Dispatcher) DispatchExtraction(ctx context.Context, ownerID, treeName string, sourceIDs []string) (string, error) {
	if d.temporal != nil {
		run, err := d.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			TaskQueue: d.taskQueue,
		}, TreeExtractionWorkflowName, extractionDispatchInput{OwnerID: ownerID, SourceIDs: sourceIDs, TreeName: treeName})
		if err == nil {
			return run.GetID(), nil
		}
		d.logger.Warn("temporal dispatch failed, running extraction inline",
			zap.String("owner_id", ownerID), zap.Error(err))
	}
	docs, err := d.svc.LoadDocuments(ctx, ownerID, sourceIDs)
	if err != nil {
		return "", err
	}
	_, err = d.svc.ExtractWorkflowMultiPass(ctx, ownerID, treeName, docs)
	return "", err
}
