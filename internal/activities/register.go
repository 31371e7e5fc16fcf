package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.UpdateSourceStatusActivity)
	w.RegisterActivity(a.CheckCapacityActivity)
	w.RegisterActivity(a.LoadSourceTextActivity)
	w.RegisterActivity(a.SegmentSourceActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.UpsertChunksActivity)
	w.RegisterActivity(a.CreateExtractionJobActivity)
	w.RegisterActivity(a.LoadDocumentsActivity)
	w.RegisterActivity(a.AnalyzeComplexityActivity)
	w.RegisterActivity(a.RunMultiPassActivity)
	w.RegisterActivity(a.RunSingleDocumentActivity)
	w.RegisterActivity(a.FailJobActivity)
	w.RegisterActivity(a.ClusterChunksActivity)
	w.RegisterActivity(a.SynthesizeNodeActivity)
}
