package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"treeflow/internal/cluster"
	"treeflow/internal/config"
	"treeflow/internal/docparse"
	"treeflow/internal/embed"
	"treeflow/internal/extract"
	"treeflow/internal/models"
	"treeflow/internal/providers"
	"treeflow/internal/storage"
	"treeflow/internal/util"
)

type fakeSourceStore struct {
	sources  map[string]models.Source
	statuses []string
	messages []string
}

func (f *fakeSourceStore) GetSource(_ context.Context, sourceID string) (models.Source, error) {
	src, ok := f.sources[sourceID]
	if !ok {
		return models.Source{}, util.ErrNotFound
	}
	return src, nil
}

func (f *fakeSourceStore) UpdateStatus(_ context.Context, _, status, errorMessage string) error {
	f.statuses = append(f.statuses, status)
	f.messages = append(f.messages, errorMessage)
	return nil
}

type fakeChunkStore struct {
	count    int
	stored   []models.Chunk
	existing []models.Chunk
}

func (f *fakeChunkStore) UpsertChunks(_ context.Context, chunks []models.Chunk) error {
	f.stored = append(f.stored, chunks...)
	return nil
}

func (f *fakeChunkStore) ListChunksByOwner(_ context.Context, _ string) ([]models.Chunk, error) {
	return f.existing, nil
}

func (f *fakeChunkStore) CountChunksByOwner(_ context.Context, _ string) (int, error) {
	return f.count, nil
}

type fakeJobStore struct {
	inserted []models.ExtractionJob
	statuses []string
	costs    []float64
}

func (f *fakeJobStore) InsertJob(_ context.Context, j models.ExtractionJob) error {
	f.inserted = append(f.inserted, j)
	return nil
}

func (f *fakeJobStore) UpdateJobStatus(_ context.Context, _, status, _ string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeJobStore) SetJobCost(_ context.Context, _ string, cost float64) error {
	f.costs = append(f.costs, cost)
	return nil
}

type fakeProposalStore struct {
	proposals []models.ProposedNode
}

func (f *fakeProposalStore) InsertProposals(_ context.Context, proposals []models.ProposedNode) error {
	f.proposals = append(f.proposals, proposals...)
	return nil
}

type fakeAuditStore struct {
	records []storage.LLMCallRecord
}

func (f *fakeAuditStore) Insert(_ context.Context, rec storage.LLMCallRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type testStores struct {
	sources   *fakeSourceStore
	chunks    *fakeChunkStore
	jobs      *fakeJobStore
	proposals *fakeProposalStore
	audit     *fakeAuditStore
}

func newTestService(t *testing.T, cfg config.Config) (*Service, *testStores) {
	t.Helper()
	mgr, err := providers.NewManagerFromList("mock")
	require.NoError(t, err)

	stores := &testStores{
		sources:   &fakeSourceStore{sources: map[string]models.Source{}},
		chunks:    &fakeChunkStore{},
		jobs:      &fakeJobStore{},
		proposals: &fakeProposalStore{},
		audit:     &fakeAuditStore{},
	}

	tracker := providers.NewRateLimitTracker(time.Now)
	window := time.Duration(cfg.RateLimitWindowSecs) * time.Second
	selector := providers.NewSelector("mock", "mock", cfg.PromptTokenThreshold, window, tracker)
	retry := providers.RetryPolicy{MaxRetries: 1, Sleep: func(context.Context, time.Duration) error { return nil }}

	svc := &Service{
		cfg:       cfg,
		logger:    zap.NewNop(),
		sources:   stores.sources,
		chunks:    stores.chunks,
		jobs:      stores.jobs,
		proposals: stores.proposals,
		audit:     stores.audit,
		tracker:   tracker,
	}
	svc.client = extract.NewClient(mgr, selector, tracker, retry, zap.NewNop())
	svc.client.SetAudit(svc.auditCall)
	svc.embedder = embed.NewGenerator(mgr.Default(), retry, embed.Options{
		BatchSize:  cfg.EmbedBatchSize,
		BatchDelay: time.Millisecond,
		Dimension:  cfg.EmbedDim,
	}, zap.NewNop())
	return svc, stores
}

func testConfig(dataIn string) config.Config {
	return config.Config{
		DataInRoot:           dataIn,
		DataOutRoot:          filepath.Join(dataIn, "out"),
		MaxChunkTokens:       50,
		ChunkOverlapTokens:   5,
		EmbedDim:             64,
		EmbedBatchSize:       100,
		PreprocessTimeoutSec: 60,
		OwnerChunkQuota:      1000,
		PrimaryProvider:      "mock",
		FallbackProvider:     "mock",
		PromptTokenThreshold: 120000,
		RateLimitWindowSecs:  600,
		MaxConcurrentExtract: 2,
		ReviewThreshold:      0.6,
	}
}

func writeSourceBlob(t *testing.T, dir, name, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
}

func TestPreprocessGeneratesEmbeddedChunks(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	svc, stores := newTestService(t, cfg)

	text := "Cells were cultured in DMEM with 10% FBS at 37C. "
	for len(text) < 1200 {
		text += "Samples were incubated for 30 minutes and washed three times before imaging. "
	}
	writeSourceBlob(t, dir, "cells.txt", text)
	stores.sources.sources["src1"] = models.Source{
		SourceID: "src1", OwnerID: "owner1", Filename: "cells.txt",
		SourceType: "text", BlobPath: "cells.txt", Status: models.SourceStatusUploaded,
	}

	res, err := svc.Preprocess(context.Background(), "src1", "owner1")
	require.NoError(t, err)
	require.Greater(t, res.ChunksGenerated, 1)
	require.Greater(t, res.TotalTokens, 0)
	require.Len(t, stores.chunks.stored, res.ChunksGenerated)
	for _, c := range stores.chunks.stored {
		require.Len(t, c.Embedding, cfg.EmbedDim)
		require.Equal(t, "owner1", c.OwnerID)
		require.NotEmpty(t, c.ChunkID)
	}
	require.Equal(t, []string{models.SourceStatusProcessing, models.SourceStatusCompleted}, stores.sources.statuses)
}

func TestPreprocessChunkIDsAreStable(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	svc, stores := newTestService(t, cfg)

	writeSourceBlob(t, dir, "doc.txt", "A short but valid document body for segmentation.")
	src := models.Source{SourceID: "src1", OwnerID: "owner1", Filename: "doc.txt", SourceType: "text", BlobPath: "doc.txt"}
	stores.sources.sources["src1"] = src

	_, err := svc.Preprocess(context.Background(), "src1", "owner1")
	require.NoError(t, err)
	first := append([]models.Chunk(nil), stores.chunks.stored...)

	stores.chunks.stored = nil
	_, err = svc.Preprocess(context.Background(), "src1", "owner1")
	require.NoError(t, err)

	require.Len(t, stores.chunks.stored, len(first))
	for i := range first {
		require.Equal(t, first[i].ChunkID, stores.chunks.stored[i].ChunkID)
	}
}

func TestPreprocessCapacityExceeded(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	svc, stores := newTestService(t, cfg)
	stores.chunks.count = cfg.OwnerChunkQuota

	writeSourceBlob(t, dir, "doc.txt", "content")
	stores.sources.sources["src1"] = models.Source{SourceID: "src1", OwnerID: "owner1", Filename: "doc.txt", SourceType: "text", BlobPath: "doc.txt"}

	_, err := svc.Preprocess(context.Background(), "src1", "owner1")
	var capErr *util.CapacityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, "owner1", capErr.OwnerID)

	require.Equal(t, models.SourceStatusFailed, stores.sources.statuses[len(stores.sources.statuses)-1])
	require.NotEmpty(t, stores.sources.messages[len(stores.sources.messages)-1])
	require.Empty(t, stores.chunks.stored)
}

func TestPreprocessMissingBlobMarksFailed(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	svc, stores := newTestService(t, cfg)

	stores.sources.sources["src1"] = models.Source{SourceID: "src1", OwnerID: "owner1", Filename: "gone.txt", SourceType: "text", BlobPath: "gone.txt"}

	_, err := svc.Preprocess(context.Background(), "src1", "owner1")
	require.Error(t, err)
	require.Equal(t, models.SourceStatusFailed, stores.sources.statuses[len(stores.sources.statuses)-1])
}

func TestPreprocessRejectsWrongOwner(t *testing.T) {
	dir := t.TempDir()
	svc, stores := newTestService(t, testConfig(dir))
	stores.sources.sources["src1"] = models.Source{SourceID: "src1", OwnerID: "owner1", BlobPath: "doc.txt"}

	_, err := svc.Preprocess(context.Background(), "src1", "someone-else")
	require.Error(t, err)
	require.ErrorContains(t, err, "does not belong")
}

func TestClusterChunksSkipsUnembedded(t *testing.T) {
	dir := t.TempDir()
	svc, stores := newTestService(t, testConfig(dir))

	vec := make([]float32, 8)
	vec[0] = 1
	stores.chunks.existing = []models.Chunk{
		{ChunkID: "c1", OwnerID: "owner1", Embedding: vec},
		{ChunkID: "c2", OwnerID: "owner1", Embedding: vec},
		{ChunkID: "c3", OwnerID: "owner1"},
	}

	clusters, err := svc.ClusterChunks(context.Background(), "owner1", cluster.Options{SimilarityThreshold: 0.9})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.ElementsMatch(t, []string{"c1", "c2"}, clusters[0].ChunkIDs)
}

func TestSynthesizeNodeScoresAndTracksProvenance(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newTestService(t, testConfig(dir))

	vec := make([]float32, 8)
	vec[0] = 1
	chunks := []models.Chunk{
		{ChunkID: "c1", Text: "Incubate samples at 37C for 30 minutes.", Embedding: vec},
		{ChunkID: "c2", Text: "After incubation, wash three times with PBS.", Embedding: vec},
	}

	node, err := svc.SynthesizeNode(context.Background(), chunks, "sample preparation")
	require.NoError(t, err)
	require.NotEmpty(t, node.Title)
	require.ElementsMatch(t, []string{"c1", "c2"}, node.Provenance.ChunkIDs)
	require.GreaterOrEqual(t, node.Confidence, 0.0)
	require.LessOrEqual(t, node.Confidence, 1.0)
}

func TestSynthesizeNodeRequiresChunks(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newTestService(t, testConfig(dir))
	_, err := svc.SynthesizeNode(context.Background(), nil, "")
	require.Error(t, err)
}

func TestMultiPassRunPersistsProposalsAndArtifact(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	svc, stores := newTestService(t, cfg)

	doc := docparse.Parse("paper.txt", "1. Methods\nCells were cultured and samples prepared.\n\n2. Analysis\nA t-test compared the two groups.")

	out, err := svc.ExtractWorkflowMultiPass(context.Background(), "owner1", "Study Tree", []docparse.ParsedDocument{doc})
	require.NoError(t, err)
	require.NotEmpty(t, out.JobID)
	require.Greater(t, out.Result.NodeCount, 0)
	require.Greater(t, out.Result.CostEstimate, 0.0)

	require.Len(t, stores.jobs.inserted, 1)
	require.Equal(t, models.JobStatusCompleted, stores.jobs.statuses[len(stores.jobs.statuses)-1])
	require.NotEmpty(t, stores.proposals.proposals)
	for _, p := range stores.proposals.proposals {
		require.Equal(t, out.JobID, p.JobID)
		require.Equal(t, models.ProposalStatusProposed, p.Status)
		require.NotEmpty(t, p.Payload)
	}

	require.NotEmpty(t, out.ArtifactPath)
	_, statErr := os.Stat(out.ArtifactPath)
	require.NoError(t, statErr)

	require.NotEmpty(t, stores.audit.records, "provider calls should be audited")
	for _, rec := range stores.audit.records {
		require.Equal(t, "owner1", rec.OwnerID)
		require.Equal(t, out.JobID, rec.JobID)
	}
}

func TestFailJobSurvivesDeadContext(t *testing.T) {
	dir := t.TempDir()
	svc, stores := newTestService(t, testConfig(dir))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.FailJob(ctx, "job1", errors.New("extraction aborted"))
	require.Equal(t, []string{models.JobStatusFailed}, stores.jobs.statuses)
}
