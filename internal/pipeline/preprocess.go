package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"treeflow/internal/docparse"
	"treeflow/internal/models"
	"treeflow/internal/segment"
	"treeflow/internal/util"
)

type PreprocessResult struct {
	SourceID              string  `json:"source_id"`
	ChunksGenerated       int     `json:"chunks_generated"`
	TotalTokens           int     `json:"total_tokens"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// Preprocess runs the full sequence for one uploaded source: status to
// processing, capacity check, text extraction, segmentation, embedding,
// chunk upsert, status to completed. Any failure marks the source failed
// with the cause before the error is returned; partial chunk writes after
// the outer deadline are tolerated.
func (s *Service) Preprocess(ctx context.Context, sourceID, ownerID string) (PreprocessResult, error) {
	start := time.Now()
	timeout := time.Duration(s.cfg.PreprocessTimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := PreprocessResult{SourceID: sourceID}

	src, err := s.sources.GetSource(ctx, sourceID)
	if err != nil {
		return res, fmt.Errorf("load source %s: %w", sourceID, err)
	}
	if src.OwnerID != ownerID {
		return res, fmt.Errorf("source %s does not belong to owner %s", sourceID, ownerID)
	}
	s.SetSourceStatus(ctx, sourceID, models.SourceStatusProcessing, "")

	if err := s.CheckCapacity(ctx, ownerID); err != nil {
		s.markFailed(ctx, sourceID, err)
		return res, err
	}

	text, _, err := s.LoadSourceText(ctx, sourceID)
	if err != nil {
		s.markFailed(ctx, sourceID, err)
		return res, err
	}

	chunks := s.BuildChunks(src, text)
	if len(chunks) == 0 {
		s.markFailed(ctx, sourceID, util.ErrNoExtractableText)
		return res, util.ErrNoExtractableText
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	embedded, err := s.EmbedTexts(ctx, texts)
	if err != nil {
		s.markFailed(ctx, sourceID, err)
		return res, fmt.Errorf("embed source %s: %w", sourceID, err)
	}

	if err := s.StoreChunks(ctx, chunks, embedded.Vectors); err != nil {
		s.markFailed(ctx, sourceID, err)
		return res, fmt.Errorf("store chunks for %s: %w", sourceID, err)
	}

	s.SetSourceStatus(ctx, sourceID, models.SourceStatusCompleted, "")

	res.ChunksGenerated = len(chunks)
	for _, c := range chunks {
		res.TotalTokens += c.TokenEstimate
	}
	res.ProcessingTimeSeconds = time.Since(start).Seconds()
	return res, nil
}

// UpdateSourceStatus persists a status transition.
func (s *Service) UpdateSourceStatus(ctx context.Context, sourceID, status, errorMessage string) error {
	return s.sources.UpdateStatus(ctx, sourceID, status, errorMessage)
}

// SetSourceStatus is UpdateSourceStatus with failures logged and swallowed,
// so a dying database cannot mask the error that caused a transition.
func (s *Service) SetSourceStatus(ctx context.Context, sourceID, status, errorMessage string) {
	if err := s.UpdateSourceStatus(ctx, sourceID, status, errorMessage); err != nil {
		s.logger.Warn("persist source status",
			zap.String("source_id", sourceID),
			zap.String("status", status),
			zap.Error(err))
	}
}

// markFailed records the terminal failure on a fresh context so it survives
// the outer preprocess deadline firing.
func (s *Service) markFailed(ctx context.Context, sourceID string, cause error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.SetSourceStatus(sctx, sourceID, models.SourceStatusFailed, cause.Error())
}

// CheckCapacity rejects work for owners already at their chunk quota.
func (s *Service) CheckCapacity(ctx context.Context, ownerID string) error {
	used, err := s.chunks.CountChunksByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("count chunks for %s: %w", ownerID, err)
	}
	if used >= s.cfg.OwnerChunkQuota {
		return &util.CapacityError{OwnerID: ownerID, Used: used, Limit: s.cfg.OwnerChunkQuota}
	}
	return nil
}

// LoadSourceText reads the source blob from the data-in root and returns
// sanitized text plus the page count for PDFs.
func (s *Service) LoadSourceText(ctx context.Context, sourceID string) (string, int, error) {
	src, err := s.sources.GetSource(ctx, sourceID)
	if err != nil {
		return "", 0, fmt.Errorf("load source %s: %w", sourceID, err)
	}
	path := util.SafeJoin(s.cfg.DataInRoot, src.BlobPath)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return docparse.ExtractPDFText(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read source blob: %w", err)
	}
	text := util.SanitizeText(string(raw))
	if text == "" {
		return "", 0, util.ErrNoExtractableText
	}
	return text, 0, nil
}

// BuildChunks segments sanitized text into chunk records. Chunk ids are
// content-derived so a re-run upserts the same rows instead of duplicating.
func (s *Service) BuildChunks(src models.Source, text string) []models.Chunk {
	segs := segment.Split(text, segment.Options{
		MaxTokens:     s.cfg.MaxChunkTokens,
		OverlapTokens: s.cfg.ChunkOverlapTokens,
	})
	chunks := make([]models.Chunk, 0, len(segs))
	for _, seg := range segs {
		part := util.SanitizeText(seg.Text)
		if part == "" {
			continue
		}
		chunkID := util.SHA256Hex(fmt.Appendf(nil, "%s:%d:%s", src.SourceID, seg.Index, util.SHA256Hex([]byte(part))))
		chunks = append(chunks, models.Chunk{
			ChunkID:       chunkID,
			SourceID:      src.SourceID,
			OwnerID:       src.OwnerID,
			ChunkIndex:    seg.Index,
			Text:          part,
			SourceType:    src.SourceType,
			SourceRef:     src.Filename,
			TokenEstimate: seg.TokenEstimate,
		})
	}
	return chunks
}

// SegmentSource is BuildChunks for callers that only hold the source id.
func (s *Service) SegmentSource(ctx context.Context, sourceID, text string) ([]models.Chunk, error) {
	src, err := s.sources.GetSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load source %s: %w", sourceID, err)
	}
	return s.BuildChunks(src, text), nil
}

// EmbedTexts runs the batched embedding generator over the chunk texts.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) (*EmbedOutcome, error) {
	res, err := s.embedder.Generate(ctx, texts)
	if err != nil {
		return nil, err
	}
	return &EmbedOutcome{Vectors: res.Vectors, InputTokens: res.InputTokens, Batches: res.Batches}, nil
}

type EmbedOutcome struct {
	Vectors     [][]float32 `json:"vectors"`
	InputTokens int         `json:"input_tokens"`
	Batches     int         `json:"batches"`
}

// StoreChunks attaches vectors to their chunks by index and upserts.
func (s *Service) StoreChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	for i := range chunks {
		if i < len(vectors) {
			chunks[i].Embedding = vectors[i]
		}
	}
	return s.chunks.UpsertChunks(ctx, chunks)
}
