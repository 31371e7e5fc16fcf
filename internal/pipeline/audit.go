package pipeline

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"treeflow/internal/extract"
	"treeflow/internal/providers"
	"treeflow/internal/storage"
)

type auditCtxKey struct{}

type auditScope struct {
	OwnerID string
	JobID   string
}

// WithAuditScope tags provider calls made under ctx with the owner and job
// they ran for.
func WithAuditScope(ctx context.Context, ownerID, jobID string) context.Context {
	return context.WithValue(ctx, auditCtxKey{}, auditScope{OwnerID: ownerID, JobID: jobID})
}

func scopeFrom(ctx context.Context) auditScope {
	if s, ok := ctx.Value(auditCtxKey{}).(auditScope); ok {
		return s
	}
	return auditScope{}
}

func (s *Service) auditCall(ctx context.Context, u extract.Usage, callErr error) {
	scope := scopeFrom(ctx)
	rec := storage.LLMCallRecord{
		CallID:       uuid.NewString(),
		Operation:    u.Operation,
		OwnerID:      scope.OwnerID,
		JobID:        scope.JobID,
		ProviderName: u.Provider,
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		DurationMs:   u.DurationMs,
		Status:       "ok",
	}
	if callErr != nil {
		rec.Status = "error"
		rec.ErrorType = string(providers.Classify(callErr))
	}
	if err := s.audit.Insert(ctx, rec); err != nil {
		s.logger.Warn("persist llm call audit", zap.String("operation", u.Operation), zap.Error(err))
	}
}
