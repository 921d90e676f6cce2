package jobs

import (
	"context"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flatten"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/related"
	"go.uber.org/zap"
)

// VariantSyncer flattens one variant.
type VariantSyncer interface {
	SyncVariant(ctx context.Context, variantID string) (flatten.SyncOutcome, error)
}

// RelatedComputer recomputes the related set of one variant.
type RelatedComputer interface {
	Compute(ctx context.Context, variantID string) []related.Entry
}

// RecomputeEnqueuer schedules related-set recomputation.
type RecomputeEnqueuer interface {
	EnqueueRecompute(ctx context.Context, variantID string) error
}

// NewFlattenHandler syncs the variant and, when the flat store changed,
// schedules a related-set recomputation for it.
func NewFlattenHandler(syncer VariantSyncer, enqueuer RecomputeEnqueuer, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return HandlerFunc(func(ctx context.Context, job Job) error {
		outcome, err := syncer.SyncVariant(ctx, job.VariantID)
		if err != nil {
			return err
		}
		if outcome == flatten.OutcomeInvalid {
			return nil
		}
		if err := enqueuer.EnqueueRecompute(ctx, job.VariantID); err != nil {
			logger.Warn("related recompute enqueue failed",
				zap.String("variant_id", job.VariantID),
				zap.Error(err))
		}
		return nil
	})
}

// NewRecomputeHandler recomputes the related set of the variant.
func NewRecomputeHandler(computer RelatedComputer) Handler {
	return HandlerFunc(func(ctx context.Context, job Job) error {
		computer.Compute(ctx, job.VariantID)
		return nil
	})
}

// Handlers returns the handler of every task.
func Handlers(syncer VariantSyncer, computer RelatedComputer, enqueuer RecomputeEnqueuer, logger *zap.Logger) map[string]Handler {
	return map[string]Handler{
		TaskFlattenVariant:   NewFlattenHandler(syncer, enqueuer, logger),
		TaskRecomputeRelated: NewRecomputeHandler(computer),
	}
}
