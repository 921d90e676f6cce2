package jobs

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var (
	errMissingResolver = errors.New("jobs: affected variant resolver is required")
	errMissingEntity   = errors.New("jobs: collection and id are required")
)

// AffectedResolver finds the variants that depend on an edited entity.
type AffectedResolver interface {
	AffectedVariantIDs(ctx context.Context, collection, entityID string) ([]string, error)
	BacklinkedVariantIDs(ctx context.Context, collection, entityID string) ([]string, error)
}

// FlatLister lists the variants that have a flat record.
type FlatLister interface {
	ListOriginalIDs(ctx context.Context) ([]string, error)
}

// HooksConfig describes the dependencies of the content hooks.
type HooksConfig struct {
	Resolver AffectedResolver
	Queue    *Queue
	Logger   *zap.Logger
}

// Hooks turns content edits into queued jobs.
type Hooks struct {
	resolver AffectedResolver
	queue    *Queue
	logger   *zap.Logger
}

// NewHooks constructs the content hooks.
func NewHooks(cfg HooksConfig) (*Hooks, error) {
	if cfg.Resolver == nil {
		return nil, errMissingResolver
	}
	if cfg.Queue == nil {
		return nil, errMissingQueue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{resolver: cfg.Resolver, queue: cfg.Queue, logger: logger}, nil
}

// ContentChanged enqueues a flatten for every variant affected by the edited
// entity. Edits to a winery or region also enqueue a related-set
// recomputation for variants whose winery or region lists it as related.
// It returns the number of jobs created.
func (h *Hooks) ContentChanged(ctx context.Context, collection, entityID string) (int, error) {
	collection = strings.TrimSpace(collection)
	entityID = strings.TrimSpace(entityID)
	if collection == "" || entityID == "" {
		return 0, errMissingEntity
	}

	affected, err := h.resolver.AffectedVariantIDs(ctx, collection, entityID)
	if err != nil {
		return 0, err
	}
	backlinked, err := h.resolver.BacklinkedVariantIDs(ctx, collection, entityID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, variantID := range affected {
		ok, err := h.queue.Enqueue(ctx, TaskFlattenVariant, variantID)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	for _, variantID := range backlinked {
		ok, err := h.queue.Enqueue(ctx, TaskRecomputeRelated, variantID)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	h.logger.Info("content change fanned out",
		zap.String("collection", collection),
		zap.String("entity_id", entityID),
		zap.Int("affected", len(affected)),
		zap.Int("backlinked", len(backlinked)),
		zap.Int("enqueued", created))
	return created, nil
}

// EnqueueRecomputeAll schedules a related-set recomputation for every flat
// variant. Failures for single ids are logged and skipped.
func (h *Hooks) EnqueueRecomputeAll(ctx context.Context, lister FlatLister) (int, error) {
	variantIDs, err := lister.ListOriginalIDs(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, variantID := range variantIDs {
		ok, err := h.queue.Enqueue(ctx, TaskRecomputeRelated, variantID)
		if err != nil {
			h.logger.Warn("related recompute enqueue failed",
				zap.String("variant_id", variantID),
				zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}
