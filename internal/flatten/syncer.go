package flatten

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
	"go.uber.org/zap"
)

var (
	errMissingSource     = errors.New("variant source is required")
	errMissingStore      = errors.New("flat store is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingEnqueuer   = errors.New("enqueuer is required")
)

// SyncOutcome describes what a sync did to the flat store.
type SyncOutcome string

const (
	// OutcomeSynced means the flat record was replaced.
	OutcomeSynced SyncOutcome = "synced"
	// OutcomeTombstoned means the source was gone and the flat record was removed.
	OutcomeTombstoned SyncOutcome = "tombstoned"
	// OutcomeInvalid means validation failed and the flat store was left untouched.
	OutcomeInvalid SyncOutcome = "invalid"
)

// VariantSource reads source variants at full depth.
type VariantSource interface {
	FindVariant(ctx context.Context, variantID string) (catalog.VariantDoc, error)
	ListVariantIDs(ctx context.Context) ([]string, error)
}

// FlatStore persists flat variants.
type FlatStore interface {
	Replace(ctx context.Context, variant flat.Variant) error
	DeleteByOriginalID(ctx context.Context, originalVariantID string) (bool, error)
	ListOriginalIDs(ctx context.Context) ([]string, error)
}

// Enqueuer schedules a flatten job for a variant.
type Enqueuer interface {
	EnqueueFlatten(ctx context.Context, variantID string) error
}

// SyncerConfig describes the dependencies of the sync orchestrator.
type SyncerConfig struct {
	Source          VariantSource
	Titles          TitleLookup
	Store           FlatStore
	SecondaryLocale string
	Clock           func() time.Time
	IDProvider      flat.IDProvider
	Logger          *zap.Logger
}

// Syncer drives the flatten-and-persist cycle of variants.
type Syncer struct {
	source     VariantSource
	resolver   *BilingualResolver
	store      FlatStore
	clock      func() time.Time
	idProvider flat.IDProvider
	logger     *zap.Logger
}

// NewSyncer constructs a sync orchestrator.
func NewSyncer(cfg SyncerConfig) (*Syncer, error) {
	if cfg.Source == nil {
		return nil, newServiceError(opSyncerNew, "missing_source", errMissingSource)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opSyncerNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opSyncerNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		source:     cfg.Source,
		resolver:   NewBilingualResolver(cfg.Titles, cfg.SecondaryLocale, logger),
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SyncVariant flattens one source variant and replaces its flat record.
// A missing source removes the flat record; a validation failure is logged
// and reported through the outcome, not the error.
func (s *Syncer) SyncVariant(ctx context.Context, variantID string) (SyncOutcome, error) {
	doc, err := s.source.FindVariant(ctx, variantID)
	if errors.Is(err, catalog.ErrVariantNotFound) {
		deleted, err := s.store.DeleteByOriginalID(ctx, variantID)
		if err != nil {
			s.logError(opSyncVariant, "tombstone_failed", err, zap.String("variant_id", variantID))
			return "", newServiceError(opSyncVariant, "tombstone_failed", err)
		}
		s.logger.Info("flat variant tombstoned",
			zap.String("variant_id", variantID),
			zap.Bool("existed", deleted))
		return OutcomeTombstoned, nil
	}
	if err != nil {
		s.logError(opSyncVariant, "source_fetch_failed", err, zap.String("variant_id", variantID))
		return "", newServiceError(opSyncVariant, "source_fetch_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSyncVariant, "id_generation_failed", err, zap.String("variant_id", variantID))
		return "", newServiceError(opSyncVariant, "id_generation_failed", err)
	}

	variant, err := Flatten(Input{
		ID:        id,
		Variant:   doc,
		Secondary: s.resolver.ResolveSecondaryTitles(ctx, doc),
		SyncedAt:  s.clock().UTC(),
	})
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		fields := []zap.Field{zap.String("variant_id", variantID), zap.String("relation", validationErr.Relation)}
		if validationErr.WineTitle != nil {
			fields = append(fields, zap.String("wine_title", *validationErr.WineTitle))
		}
		s.logError(opSyncVariant, "validation_failed", err, fields...)
		return OutcomeInvalid, nil
	}
	if err != nil {
		s.logError(opSyncVariant, "flatten_failed", err, zap.String("variant_id", variantID))
		return "", newServiceError(opSyncVariant, "flatten_failed", err)
	}

	if err := s.store.Replace(ctx, variant); err != nil {
		s.logError(opSyncVariant, "replace_failed", err, zap.String("variant_id", variantID))
		return "", newServiceError(opSyncVariant, "replace_failed", err)
	}
	s.logger.Debug("flat variant synced",
		zap.String("variant_id", variantID),
		zap.String("slug", variant.Slug))
	return OutcomeSynced, nil
}

// EnqueueAll schedules a flatten job for every source variant and for every
// flat record whose source no longer exists. Failures for single ids are
// logged and skipped.
func (s *Syncer) EnqueueAll(ctx context.Context, enqueuer Enqueuer) (int, error) {
	if enqueuer == nil {
		return 0, newServiceError(opEnqueueAll, "missing_enqueuer", errMissingEnqueuer)
	}
	sourceIDs, err := s.source.ListVariantIDs(ctx)
	if err != nil {
		s.logError(opEnqueueAll, "list_source_failed", err)
		return 0, newServiceError(opEnqueueAll, "list_source_failed", err)
	}
	flatIDs, err := s.store.ListOriginalIDs(ctx)
	if err != nil {
		s.logError(opEnqueueAll, "list_flat_failed", err)
		return 0, newServiceError(opEnqueueAll, "list_flat_failed", err)
	}

	seen := make(map[string]struct{}, len(sourceIDs)+len(flatIDs))
	enqueued := 0
	for _, variantID := range append(sourceIDs, flatIDs...) {
		if _, ok := seen[variantID]; ok {
			continue
		}
		seen[variantID] = struct{}{}
		if err := enqueuer.EnqueueFlatten(ctx, variantID); err != nil {
			s.logError(opEnqueueAll, "enqueue_failed", err, zap.String("variant_id", variantID))
			continue
		}
		enqueued++
	}
	s.logger.Info("flatten jobs enqueued", zap.Int("count", enqueued))
	return enqueued, nil
}

func (s *Syncer) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("flatten service error", attrs...)
}
