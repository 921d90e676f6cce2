package related

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPerStrategyLimit = 6
	defaultMaxTotal         = 12
	defaultBatchSize        = 10
	defaultPriceMinPct      = 0.8
	defaultPriceMaxPct      = 1.2
)

const (
	strategyWinery = "winery"
	strategyRegion = "region"
	strategyGrape  = "grape"
	strategyPrice  = "price"
	strategyStyle  = "style"
)

var (
	errMissingFlatSource = errors.New("related: flat source is required")
	errMissingSetStore   = errors.New("related: set store is required")
)

// FlatSource reads flat variants.
type FlatSource interface {
	CandidateFinder
	FindByOriginalID(ctx context.Context, originalVariantID string) (flat.Variant, error)
	ListOriginalIDs(ctx context.Context) ([]string, error)
}

// SetStore persists related sets.
type SetStore interface {
	Save(ctx context.Context, set Set) error
	Delete(ctx context.Context, variantID string) (bool, error)
}

// AggregatorConfig describes the dependencies and limits of the aggregator.
// Zero limits fall back to the defaults.
type AggregatorConfig struct {
	Flat             FlatSource
	Sets             SetStore
	PerStrategyLimit int
	MaxTotal         int
	BatchSize        int
	PriceMinPct      float64
	PriceMaxPct      float64
	Clock            func() time.Time
	Logger           *zap.Logger
}

// strategy binds a matcher to its priority and the source field it needs.
type strategy struct {
	name    string
	matcher Matcher
	applies func(source flat.Variant) bool
	tag     func(reason string) string
}

// Aggregator runs every matcher for a variant and persists the merged result.
type Aggregator struct {
	flat       FlatSource
	sets       SetStore
	strategies []strategy
	maxTotal   int
	batchSize  int
	clock      func() time.Time
	logger     *zap.Logger
}

// NewAggregator constructs a match aggregator.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Flat == nil {
		return nil, errMissingFlatSource
	}
	if cfg.Sets == nil {
		return nil, errMissingSetStore
	}
	limit := positiveOr(cfg.PerStrategyLimit, defaultPerStrategyLimit)
	minPct := cfg.PriceMinPct
	if minPct <= 0 {
		minPct = defaultPriceMinPct
	}
	maxPct := cfg.PriceMaxPct
	if maxPct <= 0 {
		maxPct = defaultPriceMaxPct
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	strategies := []strategy{
		{
			name:    strategyWinery,
			matcher: NewWineryMatcher(cfg.Flat, limit),
			applies: func(source flat.Variant) bool { return source.WineryID != "" },
			tag:     subtype(ReasonRelatedWinery, TypeWineryRelated, TypeWinerySame),
		},
		{
			name:    strategyRegion,
			matcher: NewRegionMatcher(cfg.Flat, limit),
			applies: func(source flat.Variant) bool { return source.RegionID != "" },
			tag:     subtype(ReasonRelatedRegion, TypeRegionRelated, TypeRegionSame),
		},
		{
			name:    strategyGrape,
			matcher: NewGrapeMatcher(cfg.Flat, limit),
			applies: func(source flat.Variant) bool { return len(source.Grapes) > 0 },
			tag:     constantTag(TypeGrape),
		},
		{
			name:    strategyPrice,
			matcher: NewPriceMatcher(cfg.Flat, limit, minPct, maxPct),
			applies: func(source flat.Variant) bool { return source.Price != nil && *source.Price > 0 },
			tag:     constantTag(TypePrice),
		},
		{
			name:    strategyStyle,
			matcher: NewStyleMatcher(cfg.Flat, limit),
			applies: func(source flat.Variant) bool { return source.StyleID != "" },
			tag:     constantTag(TypeStyle),
		},
	}

	return &Aggregator{
		flat:       cfg.Flat,
		sets:       cfg.Sets,
		strategies: strategies,
		maxTotal:   positiveOr(cfg.MaxTotal, defaultMaxTotal),
		batchSize:  positiveOr(cfg.BatchSize, defaultBatchSize),
		clock:      clock,
		logger:     logger,
	}, nil
}

// rankedEntry carries the strategy priority used to break score ties.
type rankedEntry struct {
	Entry
	priority int
}

// Compute recomputes and persists the related set of one variant. It never
// fails: matcher and persistence errors are logged and yield fewer entries.
func (a *Aggregator) Compute(ctx context.Context, variantID string) []Entry {
	source, err := a.flat.FindByOriginalID(ctx, variantID)
	if errors.Is(err, flat.ErrNotFound) {
		if _, err := a.sets.Delete(ctx, variantID); err != nil {
			a.logError("delete_stale_failed", err, zap.String("variant_id", variantID))
		}
		return nil
	}
	if err != nil {
		a.logError("source_fetch_failed", err, zap.String("variant_id", variantID))
		return nil
	}

	results := make([][]rankedEntry, len(a.strategies))
	var group errgroup.Group
	for priority, current := range a.strategies {
		if !current.applies(source) {
			a.logger.Debug("related strategy skipped",
				zap.String("variant_id", variantID),
				zap.String("strategy", current.name))
			continue
		}
		group.Go(func() error {
			matches, err := current.matcher.Match(ctx, source, NewIDSet(source.OriginalVariantID))
			if err != nil {
				a.logger.Warn("related strategy failed",
					zap.String("variant_id", variantID),
					zap.String("strategy", current.name),
					zap.Error(err))
				return nil
			}
			entries := make([]rankedEntry, 0, len(matches))
			for _, match := range matches {
				entries = append(entries, rankedEntry{
					Entry: Entry{
						Type:             current.tag(match.Reason),
						Score:            match.Score,
						Reason:           match.Reason,
						RelatedVariantID: match.Candidate.OriginalVariantID,
					},
					priority: priority,
				})
			}
			results[priority] = entries
			return nil
		})
	}
	_ = group.Wait()

	entries := merge(results, a.maxTotal)
	set := Set{
		VariantID:    variantID,
		Entries:      entries,
		LastComputed: a.clock().UTC(),
		Version:      Version,
	}
	if err := a.sets.Save(ctx, set); err != nil {
		a.logError("save_failed", err, zap.String("variant_id", variantID))
	}
	return entries
}

// merge flattens per-strategy results, sorts them by score descending with
// ties broken by strategy priority and then by the order the matcher emitted
// them, drops repeated candidates and truncates to maxTotal.
func merge(results [][]rankedEntry, maxTotal int) []Entry {
	var all []rankedEntry
	for _, entries := range results {
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].priority < all[j].priority
	})

	seen := NewIDSet()
	merged := make([]Entry, 0, maxTotal)
	for _, entry := range all {
		if len(merged) >= maxTotal {
			break
		}
		if seen.Has(entry.RelatedVariantID) {
			continue
		}
		seen.Add(entry.RelatedVariantID)
		merged = append(merged, entry.Entry)
	}
	return merged
}

// ComputeBatch recomputes the given variants in chunks of the batch size; the
// variants of one chunk run concurrently.
func (a *Aggregator) ComputeBatch(ctx context.Context, variantIDs []string) (int, error) {
	computed := 0
	for start := 0; start < len(variantIDs); start += a.batchSize {
		if err := ctx.Err(); err != nil {
			return computed, err
		}
		end := min(start+a.batchSize, len(variantIDs))
		var group errgroup.Group
		for _, variantID := range variantIDs[start:end] {
			group.Go(func() error {
				a.Compute(ctx, variantID)
				return nil
			})
		}
		_ = group.Wait()
		computed += end - start
		a.logger.Debug("related batch chunk computed",
			zap.Int("offset", start),
			zap.Int("size", end-start))
	}
	return computed, nil
}

// ComputeAll recomputes the related set of every flat variant.
func (a *Aggregator) ComputeAll(ctx context.Context) (int, error) {
	variantIDs, err := a.flat.ListOriginalIDs(ctx)
	if err != nil {
		a.logError("list_failed", err)
		return 0, fmt.Errorf("related: list flat variants: %w", err)
	}
	computed, err := a.ComputeBatch(ctx, variantIDs)
	a.logger.Info("related sets recomputed", zap.Int("count", computed))
	return computed, err
}

func (a *Aggregator) logError(reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", "related.compute"),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	a.logger.Error("related service error", attrs...)
}

func subtype(relatedReason, relatedType, sameType string) func(reason string) string {
	return func(reason string) string {
		if reason == relatedReason {
			return relatedType
		}
		return sameType
	}
}

func constantTag(value string) func(reason string) string {
	return func(string) string {
		return value
	}
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
