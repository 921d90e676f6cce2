package flatten

import (
	"context"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"go.uber.org/zap"
)

// TitleLookup reads entity titles under a locale.
type TitleLookup interface {
	LocalizedTitle(ctx context.Context, collection, entityID, locale string) (string, error)
}

// TitleKey addresses one referenced entity.
type TitleKey struct {
	Collection string
	ID         string
}

// Titles holds secondary-locale titles keyed by entity.
type Titles map[TitleKey]string

// Lookup returns the secondary title or an empty string.
func (t Titles) Lookup(collection, entityID string) string {
	if t == nil {
		return ""
	}
	return t[TitleKey{Collection: collection, ID: entityID}]
}

// BilingualResolver looks up secondary-locale titles. Lookups never fail:
// errors are logged and treated as an absent title.
type BilingualResolver struct {
	lookup TitleLookup
	locale string
	logger *zap.Logger
}

// NewBilingualResolver constructs a resolver for the secondary locale.
func NewBilingualResolver(lookup TitleLookup, locale string, logger *zap.Logger) *BilingualResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BilingualResolver{lookup: lookup, locale: locale, logger: logger}
}

// Title returns the secondary-locale title of an entity.
func (r *BilingualResolver) Title(ctx context.Context, collection, entityID string) (string, bool) {
	if r == nil || r.lookup == nil || entityID == "" {
		return "", false
	}
	title, err := r.lookup.LocalizedTitle(ctx, collection, entityID, r.locale)
	if err != nil {
		r.logger.Warn("secondary title lookup failed",
			zap.String("collection", collection),
			zap.String("entity_id", entityID),
			zap.String("locale", r.locale),
			zap.Error(err))
		return "", false
	}
	if title == "" {
		return "", false
	}
	return title, true
}

// ResolveSecondaryTitles looks up every distinct entity the variant references
// for which a secondary title is duplicated: country, style, aromas, tags,
// moods, grape varieties and dishes.
func (r *BilingualResolver) ResolveSecondaryTitles(ctx context.Context, doc catalog.VariantDoc) Titles {
	titles := Titles{}
	seen := map[TitleKey]struct{}{}
	resolve := func(collection, entityID string) {
		key := TitleKey{Collection: collection, ID: entityID}
		if entityID == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		if title, ok := r.Title(ctx, collection, entityID); ok {
			titles[key] = title
		}
	}

	if wine, ok := doc.Wine.Get(); ok {
		if region, ok := wine.Region.Get(); ok {
			resolve(catalog.CollectionCountries, region.Country.ID())
		}
		resolve(catalog.CollectionStyles, wine.Style.ID())
	}
	for _, aroma := range doc.Aromas {
		resolve(catalog.CollectionAromas, aroma.ID())
	}
	for _, tag := range doc.Tags {
		resolve(catalog.CollectionTags, tag.ID())
	}
	for _, mood := range doc.Moods {
		resolve(catalog.CollectionMoods, mood.ID())
	}
	for _, grape := range doc.Grapes {
		resolve(catalog.CollectionGrapeVarieties, grape.Variety.ID())
	}
	for _, dish := range doc.Dishes {
		resolve(catalog.CollectionDishes, dish.ID())
	}
	return titles
}
