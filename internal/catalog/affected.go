package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

const variantIDColumn = "variants.id"

// AffectedVariantIDs returns every variant whose flat projection depends on
// the edited entity.
func (r *Repository) AffectedVariantIDs(ctx context.Context, collection, entityID string) ([]string, error) {
	if collection == CollectionVariants {
		return []string{entityID}, nil
	}

	query, err := r.affectedQuery(ctx, collection, entityID)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := query.Distinct().Order(variantIDColumn).Pluck(variantIDColumn, &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// BacklinkedVariantIDs returns variants of wineries or regions that list the
// edited winery or region as related.
func (r *Repository) BacklinkedVariantIDs(ctx context.Context, collection, entityID string) ([]string, error) {
	base := r.variantsWithWines(ctx)
	switch collection {
	case CollectionWineries:
		base = base.Joins("JOIN winery_related ON winery_related.winery_id = wines.winery_id").
			Where("winery_related.related_winery_id = ?", entityID)
	case CollectionRegions:
		base = base.Joins("JOIN region_related ON region_related.region_id = wines.region_id").
			Where("region_related.related_region_id = ?", entityID)
	default:
		return nil, nil
	}
	var ids []string
	if err := base.Distinct().Order(variantIDColumn).Pluck(variantIDColumn, &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repository) variantsWithWines(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("variants").Joins("JOIN wines ON wines.id = variants.wine_id")
}

func (r *Repository) affectedQuery(ctx context.Context, collection, entityID string) (*gorm.DB, error) {
	variants := r.db.WithContext(ctx).Table("variants")
	switch collection {
	case CollectionWines:
		return variants.Where("variants.wine_id = ?", entityID), nil
	case CollectionWineries:
		return r.variantsWithWines(ctx).Where("wines.winery_id = ?", entityID), nil
	case CollectionRegions:
		return r.variantsWithWines(ctx).Where("wines.region_id = ?", entityID), nil
	case CollectionStyles:
		return r.variantsWithWines(ctx).Where("wines.style_id = ?", entityID), nil
	case CollectionCountries:
		return r.variantsWithWines(ctx).
			Joins("JOIN regions ON regions.id = wines.region_id").
			Where("regions.country_id = ?", entityID), nil
	case CollectionGrapeVarieties:
		return variants.Joins("JOIN variant_grapes ON variant_grapes.variant_id = variants.id").
			Where("variant_grapes.grape_variety_id = ?", entityID), nil
	case CollectionAromas:
		return variants.Joins("JOIN variant_aromas ON variant_aromas.variant_id = variants.id").
			Where("variant_aromas.aroma_id = ?", entityID), nil
	case CollectionAromaAdjectives:
		return variants.Joins("JOIN variant_aromas ON variant_aromas.variant_id = variants.id").
			Joins("JOIN aromas ON aromas.id = variant_aromas.aroma_id").
			Where("aromas.adjective_id = ?", entityID), nil
	case CollectionAromaFlavours:
		return variants.Joins("JOIN variant_aromas ON variant_aromas.variant_id = variants.id").
			Joins("JOIN aromas ON aromas.id = variant_aromas.aroma_id").
			Where("aromas.flavour_id = ?", entityID), nil
	case CollectionTags:
		return variants.Joins("JOIN variant_tags ON variant_tags.variant_id = variants.id").
			Where("variant_tags.tag_id = ?", entityID), nil
	case CollectionMoods:
		return variants.Joins("JOIN variant_moods ON variant_moods.variant_id = variants.id").
			Where("variant_moods.mood_id = ?", entityID), nil
	case CollectionDishes:
		return variants.Joins("JOIN variant_dishes ON variant_dishes.variant_id = variants.id").
			Where("variant_dishes.dish_id = ?", entityID), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
}
