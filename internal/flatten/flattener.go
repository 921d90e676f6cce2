package flatten

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/slug"
	"gorm.io/datatypes"
)

const (
	relationWine    = "wine"
	relationWinery  = "wine.winery"
	relationRegion  = "wine.region"
	relationCountry = "wine.region.country"

	minPercentage = 0
	maxPercentage = 100
)

// Input is everything the flattener needs; no I/O happens past this point.
type Input struct {
	ID        string
	Variant   catalog.VariantDoc
	Secondary Titles
	SyncedAt  time.Time
}

// naming is the validated relation chain of a variant.
type naming struct {
	wine     catalog.WineDoc
	winery   catalog.WineryDoc
	region   catalog.RegionDoc
	country  catalog.Entity
	style    catalog.Entity
	hasStyle bool
}

func resolveNaming(doc catalog.VariantDoc) (naming, error) {
	invalid := func(relation string, wineTitle *string) error {
		return &ValidationError{VariantID: doc.ID, Relation: relation, WineTitle: wineTitle}
	}

	wine, ok := doc.Wine.Get()
	if !ok || strings.TrimSpace(wine.Title) == "" {
		var wineTitle *string
		if ok {
			wineTitle = &wine.Title
		}
		return naming{}, invalid(relationWine, wineTitle)
	}
	winery, ok := wine.Winery.Get()
	if !ok || strings.TrimSpace(winery.Title) == "" {
		return naming{}, invalid(relationWinery, &wine.Title)
	}
	region, ok := wine.Region.Get()
	if !ok || strings.TrimSpace(region.Title) == "" {
		return naming{}, invalid(relationRegion, &wine.Title)
	}
	country, ok := region.Country.Get()
	if !ok || strings.TrimSpace(country.Title) == "" {
		return naming{}, invalid(relationCountry, &wine.Title)
	}
	style, hasStyle := wine.Style.Get()
	return naming{
		wine:     wine,
		winery:   winery,
		region:   region,
		country:  country,
		style:    style,
		hasStyle: hasStyle,
	}, nil
}

// Flatten builds the flat record of a fully resolved source variant.
func Flatten(input Input) (flat.Variant, error) {
	doc := input.Variant
	names, err := resolveNaming(doc)
	if err != nil {
		return flat.Variant{}, err
	}

	variant := flat.Variant{
		ID:                 input.ID,
		OriginalVariantID:  doc.ID,
		WineID:             names.wine.ID,
		WineTitle:          names.wine.Title,
		WineryID:           names.winery.ID,
		WineryTitle:        names.winery.Title,
		RegionID:           names.region.ID,
		RegionTitle:        names.region.Title,
		CountryID:          names.country.ID,
		CountryTitle:       names.country.Title,
		CountryTitleEn:     input.Secondary.Lookup(catalog.CollectionCountries, names.country.ID),
		Vintage:            doc.Vintage,
		Size:               doc.Size,
		Price:              doc.Price,
		StockOnHand:        floorZero(doc.StockOnHand),
		CanBackorder:       boolOrFalse(doc.CanBackorder),
		MaxBackorder:       floorZero(doc.MaxBackorder),
		ServingTemperature: doc.ServingTemperature,
		Decanting:          boolOrFalse(doc.Decanting),
		TastingProfile:     doc.TastingProfile,
		IsPublished:        doc.Status == catalog.StatusPublished,
		SyncedAt:           input.SyncedAt,
	}
	if names.hasStyle {
		variant.StyleID = names.style.ID
		variant.StyleTitle = names.style.Title
		variant.StyleTitleEn = input.Secondary.Lookup(catalog.CollectionStyles, names.style.ID)
	}

	if variant.RelatedWineryIDs, err = flat.EncodeList(names.winery.RelatedIDs); err != nil {
		return flat.Variant{}, err
	}
	if variant.RelatedRegionIDs, err = flat.EncodeList(names.region.RelatedIDs); err != nil {
		return flat.Variant{}, err
	}

	if !doc.TastingNotes.IsEmpty() {
		raw, err := json.Marshal(doc.TastingNotes)
		if err != nil {
			return flat.Variant{}, err
		}
		variant.TastingNotes = raw
	}

	groups := []struct {
		collection string
		refs       []catalog.Ref[catalog.Entity]
		target     *datatypes.JSON
	}{
		{collection: catalog.CollectionAromas, refs: doc.Aromas, target: &variant.Aromas},
		{collection: catalog.CollectionTags, refs: doc.Tags, target: &variant.Tags},
		{collection: catalog.CollectionMoods, refs: doc.Moods, target: &variant.Moods},
		{collection: catalog.CollectionDishes, refs: doc.Dishes, target: &variant.Dishes},
	}
	for _, group := range groups {
		encoded, err := flat.EncodeList(titlePairs(group.collection, group.refs, input.Secondary))
		if err != nil {
			return flat.Variant{}, err
		}
		*group.target = encoded
	}

	variant.Grapes = flattenGrapes(doc.Grapes, input.Secondary)
	variant.GrapeCount = len(variant.Grapes)

	if len(doc.Media) > 0 && strings.TrimSpace(doc.Media[0].URL) != "" {
		variant.PrimaryImageURL = doc.Media[0].URL
	}

	variant.Slug = slug.Variant(names.winery.Title, names.wine.Title, names.region.Title, names.country.Title, doc.Vintage, doc.Size)
	variant.SKU = slug.SKU(names.winery.Title, doc.Vintage, doc.Size, names.wine.Title)
	return variant, nil
}

func titlePairs(collection string, refs []catalog.Ref[catalog.Entity], secondary Titles) []flat.TitlePair {
	var pairs []flat.TitlePair
	for _, ref := range refs {
		entity, ok := ref.Get()
		if !ok || entity.Title == "" {
			continue
		}
		pairs = append(pairs, flat.TitlePair{
			Title:   entity.Title,
			TitleEn: secondary.Lookup(collection, ref.ID()),
		})
	}
	return pairs
}

func flattenGrapes(shares []catalog.GrapeShare, secondary Titles) []flat.Grape {
	var grapes []flat.Grape
	for _, share := range shares {
		variety, ok := share.Variety.Get()
		if !ok {
			continue
		}
		grapes = append(grapes, flat.Grape{
			Position:   len(grapes),
			GrapeID:    share.Variety.ID(),
			Title:      variety.Title,
			TitleEn:    secondary.Lookup(catalog.CollectionGrapeVarieties, share.Variety.ID()),
			Percentage: clampPercentage(share.Percentage),
		})
	}
	return grapes
}

func floorZero(value *int) int {
	if value == nil || *value < 0 {
		return 0
	}
	return *value
}

func boolOrFalse(value *bool) bool {
	return value != nil && *value
}

func clampPercentage(value int) int {
	if value < minPercentage {
		return minPercentage
	}
	if value > maxPercentage {
		return maxPercentage
	}
	return value
}
