package flatten

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
	"github.com/stretchr/testify/require"
)

func intPointer(value int) *int {
	return &value
}

func floatPointer(value float64) *float64 {
	return &value
}

func entityRef(id, title string) catalog.Ref[catalog.Entity] {
	return catalog.Resolved(id, catalog.Entity{ID: id, Title: title})
}

func sampleDoc() catalog.VariantDoc {
	region := catalog.RegionDoc{
		ID:         "region-brda",
		Title:      "Goriška Brda",
		Country:    entityRef("country-si", "Slovenija"),
		RelatedIDs: []string{"region-vipava"},
	}
	winery := catalog.WineryDoc{ID: "winery-movia", Title: "Movia", RelatedIDs: []string{"winery-simcic"}}
	wine := catalog.WineDoc{
		ID:     "wine-veliko",
		Title:  "Veliko Rdeče",
		Winery: catalog.Resolved(winery.ID, winery),
		Region: catalog.Resolved(region.ID, region),
		Style:  entityRef("style-red", "Rdeče"),
	}
	return catalog.VariantDoc{
		ID:          "variant-1",
		Wine:        catalog.Resolved(wine.ID, wine),
		Vintage:     intPointer(2019),
		Size:        "0.75 l",
		Price:       floatPointer(32.5),
		StockOnHand: intPointer(12),
		Grapes: []catalog.GrapeShare{
			{Variety: entityRef("grape-merlot", "Merlot"), Percentage: 70},
			{Variety: entityRef("grape-cab", "Cabernet Sauvignon"), Percentage: 30},
		},
		Tags:   []catalog.Ref[catalog.Entity]{entityRef("tag-organic", "Ekološko")},
		Media:  []catalog.Media{{URL: "https://cdn.example.com/a.jpg"}, {URL: "https://cdn.example.com/b.jpg"}},
		Status: catalog.StatusPublished,
	}
}

func sampleInput(doc catalog.VariantDoc) Input {
	return Input{
		ID:      "flat-1",
		Variant: doc,
		Secondary: Titles{
			{Collection: catalog.CollectionCountries, ID: "country-si"}: "Slovenia",
			{Collection: catalog.CollectionStyles, ID: "style-red"}:     "Red",
			{Collection: catalog.CollectionTags, ID: "tag-organic"}:     "Organic",
		},
		SyncedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFlattenIsDeterministic(t *testing.T) {
	first, err := Flatten(sampleInput(sampleDoc()))
	require.NoError(t, err)
	second, err := Flatten(sampleInput(sampleDoc()))
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, string(firstJSON), string(secondJSON))
	require.Equal(t, "movia-veliko-rdece-goriska-brda-slovenija-2019-0-75-l", first.Slug)
	require.Equal(t, "MOV-VEL-19-075", first.SKU)
}

func TestFlattenCopiesNamingAndSecondaryTitles(t *testing.T) {
	variant, err := Flatten(sampleInput(sampleDoc()))
	require.NoError(t, err)

	require.Equal(t, "flat-1", variant.ID)
	require.Equal(t, "variant-1", variant.OriginalVariantID)
	require.Equal(t, "Movia", variant.WineryTitle)
	require.Equal(t, "Goriška Brda", variant.RegionTitle)
	require.Equal(t, "Slovenija", variant.CountryTitle)
	require.Equal(t, "Slovenia", variant.CountryTitleEn)
	require.Equal(t, "style-red", variant.StyleID)
	require.Equal(t, "Red", variant.StyleTitleEn)
	require.Equal(t, []string{"winery-simcic"}, variant.RelatedWineries())
	require.Equal(t, []string{"region-vipava"}, variant.RelatedRegions())
	require.True(t, variant.IsPublished)
	require.Equal(t, 12, variant.StockOnHand)
	require.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), variant.SyncedAt)

	tags, err := flat.DecodeList[flat.TitlePair](variant.Tags)
	require.NoError(t, err)
	require.Equal(t, []flat.TitlePair{{Title: "Ekološko", TitleEn: "Organic"}}, tags)

	require.Len(t, variant.Grapes, 2)
	require.Equal(t, 2, variant.GrapeCount)
	require.Equal(t, "grape-merlot", variant.Grapes[0].GrapeID)
	require.Equal(t, 70, variant.Grapes[0].Percentage)
	require.Equal(t, "https://cdn.example.com/a.jpg", variant.PrimaryImageURL)
}

func TestFlattenDefaultsMissingScalars(t *testing.T) {
	doc := sampleDoc()
	doc.StockOnHand = nil
	doc.CanBackorder = nil
	doc.MaxBackorder = intPointer(-3)
	doc.Decanting = nil
	doc.Status = "draft"

	variant, err := Flatten(sampleInput(doc))
	require.NoError(t, err)
	require.Equal(t, 0, variant.StockOnHand)
	require.False(t, variant.CanBackorder)
	require.Equal(t, 0, variant.MaxBackorder)
	require.False(t, variant.Decanting)
	require.False(t, variant.IsPublished)
}

func TestFlattenOmitsEmptyGroups(t *testing.T) {
	doc := sampleDoc()
	doc.Tags = nil
	doc.Grapes = nil
	doc.Media = nil
	doc.Aromas = []catalog.Ref[catalog.Entity]{catalog.Unresolved[catalog.Entity]("aroma-gone")}

	variant, err := Flatten(sampleInput(doc))
	require.NoError(t, err)
	require.Nil(t, variant.Tags)
	require.Nil(t, variant.Aromas)
	require.Nil(t, variant.Moods)
	require.Nil(t, variant.Dishes)
	require.Nil(t, variant.Grapes)
	require.Zero(t, variant.GrapeCount)
	require.Empty(t, variant.PrimaryImageURL)

	encoded, err := json.Marshal(variant)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(encoded, &fields))
	for _, key := range []string{"tags", "aromas", "moods", "dishes", "grapeVarieties", "primaryImageUrl", "tastingNotes"} {
		require.NotContains(t, fields, key)
	}
}

func TestFlattenTastingNotesOnlyWhenAnyAxisSet(t *testing.T) {
	variant, err := Flatten(sampleInput(sampleDoc()))
	require.NoError(t, err)
	require.Nil(t, variant.TastingNotes)

	doc := sampleDoc()
	doc.TastingNotes.Body = intPointer(7)
	variant, err = Flatten(sampleInput(doc))
	require.NoError(t, err)
	require.JSONEq(t, `{"body":7}`, string(variant.TastingNotes))
}

func TestFlattenClampsGrapePercentages(t *testing.T) {
	doc := sampleDoc()
	doc.Grapes = []catalog.GrapeShare{
		{Variety: entityRef("grape-merlot", "Merlot"), Percentage: 140},
		{Variety: entityRef("grape-cab", "Cabernet Sauvignon"), Percentage: -5},
		{Variety: catalog.Unresolved[catalog.Entity]("grape-gone"), Percentage: 10},
	}
	variant, err := Flatten(sampleInput(doc))
	require.NoError(t, err)
	require.Len(t, variant.Grapes, 2)
	require.Equal(t, 100, variant.Grapes[0].Percentage)
	require.Equal(t, 0, variant.Grapes[1].Percentage)
	require.Equal(t, 1, variant.Grapes[1].Position)
}

func TestFlattenValidation(t *testing.T) {
	wineTitle := "Veliko Rdeče"
	testCases := []struct {
		name          string
		mutate        func(doc *catalog.VariantDoc)
		wantRelation  string
		wantWineTitle *string
	}{
		{
			name: "unresolved wine",
			mutate: func(doc *catalog.VariantDoc) {
				doc.Wine = catalog.Unresolved[catalog.WineDoc]("wine-veliko")
			},
			wantRelation: relationWine,
		},
		{
			name: "missing winery",
			mutate: func(doc *catalog.VariantDoc) {
				wine, _ := doc.Wine.Get()
				wine.Winery = catalog.Unresolved[catalog.WineryDoc]("winery-gone")
				doc.Wine = catalog.Resolved(wine.ID, wine)
			},
			wantRelation:  relationWinery,
			wantWineTitle: &wineTitle,
		},
		{
			name: "region without title",
			mutate: func(doc *catalog.VariantDoc) {
				wine, _ := doc.Wine.Get()
				region, _ := wine.Region.Get()
				region.Title = "  "
				wine.Region = catalog.Resolved(region.ID, region)
				doc.Wine = catalog.Resolved(wine.ID, wine)
			},
			wantRelation:  relationRegion,
			wantWineTitle: &wineTitle,
		},
		{
			name: "missing country",
			mutate: func(doc *catalog.VariantDoc) {
				wine, _ := doc.Wine.Get()
				region, _ := wine.Region.Get()
				region.Country = catalog.Unresolved[catalog.Entity]("")
				wine.Region = catalog.Resolved(region.ID, region)
				doc.Wine = catalog.Resolved(wine.ID, wine)
			},
			wantRelation:  relationCountry,
			wantWineTitle: &wineTitle,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			doc := sampleDoc()
			testCase.mutate(&doc)

			_, err := Flatten(sampleInput(doc))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrValidation))

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			require.Equal(t, "variant-1", validationErr.VariantID)
			require.Equal(t, testCase.wantRelation, validationErr.Relation)
			require.Equal(t, testCase.wantWineTitle, validationErr.WineTitle)
		})
	}
}

func TestFlattenWithoutStyle(t *testing.T) {
	doc := sampleDoc()
	wine, _ := doc.Wine.Get()
	wine.Style = catalog.Unresolved[catalog.Entity]("")
	doc.Wine = catalog.Resolved(wine.ID, wine)

	variant, err := Flatten(sampleInput(doc))
	require.NoError(t, err)
	require.Empty(t, variant.StyleID)
	require.Empty(t, variant.StyleTitle)
}
