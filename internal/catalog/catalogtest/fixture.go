// Package catalogtest seeds catalog records for tests in other packages.
package catalogtest

import (
	"testing"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"gorm.io/gorm"
)

// Fixture writes catalog rows and fails the test on error.
type Fixture struct {
	t  *testing.T
	db *gorm.DB
}

// New returns a fixture bound to the database.
func New(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()
	return &Fixture{t: t, db: db}
}

// GrapeSpec is one composition entry of a seeded variant.
type GrapeSpec struct {
	GrapeID    string
	Percentage int
}

// VariantSpec describes a seeded variant.
type VariantSpec struct {
	ID                 string
	WineID             string
	Vintage            *int
	Size               string
	Price              *float64
	StockOnHand        *int
	CanBackorder       *bool
	ServingTemperature string
	Decanting          *bool
	TastingProfile     string
	Status             string
	Body               *int
	Tannin             *int
	Grapes             []GrapeSpec
	AromaIDs           []string
	TagIDs             []string
	MoodIDs            []string
	DishIDs            []string
	MediaURLs          []string
}

func (f *Fixture) create(value any) {
	f.t.Helper()
	if err := f.db.Create(value).Error; err != nil {
		f.t.Fatalf("failed to seed %T: %v", value, err)
	}
}

func (f *Fixture) link(table, leftColumn, rightColumn, leftID, rightID string) {
	f.t.Helper()
	err := f.db.Exec("INSERT INTO "+table+" ("+leftColumn+", "+rightColumn+") VALUES (?, ?)", leftID, rightID).Error
	if err != nil {
		f.t.Fatalf("failed to link %s: %v", table, err)
	}
}

func (f *Fixture) Country(id, title string) {
	f.create(&catalog.Country{ID: id, Title: title})
}

func (f *Fixture) Region(id, title, countryID string, relatedIDs ...string) {
	f.create(&catalog.Region{ID: id, Title: title, CountryID: countryID})
	for _, relatedID := range relatedIDs {
		f.link("region_related", "region_id", "related_region_id", id, relatedID)
	}
}

func (f *Fixture) Winery(id, title string, relatedIDs ...string) {
	f.create(&catalog.Winery{ID: id, Title: title})
	for _, relatedID := range relatedIDs {
		f.link("winery_related", "winery_id", "related_winery_id", id, relatedID)
	}
}

func (f *Fixture) Style(id, title string) {
	f.create(&catalog.Style{ID: id, Title: title})
}

func (f *Fixture) Grape(id, title string) {
	f.create(&catalog.GrapeVariety{ID: id, Title: title})
}

func (f *Fixture) Tag(id, title string) {
	f.create(&catalog.Tag{ID: id, Title: title})
}

func (f *Fixture) Mood(id, title string) {
	f.create(&catalog.Mood{ID: id, Title: title})
}

func (f *Fixture) Dish(id, title string) {
	f.create(&catalog.Dish{ID: id, Title: title})
}

// Aroma seeds an aroma together with its adjective and flavour.
func (f *Fixture) Aroma(id, adjectiveID, adjective, flavourID, flavour string) {
	f.create(&catalog.AromaAdjective{ID: adjectiveID, Title: adjective})
	f.create(&catalog.AromaFlavour{ID: flavourID, Title: flavour})
	f.create(&catalog.Aroma{ID: id, AdjectiveID: adjectiveID, FlavourID: flavourID})
}

func (f *Fixture) Wine(id, title, wineryID, regionID, styleID string) {
	f.create(&catalog.Wine{ID: id, Title: title, WineryID: wineryID, RegionID: regionID, StyleID: styleID})
}

// Translate stores a secondary-locale title.
func (f *Fixture) Translate(collection, entityID, locale, title string) {
	f.create(&catalog.Translation{Collection: collection, EntityID: entityID, Locale: locale, Title: title})
}

// Variant seeds a variant with its composition, media and relations.
func (f *Fixture) Variant(spec VariantSpec) {
	f.t.Helper()
	status := spec.Status
	if status == "" {
		status = catalog.StatusPublished
	}
	f.create(&catalog.Variant{
		ID:                 spec.ID,
		WineID:             spec.WineID,
		Vintage:            spec.Vintage,
		Size:               spec.Size,
		Price:              spec.Price,
		StockOnHand:        spec.StockOnHand,
		CanBackorder:       spec.CanBackorder,
		ServingTemperature: spec.ServingTemperature,
		Decanting:          spec.Decanting,
		TastingProfile:     spec.TastingProfile,
		Status:             status,
		NoteBody:           spec.Body,
		NoteTannin:         spec.Tannin,
	})
	for position, grape := range spec.Grapes {
		f.create(&catalog.VariantGrape{
			VariantID:      spec.ID,
			Position:       position,
			GrapeVarietyID: grape.GrapeID,
			Percentage:     grape.Percentage,
		})
	}
	for position, url := range spec.MediaURLs {
		f.create(&catalog.VariantMedia{VariantID: spec.ID, Position: position, URL: url})
	}
	for _, aromaID := range spec.AromaIDs {
		f.link("variant_aromas", "variant_id", "aroma_id", spec.ID, aromaID)
	}
	for _, tagID := range spec.TagIDs {
		f.link("variant_tags", "variant_id", "tag_id", spec.ID, tagID)
	}
	for _, moodID := range spec.MoodIDs {
		f.link("variant_moods", "variant_id", "mood_id", spec.ID, moodID)
	}
	for _, dishID := range spec.DishIDs {
		f.link("variant_dishes", "variant_id", "dish_id", spec.ID, dishID)
	}
}

// DeleteVariant removes a variant and its owned rows.
func (f *Fixture) DeleteVariant(id string) {
	f.t.Helper()
	for _, table := range []string{"variant_grapes", "variant_media", "variant_aromas", "variant_tags", "variant_moods", "variant_dishes"} {
		if err := f.db.Exec("DELETE FROM "+table+" WHERE variant_id = ?", id).Error; err != nil {
			f.t.Fatalf("failed to delete from %s: %v", table, err)
		}
	}
	if err := f.db.Where("id = ?", id).Delete(&catalog.Variant{}).Error; err != nil {
		f.t.Fatalf("failed to delete variant: %v", err)
	}
}

// Standard seeds a small Slovenian catalog used across tests:
// winery-movia (related winery-simcic), region-brda (related region-vipava),
// country-si, styles red and white, grapes cab, merlot, rebula.
func (f *Fixture) Standard() {
	f.Country("country-si", "Slovenija")
	f.Translate(catalog.CollectionCountries, "country-si", "en", "Slovenia")
	f.Region("region-vipava", "Vipavska dolina", "country-si")
	f.Region("region-brda", "Goriška Brda", "country-si", "region-vipava")
	f.Region("region-kras", "Kras", "country-si")
	f.Winery("winery-simcic", "Simčič")
	f.Winery("winery-movia", "Movia", "winery-simcic")
	f.Winery("winery-batic", "Batič")
	f.Style("style-red", "Rdeče")
	f.Translate(catalog.CollectionStyles, "style-red", "en", "Red")
	f.Style("style-white", "Belo")
	f.Translate(catalog.CollectionStyles, "style-white", "en", "White")
	f.Grape("grape-cab", "Cabernet Sauvignon")
	f.Grape("grape-merlot", "Merlot")
	f.Grape("grape-rebula", "Rebula")
	f.Translate(catalog.CollectionGrapeVarieties, "grape-rebula", "en", "Ribolla Gialla")
}

func Int(value int) *int {
	return &value
}

func Float(value float64) *float64 {
	return &value
}

func Bool(value bool) *bool {
	return &value
}
