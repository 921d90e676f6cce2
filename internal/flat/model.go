package flat

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TitlePair carries a primary-locale title and its secondary-locale copy.
type TitlePair struct {
	Title   string `json:"title"`
	TitleEn string `json:"titleEn,omitempty"`
}

// Grape is one entry of a flat variant's grape composition.
type Grape struct {
	FlatVariantID string `gorm:"column:flat_variant_id;primaryKey;size:64" json:"-"`
	Position      int    `gorm:"column:position;primaryKey" json:"-"`
	GrapeID       string `gorm:"column:grape_id;size:64;not null;index" json:"grapeId"`
	Title         string `gorm:"column:title;size:255;not null" json:"title"`
	TitleEn       string `gorm:"column:title_en;size:255" json:"titleEn,omitempty"`
	Percentage    int    `gorm:"column:percentage;not null;default:0" json:"percentage"`
}

// TableName provides the explicit table binding for GORM.
func (Grape) TableName() string {
	return "flat_variant_grapes"
}

// Variant is the denormalized, render-ready projection of a source variant.
type Variant struct {
	ID                 string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	OriginalVariantID  string         `gorm:"column:original_variant_id;size:64;not null;uniqueIndex" json:"originalVariantId"`
	WineID             string         `gorm:"column:wine_id;size:64;not null" json:"wineId"`
	WineTitle          string         `gorm:"column:wine_title;size:255;not null" json:"wineTitle"`
	WineryID           string         `gorm:"column:winery_id;size:64;not null;index" json:"wineryId"`
	WineryTitle        string         `gorm:"column:winery_title;size:255;not null" json:"wineryTitle"`
	RelatedWineryIDs   datatypes.JSON `gorm:"column:related_winery_ids" json:"relatedWineryIds,omitempty"`
	RegionID           string         `gorm:"column:region_id;size:64;not null;index" json:"regionId"`
	RegionTitle        string         `gorm:"column:region_title;size:255;not null" json:"regionTitle"`
	RelatedRegionIDs   datatypes.JSON `gorm:"column:related_region_ids" json:"relatedRegionIds,omitempty"`
	CountryID          string         `gorm:"column:country_id;size:64;not null" json:"countryId"`
	CountryTitle       string         `gorm:"column:country_title;size:255;not null" json:"countryTitle"`
	CountryTitleEn     string         `gorm:"column:country_title_en;size:255" json:"countryTitleEn,omitempty"`
	StyleID            string         `gorm:"column:style_id;size:64;index" json:"styleId,omitempty"`
	StyleTitle         string         `gorm:"column:style_title;size:255" json:"styleTitle,omitempty"`
	StyleTitleEn       string         `gorm:"column:style_title_en;size:255" json:"styleTitleEn,omitempty"`
	Vintage            *int           `gorm:"column:vintage" json:"vintage,omitempty"`
	Size               string         `gorm:"column:size;size:32" json:"size,omitempty"`
	Price              *float64       `gorm:"column:price;index" json:"price,omitempty"`
	StockOnHand        int            `gorm:"column:stock_on_hand;not null;default:0" json:"stockOnHand"`
	CanBackorder       bool           `gorm:"column:can_backorder;not null;default:false" json:"canBackorder"`
	MaxBackorder       int            `gorm:"column:max_backorder;not null;default:0" json:"maxBackorder"`
	ServingTemperature string         `gorm:"column:serving_temperature;size:64" json:"servingTemperature,omitempty"`
	Decanting          bool           `gorm:"column:decanting;not null;default:false" json:"decanting"`
	TastingProfile     string         `gorm:"column:tasting_profile;type:text" json:"tastingProfile,omitempty"`
	TastingNotes       datatypes.JSON `gorm:"column:tasting_notes" json:"tastingNotes,omitempty"`
	Aromas             datatypes.JSON `gorm:"column:aromas" json:"aromas,omitempty"`
	Tags               datatypes.JSON `gorm:"column:tags" json:"tags,omitempty"`
	Moods              datatypes.JSON `gorm:"column:moods" json:"moods,omitempty"`
	Dishes             datatypes.JSON `gorm:"column:dishes" json:"dishes,omitempty"`
	GrapeCount         int            `gorm:"column:grape_count;not null;default:0;index" json:"-"`
	Grapes             []Grape        `gorm:"foreignKey:FlatVariantID" json:"grapeVarieties,omitempty"`
	PrimaryImageURL    string         `gorm:"column:primary_image_url;size:1024" json:"primaryImageUrl,omitempty"`
	Slug               string         `gorm:"column:slug;size:255;not null;index" json:"slug"`
	SKU                string         `gorm:"column:sku;size:64;not null" json:"sku"`
	IsPublished        bool           `gorm:"column:is_published;not null;default:false;index" json:"isPublished"`
	SyncedAt           time.Time      `gorm:"column:synced_at;not null" json:"syncedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Variant) TableName() string {
	return "flat_variants"
}

// Models lists the flat tables for schema migration.
func Models() []any {
	return []any{&Variant{}, &Grape{}}
}

// EncodeList encodes a non-empty list as JSON; an empty list encodes to nil so
// the column is stored as NULL.
func EncodeList[T any](items []T) (datatypes.JSON, error) {
	if len(items) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeList decodes a JSON column produced by EncodeList.
func DecodeList[T any](raw datatypes.JSON) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// RelatedWineries returns the sibling winery ids denormalized from the source.
func (v Variant) RelatedWineries() []string {
	ids, _ := DecodeList[string](v.RelatedWineryIDs)
	return ids
}

// RelatedRegions returns the neighbouring region ids denormalized from the source.
func (v Variant) RelatedRegions() []string {
	ids, _ := DecodeList[string](v.RelatedRegionIDs)
	return ids
}

// PercentageOf returns the share of the grape in the composition, or -1.
func (v Variant) PercentageOf(grapeID string) int {
	for _, grape := range v.Grapes {
		if grape.GrapeID == grapeID {
			return grape.Percentage
		}
	}
	return -1
}
