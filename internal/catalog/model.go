package catalog

// Collection names used by hooks and translation lookups.
const (
	CollectionVariants        = "variants"
	CollectionWines           = "wines"
	CollectionWineries        = "wineries"
	CollectionRegions         = "regions"
	CollectionCountries       = "countries"
	CollectionStyles          = "styles"
	CollectionGrapeVarieties  = "grape-varieties"
	CollectionAromas          = "aromas"
	CollectionAromaAdjectives = "aroma-adjectives"
	CollectionAromaFlavours   = "aroma-flavours"
	CollectionTags            = "tags"
	CollectionMoods           = "moods"
	CollectionDishes          = "dishes"
)

// StatusPublished marks a variant visible on the storefront.
const StatusPublished = "published"

// Country is a wine producing country.
type Country struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Title string `gorm:"column:title;size:255;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Country) TableName() string {
	return "countries"
}

// Region is an appellation. Related lists neighbouring appellations.
type Region struct {
	ID        string   `gorm:"column:id;primaryKey;size:64"`
	Title     string   `gorm:"column:title;size:255;not null"`
	CountryID string   `gorm:"column:country_id;size:64;index"`
	Country   *Country `gorm:"foreignKey:CountryID"`
	Related   []Region `gorm:"many2many:region_related;joinForeignKey:RegionID;joinReferences:RelatedRegionID"`
}

// TableName provides the explicit table binding for GORM.
func (Region) TableName() string {
	return "regions"
}

// Winery is a producer. Related lists sibling brands.
type Winery struct {
	ID      string   `gorm:"column:id;primaryKey;size:64"`
	Title   string   `gorm:"column:title;size:255;not null"`
	Related []Winery `gorm:"many2many:winery_related;joinForeignKey:WineryID;joinReferences:RelatedWineryID"`
}

// TableName provides the explicit table binding for GORM.
func (Winery) TableName() string {
	return "wineries"
}

// Style is a wine style such as sparkling or orange.
type Style struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Title string `gorm:"column:title;size:255;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Style) TableName() string {
	return "styles"
}

// Wine groups variants of the same label.
type Wine struct {
	ID       string  `gorm:"column:id;primaryKey;size:64"`
	Title    string  `gorm:"column:title;size:255;not null"`
	WineryID string  `gorm:"column:winery_id;size:64;index"`
	Winery   *Winery `gorm:"foreignKey:WineryID"`
	RegionID string  `gorm:"column:region_id;size:64;index"`
	Region   *Region `gorm:"foreignKey:RegionID"`
	StyleID  string  `gorm:"column:style_id;size:64;index"`
	Style    *Style  `gorm:"foreignKey:StyleID"`
}

// TableName provides the explicit table binding for GORM.
func (Wine) TableName() string {
	return "wines"
}

// GrapeVariety is a grape such as Cabernet Sauvignon.
type GrapeVariety struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Title string `gorm:"column:title;size:255;not null"`
}

// TableName provides the explicit table binding for GORM.
func (GrapeVariety) TableName() string {
	return "grape_varieties"
}

type AromaAdjective struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Title string `gorm:"column:title;size:255;not null"`
}

func (AromaAdjective) TableName() string {
	return "aroma_adjectives"
}

type AromaFlavour struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Title string `gorm:"column:title;size:255;not null"`
}

func (AromaFlavour) TableName() string {
	return "aroma_flavours"
}

// Aroma composes an adjective and a flavour. Its title is generated.
type Aroma struct {
	ID          string          `gorm:"column:id;primaryKey;size:64"`
	AdjectiveID string          `gorm:"column:adjective_id;size:64;index"`
	Adjective   *AromaAdjective `gorm:"foreignKey:AdjectiveID"`
	FlavourID   string          `gorm:"column:flavour_id;size:64;index"`
	Flavour     *AromaFlavour   `gorm:"foreignKey:FlavourID"`
}

// TableName provides the explicit table binding for GORM.
func (Aroma) TableName() string {
	return "aromas"
}

// Title returns the generated primary-locale title.
func (a Aroma) Title() string {
	adjective, flavour := "", ""
	if a.Adjective != nil {
		adjective = a.Adjective.Title
	}
	if a.Flavour != nil {
		flavour = a.Flavour.Title
	}
	return composeAromaTitle(adjective, flavour)
}

type Tag struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Title string `gorm:"column:title;size:255;not null"`
}

func (Tag) TableName() string {
	return "tags"
}

type Mood struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Title string `gorm:"column:title;size:255;not null"`
}

func (Mood) TableName() string {
	return "moods"
}

type Dish struct {
	ID    string `gorm:"column:id;primaryKey;size:64"`
	Title string `gorm:"column:title;size:255;not null"`
}

func (Dish) TableName() string {
	return "dishes"
}

// VariantGrape is one entry of a variant's grape composition.
type VariantGrape struct {
	VariantID      string        `gorm:"column:variant_id;primaryKey;size:64"`
	Position       int           `gorm:"column:position;primaryKey"`
	GrapeVarietyID string        `gorm:"column:grape_variety_id;size:64;index"`
	GrapeVariety   *GrapeVariety `gorm:"foreignKey:GrapeVarietyID"`
	Percentage     int           `gorm:"column:percentage;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (VariantGrape) TableName() string {
	return "variant_grapes"
}

// VariantMedia is an ordered image attached to a variant.
type VariantMedia struct {
	VariantID string `gorm:"column:variant_id;primaryKey;size:64"`
	Position  int    `gorm:"column:position;primaryKey"`
	URL       string `gorm:"column:url;size:1024"`
	Alt       string `gorm:"column:alt;size:255"`
}

// TableName provides the explicit table binding for GORM.
func (VariantMedia) TableName() string {
	return "variant_media"
}

// Variant is the authored, normalized record for one bottling of a wine.
type Variant struct {
	ID                 string   `gorm:"column:id;primaryKey;size:64"`
	WineID             string   `gorm:"column:wine_id;size:64;index"`
	Wine               *Wine    `gorm:"foreignKey:WineID"`
	Vintage            *int     `gorm:"column:vintage"`
	Size               string   `gorm:"column:size;size:32"`
	Price              *float64 `gorm:"column:price"`
	StockOnHand        *int     `gorm:"column:stock_on_hand"`
	CanBackorder       *bool    `gorm:"column:can_backorder"`
	MaxBackorder       *int     `gorm:"column:max_backorder"`
	ServingTemperature string   `gorm:"column:serving_temperature;size:64"`
	Decanting          *bool    `gorm:"column:decanting"`
	TastingProfile     string   `gorm:"column:tasting_profile;type:text"`
	Status             string   `gorm:"column:status;size:16;not null;default:draft"`

	NoteAcidity   *int `gorm:"column:note_acidity"`
	NoteAlcohol   *int `gorm:"column:note_alcohol"`
	NoteBody      *int `gorm:"column:note_body"`
	NoteComplex   *int `gorm:"column:note_complexity"`
	NoteFinish    *int `gorm:"column:note_finish"`
	NoteFruit     *int `gorm:"column:note_fruit"`
	NoteMinerals  *int `gorm:"column:note_minerality"`
	NoteOak       *int `gorm:"column:note_oak"`
	NoteSweetness *int `gorm:"column:note_sweetness"`
	NoteTannin    *int `gorm:"column:note_tannin"`

	Grapes []VariantGrape `gorm:"foreignKey:VariantID"`
	Media  []VariantMedia `gorm:"foreignKey:VariantID"`
	Aromas []Aroma        `gorm:"many2many:variant_aromas;joinForeignKey:VariantID;joinReferences:AromaID"`
	Tags   []Tag          `gorm:"many2many:variant_tags;joinForeignKey:VariantID;joinReferences:TagID"`
	Moods  []Mood         `gorm:"many2many:variant_moods;joinForeignKey:VariantID;joinReferences:MoodID"`
	Dishes []Dish         `gorm:"many2many:variant_dishes;joinForeignKey:VariantID;joinReferences:DishID"`
}

// TableName provides the explicit table binding for GORM.
func (Variant) TableName() string {
	return "variants"
}

// Translation stores the title of an entity under a non-primary locale.
type Translation struct {
	Collection string `gorm:"column:collection;primaryKey;size:64"`
	EntityID   string `gorm:"column:entity_id;primaryKey;size:64"`
	Locale     string `gorm:"column:locale;primaryKey;size:16"`
	Title      string `gorm:"column:title;size:255;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Translation) TableName() string {
	return "translations"
}

// Models lists every catalog row for schema migration.
func Models() []any {
	return []any{
		&Country{}, &Region{}, &Winery{}, &Style{}, &Wine{}, &GrapeVariety{},
		&AromaAdjective{}, &AromaFlavour{}, &Aroma{}, &Tag{}, &Mood{}, &Dish{},
		&Variant{}, &VariantGrape{}, &VariantMedia{}, &Translation{},
	}
}
