package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrVariantNotFound indicates that no source variant exists for the id.
	ErrVariantNotFound = errors.New("catalog: variant not found")
	// ErrTitleNotFound indicates that an entity has no title in the requested locale.
	ErrTitleNotFound = errors.New("catalog: title not found")
	// ErrUnknownCollection indicates a collection name the catalog does not manage.
	ErrUnknownCollection = errors.New("catalog: unknown collection")

	errMissingDatabase = errors.New("catalog: database handle is required")
)

const (
	orderPositionAsc = "position ASC"
	orderIDAsc       = "id ASC"
)

// RepositoryConfig describes the dependencies of the catalog repository.
type RepositoryConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Repository reads source records from the content store.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRepository constructs a catalog repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: cfg.Database, logger: logger}, nil
}

// FindVariant loads a variant with every relation resolved.
func (r *Repository) FindVariant(ctx context.Context, variantID string) (VariantDoc, error) {
	var row Variant
	err := r.db.WithContext(ctx).
		Preload("Wine.Winery.Related", orderedByID).
		Preload("Wine.Region.Country").
		Preload("Wine.Region.Related", orderedByID).
		Preload("Wine.Style").
		Preload("Grapes", orderedByPosition).
		Preload("Grapes.GrapeVariety").
		Preload("Media", orderedByPosition).
		Preload("Aromas.Adjective").
		Preload("Aromas.Flavour").
		Preload("Tags").
		Preload("Moods").
		Preload("Dishes").
		Where("id = ?", variantID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return VariantDoc{}, fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
	}
	if err != nil {
		return VariantDoc{}, err
	}
	return toVariantDoc(row), nil
}

// ListVariantIDs returns every source variant id.
func (r *Repository) ListVariantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&Variant{}).Order(orderIDAsc).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// LocalizedTitle returns the title of an entity under the given locale.
// Aroma titles are generated from their adjective and flavour.
func (r *Repository) LocalizedTitle(ctx context.Context, collection, entityID, locale string) (string, error) {
	if collection == CollectionAromas {
		return r.localizedAromaTitle(ctx, entityID, locale)
	}
	var translation Translation
	err := r.db.WithContext(ctx).
		Where("collection = ? AND entity_id = ? AND locale = ?", collection, entityID, locale).
		Take(&translation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s/%s@%s", ErrTitleNotFound, collection, entityID, locale)
	}
	if err != nil {
		return "", err
	}
	return translation.Title, nil
}

func (r *Repository) localizedAromaTitle(ctx context.Context, aromaID, locale string) (string, error) {
	var aroma Aroma
	err := r.db.WithContext(ctx).Preload("Adjective").Preload("Flavour").Where("id = ?", aromaID).Take(&aroma).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s/%s@%s", ErrTitleNotFound, CollectionAromas, aromaID, locale)
	}
	if err != nil {
		return "", err
	}

	adjective, adjectiveFound, err := r.partTitle(ctx, CollectionAromaAdjectives, aroma.AdjectiveID, locale)
	if err != nil {
		return "", err
	}
	flavour, flavourFound, err := r.partTitle(ctx, CollectionAromaFlavours, aroma.FlavourID, locale)
	if err != nil {
		return "", err
	}
	if !adjectiveFound && !flavourFound {
		return "", fmt.Errorf("%w: %s/%s@%s", ErrTitleNotFound, CollectionAromas, aromaID, locale)
	}
	if !adjectiveFound && aroma.Adjective != nil {
		adjective = aroma.Adjective.Title
	}
	if !flavourFound && aroma.Flavour != nil {
		flavour = aroma.Flavour.Title
	}
	return composeAromaTitle(adjective, flavour), nil
}

func (r *Repository) partTitle(ctx context.Context, collection, entityID, locale string) (string, bool, error) {
	if entityID == "" {
		return "", false, nil
	}
	var translation Translation
	err := r.db.WithContext(ctx).
		Where("collection = ? AND entity_id = ? AND locale = ?", collection, entityID, locale).
		Take(&translation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return translation.Title, true, nil
}

func orderedByPosition(db *gorm.DB) *gorm.DB {
	return db.Order(orderPositionAsc)
}

func orderedByID(db *gorm.DB) *gorm.DB {
	return db.Order(orderIDAsc)
}

func toVariantDoc(row Variant) VariantDoc {
	doc := VariantDoc{
		ID:                 row.ID,
		Wine:               Unresolved[WineDoc](row.WineID),
		Vintage:            row.Vintage,
		Size:               row.Size,
		Price:              row.Price,
		StockOnHand:        row.StockOnHand,
		CanBackorder:       row.CanBackorder,
		MaxBackorder:       row.MaxBackorder,
		ServingTemperature: row.ServingTemperature,
		Decanting:          row.Decanting,
		TastingProfile:     row.TastingProfile,
		Status:             row.Status,
		TastingNotes: TastingNotes{
			Acidity:    row.NoteAcidity,
			Alcohol:    row.NoteAlcohol,
			Body:       row.NoteBody,
			Complexity: row.NoteComplex,
			Finish:     row.NoteFinish,
			Fruit:      row.NoteFruit,
			Minerality: row.NoteMinerals,
			Oak:        row.NoteOak,
			Sweetness:  row.NoteSweetness,
			Tannin:     row.NoteTannin,
		},
	}
	if row.Wine != nil {
		doc.Wine = Resolved(row.WineID, toWineDoc(*row.Wine))
	}

	for _, grape := range row.Grapes {
		share := GrapeShare{
			Variety:    Unresolved[Entity](grape.GrapeVarietyID),
			Percentage: grape.Percentage,
		}
		if grape.GrapeVariety != nil {
			share.Variety = Resolved(grape.GrapeVarietyID, Entity{ID: grape.GrapeVariety.ID, Title: grape.GrapeVariety.Title})
		}
		doc.Grapes = append(doc.Grapes, share)
	}
	for _, media := range row.Media {
		doc.Media = append(doc.Media, Media{URL: media.URL, Alt: media.Alt})
	}
	for _, aroma := range row.Aromas {
		doc.Aromas = append(doc.Aromas, Resolved(aroma.ID, Entity{ID: aroma.ID, Title: aroma.Title()}))
	}
	for _, tag := range row.Tags {
		doc.Tags = append(doc.Tags, Resolved(tag.ID, Entity{ID: tag.ID, Title: tag.Title}))
	}
	for _, mood := range row.Moods {
		doc.Moods = append(doc.Moods, Resolved(mood.ID, Entity{ID: mood.ID, Title: mood.Title}))
	}
	for _, dish := range row.Dishes {
		doc.Dishes = append(doc.Dishes, Resolved(dish.ID, Entity{ID: dish.ID, Title: dish.Title}))
	}
	return doc
}

func toWineDoc(row Wine) WineDoc {
	wine := WineDoc{
		ID:     row.ID,
		Title:  row.Title,
		Winery: Unresolved[WineryDoc](row.WineryID),
		Region: Unresolved[RegionDoc](row.RegionID),
		Style:  Unresolved[Entity](row.StyleID),
	}
	if row.Winery != nil {
		winery := WineryDoc{ID: row.Winery.ID, Title: row.Winery.Title}
		for _, related := range row.Winery.Related {
			winery.RelatedIDs = append(winery.RelatedIDs, related.ID)
		}
		wine.Winery = Resolved(row.WineryID, winery)
	}
	if row.Region != nil {
		region := RegionDoc{
			ID:      row.Region.ID,
			Title:   row.Region.Title,
			Country: Unresolved[Entity](row.Region.CountryID),
		}
		if row.Region.Country != nil {
			region.Country = Resolved(row.Region.CountryID, Entity{ID: row.Region.Country.ID, Title: row.Region.Country.Title})
		}
		for _, related := range row.Region.Related {
			region.RelatedIDs = append(region.RelatedIDs, related.ID)
		}
		wine.Region = Resolved(row.RegionID, region)
	}
	if row.Style != nil {
		wine.Style = Resolved(row.StyleID, Entity{ID: row.Style.ID, Title: row.Style.Title})
	}
	return wine
}
