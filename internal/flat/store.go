package flat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates that no flat record exists for the original variant id.
	ErrNotFound = errors.New("flat: variant not found")

	errMissingDatabase = errors.New("flat: database handle is required")
)

const (
	columnOriginalVariantID = "original_variant_id"
	queryOriginalVariantID  = columnOriginalVariantID + " = ?"
	orderGrapePosition      = "position ASC"
	grapeMembershipClause   = "EXISTS (SELECT 1 FROM flat_variant_grapes WHERE flat_variant_grapes.flat_variant_id = flat_variants.id AND flat_variant_grapes.grape_id = ?)"
)

// IDProvider issues identifiers for new flat records.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// StoreConfig describes the dependencies of the flat store.
type StoreConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store reads and writes flat variants.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore constructs a flat store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, logger: logger}, nil
}

// Query filters flat variants. Zero-valued fields do not filter.
type Query struct {
	OnlyAvailable      bool
	ExcludeOriginalIDs []string
	WineryIDs          []string
	RegionIDs          []string
	StyleID            string
	MinPrice           *float64
	MaxPrice           *float64
	GrapeID            string
	GrapeCount         int
	MinGrapeCount      int
	OrderBy            string
	Limit              int
}

// FindByOriginalID returns the flat record of a source variant.
func (s *Store) FindByOriginalID(ctx context.Context, originalVariantID string) (Variant, error) {
	var variant Variant
	err := s.db.WithContext(ctx).
		Preload("Grapes", orderedGrapes).
		Where(queryOriginalVariantID, originalVariantID).
		Take(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Variant{}, fmt.Errorf("%w: %s", ErrNotFound, originalVariantID)
	}
	if err != nil {
		return Variant{}, err
	}
	return variant, nil
}

// Replace deletes any record for the same original variant and creates the
// given one, inside one transaction, so fields removed upstream never linger.
func (s *Store) Replace(ctx context.Context, variant Variant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := deleteByOriginalID(tx, variant.OriginalVariantID); err != nil {
			return err
		}
		grapes := make([]Grape, len(variant.Grapes))
		for index, grape := range variant.Grapes {
			grape.FlatVariantID = variant.ID
			grape.Position = index
			grapes[index] = grape
		}
		variant.Grapes = grapes
		return tx.Create(&variant).Error
	})
}

// DeleteByOriginalID removes the flat record of a source variant and reports
// whether one existed.
func (s *Store) DeleteByOriginalID(ctx context.Context, originalVariantID string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = deleteByOriginalID(tx, originalVariantID)
		return err
	})
	return deleted, err
}

func deleteByOriginalID(tx *gorm.DB, originalVariantID string) (bool, error) {
	var ids []string
	if err := tx.Model(&Variant{}).Where(queryOriginalVariantID, originalVariantID).Pluck("id", &ids).Error; err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}
	if err := tx.Where("flat_variant_id IN ?", ids).Delete(&Grape{}).Error; err != nil {
		return false, err
	}
	if err := tx.Where("id IN ?", ids).Delete(&Variant{}).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ListOriginalIDs returns the original variant id of every flat record.
func (s *Store) ListOriginalIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&Variant{}).Order(columnOriginalVariantID + " ASC").Pluck(columnOriginalVariantID, &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Find returns flat variants matching the query with their compositions.
func (s *Store) Find(ctx context.Context, query Query) ([]Variant, error) {
	tx := s.db.WithContext(ctx).Model(&Variant{}).Preload("Grapes", orderedGrapes)
	if query.OnlyAvailable {
		tx = tx.Where("is_published = ? AND stock_on_hand > ?", true, 0)
	}
	if len(query.ExcludeOriginalIDs) > 0 {
		tx = tx.Where(columnOriginalVariantID+" NOT IN ?", query.ExcludeOriginalIDs)
	}
	if len(query.WineryIDs) > 0 {
		tx = tx.Where("winery_id IN ?", query.WineryIDs)
	}
	if len(query.RegionIDs) > 0 {
		tx = tx.Where("region_id IN ?", query.RegionIDs)
	}
	if query.StyleID != "" {
		tx = tx.Where("style_id = ?", query.StyleID)
	}
	if query.MinPrice != nil {
		tx = tx.Where("price >= ?", *query.MinPrice)
	}
	if query.MaxPrice != nil {
		tx = tx.Where("price <= ?", *query.MaxPrice)
	}
	if query.GrapeID != "" {
		tx = tx.Where(grapeMembershipClause, query.GrapeID)
	}
	if query.GrapeCount > 0 {
		tx = tx.Where("grape_count = ?", query.GrapeCount)
	}
	if query.MinGrapeCount > 0 {
		tx = tx.Where("grape_count >= ?", query.MinGrapeCount)
	}
	orderBy := query.OrderBy
	if orderBy == "" {
		orderBy = columnOriginalVariantID + " ASC"
	}
	tx = tx.Order(orderBy)
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}

	var variants []Variant
	if err := tx.Find(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}

func orderedGrapes(db *gorm.DB) *gorm.DB {
	return db.Order(orderGrapePosition)
}
