package related

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates that no related set exists for the variant.
	ErrNotFound = errors.New("related: set not found")

	errMissingDatabase = errors.New("related: database handle is required")
)

const queryVariantID = "variant_id = ?"

// StoreConfig describes the dependencies of the related-set store.
type StoreConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store reads and writes related sets.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore constructs a related-set store.
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

// Find returns the related set of a variant.
func (s *Store) Find(ctx context.Context, variantID string) (Set, error) {
	var set Set
	err := s.db.WithContext(ctx).Where(queryVariantID, variantID).Take(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Set{}, fmt.Errorf("%w: %s", ErrNotFound, variantID)
	}
	if err != nil {
		return Set{}, err
	}
	return set, nil
}

// Save replaces the contents of an existing set in place or creates it.
func (s *Store) Save(ctx context.Context, set Set) error {
	if set.Entries == nil {
		set.Entries = datatypes.JSONSlice[Entry]{}
	}
	set.Count = len(set.Entries)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Set
		err := tx.Where(queryVariantID, set.VariantID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&set).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&existing).
			Select("entries", "count", "last_computed", "version").
			Updates(&set).Error
	})
}

// Delete removes the related set of a variant and reports whether one existed.
func (s *Store) Delete(ctx context.Context, variantID string) (bool, error) {
	result := s.db.WithContext(ctx).Where(queryVariantID, variantID).Delete(&Set{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
