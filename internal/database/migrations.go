package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/related"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillFlatGrapeCount = "2026-10-01_backfill_flat_grape_count"
	migrationDropStaleRelatedSets   = "2026-10-01_drop_stale_related_sets"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillFlatGrapeCount, apply: backfillFlatGrapeCount},
		{name: migrationDropStaleRelatedSets, apply: dropStaleRelatedSets},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillFlatGrapeCount fills grape_count for flat records written before the
// column existed. The grape matcher filters varietals and blends on it.
func backfillFlatGrapeCount(db *gorm.DB) error {
	return db.Exec(`UPDATE flat_variants
		SET grape_count = (
			SELECT COUNT(*) FROM flat_variant_grapes
			WHERE flat_variant_grapes.flat_variant_id = flat_variants.id
		)
		WHERE grape_count = 0`).Error
}

// dropStaleRelatedSets removes sets written by an older engine version; the
// next recompute rebuilds them.
func dropStaleRelatedSets(db *gorm.DB) error {
	return db.Where("version <> ?", related.Version).Delete(&related.Set{}).Error
}
