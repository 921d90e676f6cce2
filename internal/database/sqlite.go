package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/jobs"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/related"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the service.
func Models() []any {
	var models []any
	models = append(models, catalog.Models()...)
	models = append(models, flat.Models()...)
	models = append(models, related.Models()...)
	models = append(models, jobs.Models()...)
	models = append(models, &migrationRecord{})
	return models
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logging.NewGormLogger(logger)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("path", path))

	return db, nil
}
