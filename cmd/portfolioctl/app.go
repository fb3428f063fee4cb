package main

import (
	"fmt"

	"portfolio_api/config"
	"portfolio_api/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// openDatabase loads the service configuration and opens its migrated database.
func openDatabase() (*config.Config, *gorm.DB, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := config.NewLogger(cfg.Environment)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := config.InitDB(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := models.Migrate(db); err != nil {
		config.CloseDB(db) //nolint:errcheck
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, db, logger, nil
}
