package main

import (
	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/config"
	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/database"
	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/haiku"
	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/logging"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type application struct {
	config config.AppConfig
	logger *zap.Logger
	store  *haiku.Store
}

// openApplication loads configuration and opens the store. Callers must defer close.
func openApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	store, err := haiku.NewStore(haiku.StoreConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		_ = logger.Sync()
		return nil, err
	}

	return &application{config: appConfig, logger: logger, store: store}, nil
}

func (r *application) close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close haiku store", zap.Error(err))
	}
	_ = r.logger.Sync()
}
