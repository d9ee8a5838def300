package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/haiku"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the engine backing the haiku store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open dispatches to the configured driver.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(options.Driver)) {
	case DriverSQLite, "":
		return OpenSQLite(options.Path, logger)
	case DriverPostgres:
		return OpenPostgres(options.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}

func prepare(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&haiku.Record{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
