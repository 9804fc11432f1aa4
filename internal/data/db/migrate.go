package db

import (
	"fmt"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Identity + ownership tree
		&types.User{},
		&types.Field{},

		// Observations (unique per field per date)
		&types.SatelliteMetric{},

		// Engine output
		&types.Advisory{},

		// Background work
		&types.JobRun{},
	)
}

// EnsureAdvisoryIndexes adds the lookup paths the reconciler leans on:
// active advisories per field, and type lookup inside a field.
func EnsureAdvisoryIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_advisory_field_status
		ON advisory (field_id, status);
	`).Error; err != nil {
		return fmt.Errorf("create idx_advisory_field_status: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_advisory_field_type_status
		ON advisory (field_id, advisory_type, status);
	`).Error; err != nil {
		return fmt.Errorf("create idx_advisory_field_type_status: %w", err)
	}
	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...", "driver", s.driver)
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureAdvisoryIndexes(s.db); err != nil {
		s.log.Error("Advisory index migration failed", "error", err)
		return err
	}
	return nil
}
