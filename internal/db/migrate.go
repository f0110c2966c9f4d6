package db

import (
	"fmt"

	"github.com/friendsincode/signalcast/internal/models"
	"gorm.io/gorm"
)

// Migrate applies schema migrations for all engine models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Video{},
		&models.ScheduledBroadcast{},
		&models.APIKey{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
