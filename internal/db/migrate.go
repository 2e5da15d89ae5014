package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zapdesk-io/zapdesk/internal/models"
)

// Migrate creates or upgrades the schema for every model. It is idempotent
// and safe to run at every startup.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Instance{},
		&models.UserInstance{},
		&models.ActivityLog{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
