package models

import (
	"time"

	"gorm.io/datatypes"
)

// Instance represents one gateway-managed WhatsApp connection mirrored into
// the local system-of-record. The name is assigned at creation and never
// changes; all other vendor-reported fields are refreshed by the reconciler.
type Instance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:text;not null;uniqueIndex"` // Unique instance name.
	Provider string `gorm:"type:text;not null"`             // Vendor backend owning this instance.

	Status string `gorm:"type:text;not null;default:disconnected"` // Internal connection status.

	Number            *string `gorm:"type:text"` // Linked phone number, nil until paired.
	ProfileName       *string `gorm:"type:text"` // WhatsApp profile display name.
	ProfilePictureURL *string `gorm:"type:text"` // WhatsApp profile picture reference.

	Settings datatypes.JSON `gorm:"type:jsonb"` // Vendor-specific settings blob (per-instance token etc).

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
