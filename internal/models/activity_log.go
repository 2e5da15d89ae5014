package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog records one audited action taken against an instance.
type ActivityLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	InstanceName string `gorm:"type:text;not null;index"` // Name of the targeted instance.
	Action       string `gorm:"type:text;not null"`       // Action tag (create, connect, restart, ...).

	UserID *uint64 `gorm:"index"` // Acting user ID when known.

	Details datatypes.JSON `gorm:"type:jsonb"` // Action-specific detail payload.

	IPAddress string `gorm:"type:text"` // Requester IP.
	UserAgent string `gorm:"type:text"` // Requester user agent.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
