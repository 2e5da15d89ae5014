package models

import "time"

// UserInstance binds one user to one instance with independent capability
// flags. Absence of a binding row means no access for non-master users.
type UserInstance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64 `gorm:"not null;uniqueIndex:idx_user_instances_user_instance,priority:1"`       // Bound user ID.
	InstanceID uint64 `gorm:"not null;uniqueIndex:idx_user_instances_user_instance,priority:2;index"` // Bound instance ID.

	User     *User     `gorm:"foreignKey:UserID"`     // Associated user record.
	Instance *Instance `gorm:"foreignKey:InstanceID"` // Associated instance record.

	CanConnect      bool `gorm:"not null;default:false"` // Allows connect/pairing operations.
	CanDisconnect   bool `gorm:"not null;default:false"` // Allows logout operations.
	CanDelete       bool `gorm:"not null;default:false"` // Allows instance deletion.
	CanRestart      bool `gorm:"not null;default:false"` // Allows restart operations.
	CanSendMessages bool `gorm:"not null;default:false"` // Allows outbound message sending.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
