package models

import "time"

// User roles.
const (
	// RoleMaster grants unrestricted access to every instance and operation.
	RoleMaster = "master"
	// RoleUser is the default role, limited by per-instance bindings.
	RoleUser = "user"
)

// User represents a dashboard account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email    string `gorm:"type:text"`                      // Contact email.
	Password string `gorm:"type:text;not null"`             // Hashed password.
	Name     string `gorm:"type:text"`                      // Display name.

	Role   string `gorm:"type:text;not null;default:user"` // Either master or user.
	Active bool   `gorm:"not null;default:true"`           // Whether the user can sign in.

	TOTPSecret string `gorm:"type:text"` // TOTP secret for MFA.

	LastLoginAt *time.Time // Last successful login time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsMaster reports whether the user holds the privileged role.
func (u *User) IsMaster() bool { return u != nil && u.Role == RoleMaster }
