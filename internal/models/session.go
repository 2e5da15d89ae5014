package models

import "time"

// Session represents an issued login token persisted for revocation checks.
type Session struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Associated user record.

	Token string `gorm:"type:text;not null;uniqueIndex"` // Opaque session token carried in the JWT sid claim.

	IPAddress string `gorm:"type:text"` // Client IP at login.
	UserAgent string `gorm:"type:text"` // Client user agent at login.

	ExpiresAt time.Time `gorm:"not null;index"`          // Expiration timestamp.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && now.After(s.ExpiresAt)
}
