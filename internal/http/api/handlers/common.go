package handlers

import "github.com/gin-gonic/gin"

// Context keys set by the auth middleware.
const (
	// ContextUserIDKey holds the authenticated user ID.
	ContextUserIDKey = "userID"
	// ContextUserRoleKey holds the authenticated user's role.
	ContextUserRoleKey = "userRole"
	// ContextSessionIDKey holds the DB session row ID backing the request.
	ContextSessionIDKey = "sessionID"
)

// getUserID returns the authenticated user ID from request context.
func getUserID(c *gin.Context) uint64 {
	value, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0
	}
	id, ok := value.(uint64)
	if !ok {
		return 0
	}
	return id
}

// UserRole returns the authenticated user's role from request context.
func UserRole(c *gin.Context) string {
	value, ok := c.Get(ContextUserRoleKey)
	if !ok {
		return ""
	}
	role, ok := value.(string)
	if !ok {
		return ""
	}
	return role
}

// getSessionID returns the DB session row ID from request context.
func getSessionID(c *gin.Context) uint64 {
	value, ok := c.Get(ContextSessionIDKey)
	if !ok {
		return 0
	}
	id, ok := value.(uint64)
	if !ok {
		return 0
	}
	return id
}
