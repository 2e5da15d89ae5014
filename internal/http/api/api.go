// Package api wires the dashboard's HTTP surface: authentication, instance
// lifecycle, master-only administration, and health checks.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zapdesk-io/zapdesk/internal/activity"
	"github.com/zapdesk-io/zapdesk/internal/config"
	"github.com/zapdesk-io/zapdesk/internal/gateway"
	"github.com/zapdesk-io/zapdesk/internal/http/api/handlers"
	"github.com/zapdesk-io/zapdesk/internal/models"
	"github.com/zapdesk-io/zapdesk/internal/ratelimit"
	"github.com/zapdesk-io/zapdesk/internal/reconciler"
	"github.com/zapdesk-io/zapdesk/internal/security"
)

// Deps carries the shared dependencies the route handlers need.
type Deps struct {
	DB         *gorm.DB
	JWT        config.JWTConfig
	Gateway    gateway.Client
	Reconciler *reconciler.Reconciler
	Recorder   *activity.Recorder
	Limiter    *ratelimit.LoginLimiter
}

// RegisterRoutes registers every JSON API route on the engine.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	apiGroup := r.Group("/api")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Limiter)
	apiGroup.POST("/auth/login", authHandler.Login)
	apiGroup.POST("/auth/login/totp", authHandler.LoginTOTP)

	authed := apiGroup.Group("")
	authed.Use(userAuthMiddleware(deps.DB, deps.JWT))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/auth/me", authHandler.Me)

	mfaHandler := handlers.NewMFAHandler(deps.DB)
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	instanceHandler := handlers.NewInstanceHandler(deps.DB, deps.Gateway, deps.Reconciler, deps.Recorder)
	authed.GET("/instances", instanceHandler.List)
	authed.GET("/instances/:name/connect", instanceHandler.Connect)
	authed.GET("/instances/:name/status", instanceHandler.Status)
	authed.PUT("/instances/:name/restart", instanceHandler.Restart)
	authed.DELETE("/instances/:name/logout", instanceHandler.Disconnect)
	authed.DELETE("/instances/:name", instanceHandler.Delete)

	master := authed.Group("")
	master.Use(requireMaster())

	master.POST("/instances", instanceHandler.Create)

	userHandler := handlers.NewUserHandler(deps.DB)
	master.GET("/users", userHandler.List)
	master.POST("/users", userHandler.Create)
	master.PUT("/users/:id", userHandler.Update)
	master.DELETE("/users/:id", userHandler.Delete)
	master.GET("/users/:id/instances", userHandler.ListBindings)
	master.PUT("/users/:id/instances/:instanceId", userHandler.UpsertBinding)
	master.DELETE("/users/:id/instances/:instanceId", userHandler.DeleteBinding)

	activityHandler := handlers.NewActivityHandler(deps.DB)
	master.GET("/activity", activityHandler.List)

	settingsHandler := handlers.NewSettingsHandler(deps.DB)
	master.GET("/settings", settingsHandler.Get)
	master.PUT("/settings", settingsHandler.Update)
}

// userAuthMiddleware validates the bearer JWT and its backing session row,
// then loads the user identity into the request context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var session models.Session
		if errFind := db.WithContext(c.Request.Context()).Where("token = ?", claims.SessionID).First(&session).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session revoked"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if session.Expired(time.Now().UTC()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set(handlers.ContextUserIDKey, user.ID)
		c.Set(handlers.ContextUserRoleKey, user.Role)
		c.Set(handlers.ContextSessionIDKey, session.ID)
		c.Next()
	}
}

// requireMaster rejects requests from non-master users.
func requireMaster() gin.HandlerFunc {
	return func(c *gin.Context) {
		if handlers.UserRole(c) != models.RoleMaster {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
