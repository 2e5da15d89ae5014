package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"github.com/zapdesk-io/zapdesk/internal/config"
	"github.com/zapdesk-io/zapdesk/internal/models"
	"github.com/zapdesk-io/zapdesk/internal/ratelimit"
	"github.com/zapdesk-io/zapdesk/internal/security"
)

// AuthHandler handles user authentication endpoints.
type AuthHandler struct {
	db      *gorm.DB
	jwtCfg  config.JWTConfig
	limiter *ratelimit.LoginLimiter
}

// NewAuthHandler constructs an AuthHandler. limiter may be nil.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, limiter *ratelimit.LoginLimiter) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, limiter: limiter}
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a user and issues a session token unless TOTP is
// enabled for the account, in which case the TOTP second step is required.
func (h *AuthHandler) Login(c *gin.Context) {
	if !h.limiter.Allow(c.Request.Context(), c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}

	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}

	user, ok := h.verifyPassword(c, username, password)
	if !ok {
		return
	}

	if strings.TrimSpace(user.TOTPSecret) != "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "mfa required"})
		return
	}

	h.respondWithUserToken(c, user)
}

// loginTotpRequest defines the request body for the TOTP login step.
type loginTotpRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// LoginTOTP completes login for accounts with TOTP enabled.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	if !h.limiter.Allow(c.Request.Context(), c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}

	var body loginTotpRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	code := strings.TrimSpace(body.Code)
	if username == "" || password == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}

	user, ok := h.verifyPassword(c, username, password)
	if !ok {
		return
	}

	if strings.TrimSpace(user.TOTPSecret) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "totp not enabled"})
		return
	}
	if !totp.Validate(code, user.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	h.respondWithUserToken(c, user)
}

// verifyPassword checks credentials and account state, writing the error
// response itself on failure.
func (h *AuthHandler) verifyPassword(c *gin.Context, username, password string) (models.User, bool) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return models.User{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.User{}, false
	}

	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return models.User{}, false
	}

	if !security.CheckPassword(user.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return models.User{}, false
	}

	return user, true
}

// respondWithUserToken mints an opaque session token, persists the session
// row and responds with a JWT bound to it via the sid claim.
func (h *AuthHandler) respondWithUserToken(c *gin.Context, user models.User) {
	sessionToken, errSession := security.GenerateSessionToken()
	if errSession != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	token, errToken := security.GenerateToken(h.jwtCfg.Secret, user.ID, user.Username, user.Role, sessionToken, h.jwtCfg.Expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	now := time.Now().UTC()
	session := models.Session{
		UserID:    user.ID,
		Token:     sessionToken,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		ExpiresAt: now.Add(h.jwtCfg.Expiry()),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&session).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"last_login_at": now, "updated_at": now}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}

	h.limiter.Reset(c.Request.Context(), c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
		"name":     user.Name,
		"role":     user.Role,
		"token":    token,
	})
}

// Logout deletes the session row backing the current token.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := getSessionID(c)
	if sessionID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	if errDelete := h.db.WithContext(c.Request.Context()).Delete(&models.Session{}, sessionID).Error; errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"name":          user.Name,
		"email":         user.Email,
		"role":          user.Role,
		"totp_enabled":  strings.TrimSpace(user.TOTPSecret) != "",
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
	})
}
