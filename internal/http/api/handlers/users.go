package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapdesk-io/zapdesk/internal/models"
	"github.com/zapdesk-io/zapdesk/internal/security"
)

// UserHandler handles master-only user and permission management.
type UserHandler struct {
	db *gorm.DB
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// userResponse is the JSON shape of one user in listings.
type userResponse struct {
	ID          uint64     `json:"id"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	TOTPEnabled bool       `json:"totp_enabled"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Active:      user.Active,
		TOTPEnabled: strings.TrimSpace(user.TOTPSecret) != "",
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}

// List returns all users.
func (h *UserHandler) List(c *gin.Context) {
	var users []models.User
	if errFind := h.db.WithContext(c.Request.Context()).Order("id ASC").Find(&users).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, toUserResponse(user))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// createUserRequest defines the request body for user creation.
type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Create adds a new user account.
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
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
	role := strings.TrimSpace(body.Role)
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleMaster {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	var exists models.User
	if errCheck := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := models.User{
		Username: username,
		Password: hash,
		Name:     strings.TrimSpace(body.Name),
		Email:    strings.TrimSpace(body.Email),
		Role:     role,
		Active:   true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

// updateUserRequest defines the request body for user updates. Pointer
// fields distinguish "leave unchanged" from explicit values.
type updateUserRequest struct {
	Password *string `json:"password"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
}

// Update modifies an existing user account.
func (h *UserHandler) Update(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Password != nil {
		password := strings.TrimSpace(*body.Password)
		if password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty password"})
			return
		}
		hash, errHash := security.HashPassword(password)
		if errHash != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
			return
		}
		updates["password"] = hash
	}
	if body.Name != nil {
		updates["name"] = strings.TrimSpace(*body.Name)
	}
	if body.Email != nil {
		updates["email"] = strings.TrimSpace(*body.Email)
	}
	if body.Role != nil {
		role := strings.TrimSpace(*body.Role)
		if role != models.RoleUser && role != models.RoleMaster {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		updates["role"] = role
	}
	if body.Active != nil {
		updates["active"] = *body.Active
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&user).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}

	// Deactivation and role changes take effect immediately.
	if body.Active != nil && !*body.Active {
		if errSessions := h.db.WithContext(c.Request.Context()).Where("user_id = ?", user.ID).Delete(&models.Session{}).Error; errSessions != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke sessions failed"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a user account, its sessions and its bindings.
func (h *UserHandler) Delete(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if userID == getUserID(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete own account"})
		return
	}

	ctx := c.Request.Context()
	if errBindings := h.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.UserInstance{}).Error; errBindings != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove bindings failed"})
		return
	}
	if errSessions := h.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{}).Error; errSessions != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke sessions failed"})
		return
	}
	result := h.db.WithContext(ctx).Delete(&models.User{}, userID)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// bindingResponse is the JSON shape of one permission binding.
type bindingResponse struct {
	InstanceID      uint64 `json:"instance_id"`
	InstanceName    string `json:"instance_name"`
	CanConnect      bool   `json:"can_connect"`
	CanDisconnect   bool   `json:"can_disconnect"`
	CanDelete       bool   `json:"can_delete"`
	CanRestart      bool   `json:"can_restart"`
	CanSendMessages bool   `json:"can_send_messages"`
}

// ListBindings returns a user's per-instance permission bindings.
func (h *UserHandler) ListBindings(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var bindings []models.UserInstance
	if errFind := h.db.WithContext(c.Request.Context()).
		Preload("Instance").
		Where("user_id = ?", userID).
		Find(&bindings).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]bindingResponse, 0, len(bindings))
	for _, binding := range bindings {
		entry := bindingResponse{
			InstanceID:      binding.InstanceID,
			CanConnect:      binding.CanConnect,
			CanDisconnect:   binding.CanDisconnect,
			CanDelete:       binding.CanDelete,
			CanRestart:      binding.CanRestart,
			CanSendMessages: binding.CanSendMessages,
		}
		if binding.Instance != nil {
			entry.InstanceName = binding.Instance.Name
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"bindings": out})
}

// upsertBindingRequest defines the request body for granting permissions.
type upsertBindingRequest struct {
	CanConnect      bool `json:"can_connect"`
	CanDisconnect   bool `json:"can_disconnect"`
	CanDelete       bool `json:"can_delete"`
	CanRestart      bool `json:"can_restart"`
	CanSendMessages bool `json:"can_send_messages"`
}

// UpsertBinding creates or replaces a user's binding for one instance.
func (h *UserHandler) UpsertBinding(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	instanceID, ok := parseIDParam(c, "instanceId")
	if !ok {
		return
	}

	var body upsertBindingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	var user models.User
	if errFind := h.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	var instance models.Instance
	if errFind := h.db.WithContext(ctx).First(&instance, instanceID).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}

	binding := models.UserInstance{
		UserID:          userID,
		InstanceID:      instanceID,
		CanConnect:      body.CanConnect,
		CanDisconnect:   body.CanDisconnect,
		CanDelete:       body.CanDelete,
		CanRestart:      body.CanRestart,
		CanSendMessages: body.CanSendMessages,
	}
	if errUpsert := h.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "instance_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"can_connect":       body.CanConnect,
				"can_disconnect":    body.CanDisconnect,
				"can_delete":        body.CanDelete,
				"can_restart":       body.CanRestart,
				"can_send_messages": body.CanSendMessages,
				"updated_at":        time.Now().UTC(),
			}),
		}).
		Create(&binding).Error; errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save binding failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteBinding removes a user's binding for one instance.
func (h *UserHandler) DeleteBinding(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	instanceID, ok := parseIDParam(c, "instanceId")
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND instance_id = ?", userID, instanceID).
		Delete(&models.UserInstance{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete binding failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "binding not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// parseIDParam reads a numeric path parameter, writing the error response
// itself on failure.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
