package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapdesk-io/zapdesk/internal/access"
	"github.com/zapdesk-io/zapdesk/internal/activity"
	"github.com/zapdesk-io/zapdesk/internal/gateway"
	"github.com/zapdesk-io/zapdesk/internal/models"
	"github.com/zapdesk-io/zapdesk/internal/reconciler"
)

// InstanceHandler handles instance listing and lifecycle endpoints.
type InstanceHandler struct {
	db       *gorm.DB
	client   gateway.Client
	rec      *reconciler.Reconciler
	recorder *activity.Recorder
}

// NewInstanceHandler constructs an InstanceHandler.
func NewInstanceHandler(db *gorm.DB, client gateway.Client, rec *reconciler.Reconciler, recorder *activity.Recorder) *InstanceHandler {
	return &InstanceHandler{db: db, client: client, rec: rec, recorder: recorder}
}

// instanceResponse is the JSON shape of one instance in listings.
type instanceResponse struct {
	ID                uint64              `json:"id"`
	Name              string              `json:"name"`
	Provider          string              `json:"provider"`
	Status            string              `json:"status"`
	Number            *string             `json:"number"`
	ProfileName       *string             `json:"profile_name"`
	ProfilePictureURL *string             `json:"profile_picture_url"`
	Capabilities      access.Capabilities `json:"capabilities"`
	CreatedAt         any                 `json:"created_at"`
	UpdatedAt         any                 `json:"updated_at"`
}

// List refreshes local state from the gateway, then returns the instances
// the requesting user may see. A failed refresh degrades to stale data.
func (h *InstanceHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	if errSync := h.rec.SyncAll(c.Request.Context()); errSync != nil {
		log.WithError(errSync).Warn("instance list: gateway sync failed, serving stored state")
	}

	grants, errList := access.UserInstances(c.Request.Context(), h.db, userID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]instanceResponse, 0, len(grants))
	for _, grant := range grants {
		out = append(out, instanceResponse{
			ID:                grant.Instance.ID,
			Name:              grant.Instance.Name,
			Provider:          grant.Instance.Provider,
			Status:            grant.Instance.Status,
			Number:            grant.Instance.Number,
			ProfileName:       grant.Instance.ProfileName,
			ProfilePictureURL: grant.Instance.ProfilePictureURL,
			Capabilities:      grant.Capabilities,
			CreatedAt:         grant.Instance.CreatedAt,
			UpdatedAt:         grant.Instance.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"instances": out})
}

// createInstanceRequest defines the request body for provisioning.
type createInstanceRequest struct {
	Name         string         `json:"name"`
	Number       string         `json:"number"`
	Integration  string         `json:"integration"`
	QRCode       *bool          `json:"qrcode"`
	Settings     map[string]any `json:"settings"`
	SystemName   string         `json:"system_name"`
	AdminField01 string         `json:"admin_field_01"`
	AdminField02 string         `json:"admin_field_02"`
}

// Create provisions a new instance at the gateway and mirrors it locally.
// Repeated creates for the same name never produce duplicate rows.
func (h *InstanceHandler) Create(c *gin.Context) {
	var body createInstanceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}

	result, errCreate := h.client.CreateInstance(c.Request.Context(), name, gateway.CreateOptions{
		Integration:  body.Integration,
		QRCode:       body.QRCode,
		Number:       strings.TrimSpace(body.Number),
		Settings:     body.Settings,
		SystemName:   body.SystemName,
		AdminField01: body.AdminField01,
		AdminField02: body.AdminField02,
	})
	if errCreate != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unreachable"})
		return
	}

	if result.OK {
		row := models.Instance{Name: name, Provider: h.client.Provider(), Status: string(gateway.StatusDisconnected)}
		if errInsert := h.db.WithContext(c.Request.Context()).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&row).Error; errInsert != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "persist instance failed"})
			return
		}
		if raw, ok := result.BodyMap(); ok {
			if errSync := h.rec.SyncInstance(c.Request.Context(), raw); errSync != nil && !errors.Is(errSync, reconciler.ErrNoInstanceName) {
				log.WithError(errSync).Warn("instance create: sync after create failed")
			}
		}
		h.logAction(c, name, "create", result)
	}

	c.JSON(result.StatusCode, result.Body)
}

// Connect triggers QR or pairing-code generation for an instance.
func (h *InstanceHandler) Connect(c *gin.Context) {
	instance, ok := h.authorizeAction(c, access.ActionConnect)
	if !ok {
		return
	}

	phone := strings.TrimSpace(c.Query("number"))
	result, errConnect := h.client.ConnectInstance(c.Request.Context(), instance.Name, phone)
	if errConnect != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unreachable"})
		return
	}

	h.logAction(c, instance.Name, "connect", result)
	h.refreshInstance(c, instance.Name)
	c.JSON(result.StatusCode, result.Body)
}

// Status fetches the live connection state for an instance.
func (h *InstanceHandler) Status(c *gin.Context) {
	instance, ok := h.authorizeAction(c, access.ActionConnect)
	if !ok {
		return
	}

	result, errStatus := h.client.GetInstanceStatus(c.Request.Context(), instance.Name)
	if errStatus != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unreachable"})
		return
	}

	h.refreshInstance(c, instance.Name)
	c.JSON(result.StatusCode, result.Body)
}

// Restart restarts an instance session.
func (h *InstanceHandler) Restart(c *gin.Context) {
	instance, ok := h.authorizeAction(c, access.ActionRestart)
	if !ok {
		return
	}

	result, errRestart := h.client.RestartInstance(c.Request.Context(), instance.Name)
	if errRestart != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unreachable"})
		return
	}

	h.logAction(c, instance.Name, "restart", result)
	h.refreshInstance(c, instance.Name)
	c.JSON(result.StatusCode, result.Body)
}

// Disconnect logs an instance out of WhatsApp without deleting it.
func (h *InstanceHandler) Disconnect(c *gin.Context) {
	instance, ok := h.authorizeAction(c, access.ActionDisconnect)
	if !ok {
		return
	}

	result, errDisconnect := h.client.DisconnectInstance(c.Request.Context(), instance.Name)
	if errDisconnect != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unreachable"})
		return
	}

	h.logAction(c, instance.Name, "disconnect", result)
	h.refreshInstance(c, instance.Name)
	c.JSON(result.StatusCode, result.Body)
}

// Delete removes an instance from the gateway and from the local store.
func (h *InstanceHandler) Delete(c *gin.Context) {
	instance, ok := h.authorizeAction(c, access.ActionDelete)
	if !ok {
		return
	}

	result, errDelete := h.client.DeleteInstance(c.Request.Context(), instance.Name)
	if errDelete != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unreachable"})
		return
	}

	h.logAction(c, instance.Name, "delete", result)

	if result.OK {
		ctx := c.Request.Context()
		if errBindings := h.db.WithContext(ctx).Where("instance_id = ?", instance.ID).Delete(&models.UserInstance{}).Error; errBindings != nil {
			log.WithError(errBindings).Warn("instance delete: remove bindings failed")
		}
		if errRow := h.db.WithContext(ctx).Delete(&models.Instance{}, instance.ID).Error; errRow != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "remove instance failed"})
			return
		}
	}

	c.JSON(result.StatusCode, result.Body)
}

// authorizeAction loads the named instance and enforces the per-action
// capability check, writing the error response itself on failure.
func (h *InstanceHandler) authorizeAction(c *gin.Context, action string) (models.Instance, bool) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return models.Instance{}, false
	}

	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing instance name"})
		return models.Instance{}, false
	}

	var instance models.Instance
	if errFind := h.db.WithContext(c.Request.Context()).Where("name = ?", name).First(&instance).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
			return models.Instance{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.Instance{}, false
	}

	if !access.CanAccessInstance(c.Request.Context(), h.db, userID, instance.ID, action) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return models.Instance{}, false
	}

	return instance, true
}

// refreshInstance pulls the live state once and mirrors it locally.
// Best effort: failures are logged, never surfaced to the caller.
func (h *InstanceHandler) refreshInstance(c *gin.Context, name string) {
	result, errStatus := h.client.GetInstanceStatus(c.Request.Context(), name)
	if errStatus != nil || !result.OK {
		return
	}
	raw, ok := result.BodyMap()
	if !ok {
		return
	}
	if errSync := h.rec.SyncInstance(c.Request.Context(), raw); errSync != nil && !errors.Is(errSync, reconciler.ErrNoInstanceName) {
		log.WithError(errSync).Warn("instance refresh: sync failed")
	}
}

// logAction appends an activity row for an instance action.
func (h *InstanceHandler) logAction(c *gin.Context, name, action string, result gateway.Result) {
	userID := getUserID(c)
	var actor *uint64
	if userID != 0 {
		actor = &userID
	}
	h.recorder.Log(activity.Entry{
		InstanceName: name,
		Action:       action,
		UserID:       actor,
		Details: map[string]any{
			"provider":    h.client.Provider(),
			"status_code": result.StatusCode,
			"ok":          result.OK,
		},
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}
