package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapdesk-io/zapdesk/internal/models"
	internalsettings "github.com/zapdesk-io/zapdesk/internal/settings"
)

// knownSettingKeys enumerates the keys the dashboard may edit.
var knownSettingKeys = map[string]bool{
	internalsettings.SiteNameKey:                 true,
	internalsettings.SyncIntervalSecondsKey:      true,
	internalsettings.ActivityLogRetentionDaysKey: true,
	internalsettings.LoginRateLimitPerMinuteKey:  true,
}

// SettingsHandler handles runtime settings endpoints.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// Get returns all stored settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Update writes the supplied settings and refreshes the in-memory snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	var body map[string]json.RawMessage
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no settings supplied"})
		return
	}

	for key := range body {
		if !knownSettingKeys[strings.TrimSpace(key)] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting key: " + key})
			return
		}
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	for key, value := range body {
		row := models.Setting{Key: strings.TrimSpace(key), Value: value, UpdatedAt: now}
		if errUpsert := h.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.Assignments(map[string]any{"value": []byte(value), "updated_at": now}),
			}).
			Create(&row).Error; errUpsert != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save setting failed"})
			return
		}
	}

	if errRefresh := internalsettings.RefreshDBConfigSnapshot(ctx, h.db); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings update: snapshot refresh failed")
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
