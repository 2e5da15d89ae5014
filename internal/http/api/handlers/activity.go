package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	dbutil "github.com/zapdesk-io/zapdesk/internal/db"
	"github.com/zapdesk-io/zapdesk/internal/models"
)

// Activity listing page size bounds.
const (
	defaultActivityPageSize = 50
	maxActivityPageSize     = 200
)

// ActivityHandler handles activity log listing.
type ActivityHandler struct {
	db *gorm.DB
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(db *gorm.DB) *ActivityHandler {
	return &ActivityHandler{db: db}
}

// List returns activity rows newest first with paging and optional
// filtering by instance name and action.
func (h *ActivityHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultActivityPageSize)))
	if pageSize < 1 {
		pageSize = defaultActivityPageSize
	}
	if pageSize > maxActivityPageSize {
		pageSize = maxActivityPageSize
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.ActivityLog{})

	if search := strings.TrimSpace(c.Query("instance")); search != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+search+"%")
		query = query.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "instance_name"), pattern)
	}
	if action := strings.TrimSpace(c.Query("action")); action != "" {
		query = query.Where("action = ?", action)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}

	var rows []models.ActivityLog
	if errFind := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":      rows,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
