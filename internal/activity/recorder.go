package activity

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zapdesk-io/zapdesk/internal/models"
)

// Recorder appends rows to the activity log.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates an activity recorder backed by the given database.
func NewRecorder(db *gorm.DB) *Recorder {
	if db == nil {
		return nil
	}
	return &Recorder{db: db}
}

// Entry describes a single auditable action.
type Entry struct {
	InstanceName string
	Action       string
	UserID       *uint64
	Details      map[string]any
	IP           string
	UserAgent    string
}

// Log persists an activity entry. Failures are logged and swallowed so
// audit writes never break the action they describe.
func (r *Recorder) Log(entry Entry) {
	if r == nil || r.db == nil {
		return
	}
	row := models.ActivityLog{
		InstanceName: entry.InstanceName,
		Action:       entry.Action,
		UserID:       entry.UserID,
		IPAddress:    entry.IP,
		UserAgent:    entry.UserAgent,
	}
	if len(entry.Details) > 0 {
		raw, errMarshal := json.Marshal(entry.Details)
		if errMarshal != nil {
			log.WithError(errMarshal).Warn("activity recorder: marshal details failed")
		} else {
			row.Details = datatypes.JSON(raw)
		}
	}
	if errCreate := r.db.Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("activity recorder: insert failed")
	}
}
