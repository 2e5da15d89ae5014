// Package access resolves which instances a user may see and which actions
// they may perform on them. Master users bypass bindings entirely; everyone
// else is default-deny, gated by per-instance capability flags.
package access

import (
	"context"
	"database/sql"
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/zapdesk-io/zapdesk/internal/models"
)

// Actions accepted by CanAccessInstance.
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	ActionDelete     = "delete"
	ActionRestart    = "restart"
	ActionSend       = "send"
)

// actionCapabilityColumn maps an action onto its binding capability column.
var actionCapabilityColumn = map[string]string{
	ActionConnect:    "can_connect",
	ActionDisconnect: "can_disconnect",
	ActionDelete:     "can_delete",
	ActionRestart:    "can_restart",
	ActionSend:       "can_send_messages",
}

// CapabilityColumn returns the binding column for an action. Unrecognized
// actions collapse to the weakest capability, connect-only.
func CapabilityColumn(action string) string {
	if column, ok := actionCapabilityColumn[action]; ok {
		return column
	}
	return "can_connect"
}

// CanAccessInstance reports whether a user may perform an action on an
// instance. Denial is an outcome, not an error: lookup failures are logged
// and answered with false.
func CanAccessInstance(ctx context.Context, db *gorm.DB, userID, instanceID uint64, action string) bool {
	if db == nil {
		return false
	}

	var user models.User
	if errFind := db.WithContext(ctx).Select("id", "role").First(&user, userID).Error; errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Warn("access: load user failed")
		}
		return false
	}
	if user.IsMaster() {
		return true
	}

	var allowed sql.NullBool
	errScan := db.WithContext(ctx).
		Model(&models.UserInstance{}).
		Select(CapabilityColumn(action)).
		Where("user_id = ? AND instance_id = ?", userID, instanceID).
		Limit(1).
		Scan(&allowed).Error
	if errScan != nil {
		log.WithError(errScan).Warn("access: load binding failed")
		return false
	}
	return allowed.Valid && allowed.Bool
}

// Capabilities is the set of per-instance permissions attached to a grant.
type Capabilities struct {
	Connect      bool `json:"can_connect"`
	Disconnect   bool `json:"can_disconnect"`
	Delete       bool `json:"can_delete"`
	Restart      bool `json:"can_restart"`
	SendMessages bool `json:"can_send_messages"`
}

// allCapabilities is what a master user holds on every instance.
var allCapabilities = Capabilities{
	Connect:      true,
	Disconnect:   true,
	Delete:       true,
	Restart:      true,
	SendMessages: true,
}

// InstanceGrant pairs an instance with the capabilities the user holds on it.
type InstanceGrant struct {
	Instance     models.Instance
	Capabilities Capabilities
}

// UserInstances returns the instances a user may see, newest first. Master
// users receive the full table with full capabilities; ordinary users get
// only bound instances annotated with their binding's flags.
func UserInstances(ctx context.Context, db *gorm.DB, userID uint64) ([]InstanceGrant, error) {
	if db == nil {
		return nil, errors.New("access: nil db")
	}

	var user models.User
	if errFind := db.WithContext(ctx).Select("id", "role").First(&user, userID).Error; errFind != nil {
		return nil, errFind
	}

	if user.IsMaster() {
		var instances []models.Instance
		if errList := db.WithContext(ctx).Order("created_at DESC").Find(&instances).Error; errList != nil {
			return nil, errList
		}
		grants := make([]InstanceGrant, 0, len(instances))
		for _, instance := range instances {
			grants = append(grants, InstanceGrant{Instance: instance, Capabilities: allCapabilities})
		}
		return grants, nil
	}

	var bindings []models.UserInstance
	if errBindings := db.WithContext(ctx).Where("user_id = ?", userID).Find(&bindings).Error; errBindings != nil {
		return nil, errBindings
	}
	if len(bindings) == 0 {
		return []InstanceGrant{}, nil
	}

	capabilitiesByInstance := make(map[uint64]Capabilities, len(bindings))
	instanceIDs := make([]uint64, 0, len(bindings))
	for _, binding := range bindings {
		instanceIDs = append(instanceIDs, binding.InstanceID)
		capabilitiesByInstance[binding.InstanceID] = Capabilities{
			Connect:      binding.CanConnect,
			Disconnect:   binding.CanDisconnect,
			Delete:       binding.CanDelete,
			Restart:      binding.CanRestart,
			SendMessages: binding.CanSendMessages,
		}
	}

	var instances []models.Instance
	if errList := db.WithContext(ctx).
		Where("id IN ?", instanceIDs).
		Order("created_at DESC").
		Find(&instances).Error; errList != nil {
		return nil, errList
	}

	grants := make([]InstanceGrant, 0, len(instances))
	for _, instance := range instances {
		grants = append(grants, InstanceGrant{
			Instance:     instance,
			Capabilities: capabilitiesByInstance[instance.ID],
		})
	}
	return grants, nil
}
