package reconciler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbutil "github.com/zapdesk-io/zapdesk/internal/db"
	"github.com/zapdesk-io/zapdesk/internal/gateway"
	"github.com/zapdesk-io/zapdesk/internal/models"
	internalsettings "github.com/zapdesk-io/zapdesk/internal/settings"
)

// ErrNoInstanceName marks a vendor record that carries no usable name. Such
// records are skipped; they never fail a whole batch.
var ErrNoInstanceName = errors.New("reconciler: record has no instance name")

// Reconciler keeps the local instance table consistent with vendor-reported
// truth. Each upsert is a single atomic statement; there is no coordination
// with foreground requests beyond last-write-wins on vendor-owned fields.
type Reconciler struct {
	db     *gorm.DB
	client gateway.Client
	tokens *TokenStore
}

// New constructs a Reconciler.
func New(db *gorm.DB, client gateway.Client) *Reconciler {
	if db == nil || client == nil {
		return nil
	}
	return &Reconciler{db: db, client: client, tokens: NewTokenStore(db)}
}

// SyncInstance normalizes one raw vendor record and upserts it by name.
// Vendor-owned fields (status, profile name, profile picture) are always
// overwritten; a previously known number or settings blob is preserved when
// the incoming payload does not supply a replacement.
func (r *Reconciler) SyncInstance(ctx context.Context, raw map[string]any) error {
	if r == nil || r.db == nil {
		return errors.New("reconciler: not initialized")
	}
	norm := r.client.NormalizeInstance(raw)
	name := strings.TrimSpace(norm.Name)
	if name == "" {
		return ErrNoInstanceName
	}

	now := time.Now().UTC()
	row := models.Instance{
		Name:              name,
		Provider:          r.client.Provider(),
		Status:            string(norm.Status),
		Number:            optionalString(norm.Number),
		ProfileName:       optionalString(norm.ProfileName),
		ProfilePictureURL: optionalString(norm.ProfilePictureURL),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if norm.Token != "" {
		encoded, errMarshal := json.Marshal(map[string]any{"token": norm.Token})
		if errMarshal != nil {
			return fmt.Errorf("reconciler: encode settings: %w", errMarshal)
		}
		row.Settings = datatypes.JSON(encoded)
	}

	assignments := map[string]any{
		"status":              row.Status,
		"profile_name":        row.ProfileName,
		"profile_picture_url": row.ProfilePictureURL,
		"updated_at":          now,
	}
	if norm.Number != "" {
		assignments["number"] = norm.Number
	}

	if errUpsert := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("reconciler: upsert %s: %w", name, errUpsert)
	}

	if norm.Token != "" {
		if errToken := r.persistToken(ctx, name, norm.Token); errToken != nil {
			return errToken
		}
	}
	return nil
}

// persistToken merges a freshly issued per-instance token into the stored
// settings blob without discarding other settings keys.
func (r *Reconciler) persistToken(ctx context.Context, name, token string) error {
	var row models.Instance
	if errFind := r.db.WithContext(ctx).Select("id", "settings").Where("name = ?", name).First(&row).Error; errFind != nil {
		return fmt.Errorf("reconciler: load settings for %s: %w", name, errFind)
	}

	settings := map[string]any{}
	if len(row.Settings) > 0 {
		if errDecode := json.Unmarshal(row.Settings, &settings); errDecode != nil {
			settings = map[string]any{}
		}
	}
	if existing, _ := settings["token"].(string); existing == token {
		return nil
	}
	settings["token"] = token

	encoded, errMarshal := json.Marshal(settings)
	if errMarshal != nil {
		return fmt.Errorf("reconciler: encode settings: %w", errMarshal)
	}
	if errUpdate := r.db.WithContext(ctx).Model(&models.Instance{}).
		Where("id = ?", row.ID).
		Update("settings", datatypes.JSON(encoded)).Error; errUpdate != nil {
		return fmt.Errorf("reconciler: persist token for %s: %w", name, errUpdate)
	}
	return nil
}

// SyncAll fetches the vendor's live instance list and reconciles every
// record. A bad record is logged and skipped; the batch continues.
func (r *Reconciler) SyncAll(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("reconciler: not initialized")
	}

	result, errList := r.client.ListInstances(ctx)
	if errList != nil {
		return fmt.Errorf("reconciler: list instances: %w", errList)
	}
	if !result.OK {
		return fmt.Errorf("reconciler: list instances: vendor status %d", result.StatusCode)
	}

	for _, item := range instanceRecords(result.Body) {
		raw, ok := item.(map[string]any)
		if !ok {
			log.Warnf("reconciler: skipping non-object record (%T)", item)
			continue
		}
		if errSync := r.SyncInstance(ctx, raw); errSync != nil {
			if errors.Is(errSync, ErrNoInstanceName) {
				log.Warn("reconciler: skipping record without instance name")
				continue
			}
			log.WithError(errSync).Warn("reconciler: sync record failed")
		}
	}
	return nil
}

// instanceRecords extracts the list of raw records from a vendor list body.
// Evolution returns a bare array; Uazapi may nest it under instances.
func instanceRecords(body any) []any {
	switch typed := body.(type) {
	case []any:
		return typed
	case map[string]any:
		if nested, ok := typed["instances"].([]any); ok {
			return nested
		}
	}
	return nil
}

// UazapiToken returns the stored per-instance token for the named instance,
// empty when none is known.
func (r *Reconciler) UazapiToken(ctx context.Context, name string) (string, error) {
	if r == nil {
		return "", errors.New("reconciler: not initialized")
	}
	return r.tokens.InstanceToken(ctx, name)
}

// Start launches the background reconciliation loop: one sync at startup,
// then one per interval for the process lifetime. The interval is read from
// DB settings on every pass so admin changes apply without a restart.
func (r *Reconciler) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.run(ctx)
	log.Infof("reconciler started (provider=%s)", r.client.Provider())
}

func (r *Reconciler) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if errSync := r.SyncAll(ctx); errSync != nil {
			log.WithError(errSync).Warn("reconciler: background sync failed")
		}
		timer := time.NewTimer(r.resolveInterval())
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (r *Reconciler) resolveInterval() time.Duration {
	seconds := internalsettings.IntValue(internalsettings.SyncIntervalSecondsKey, internalsettings.DefaultSyncIntervalSeconds)
	if seconds <= 0 {
		seconds = internalsettings.DefaultSyncIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}

// TokenStore resolves stored per-instance Uazapi tokens straight from the
// settings blob. It implements gateway.TokenResolver.
type TokenStore struct {
	db *gorm.DB
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(db *gorm.DB) *TokenStore {
	if db == nil {
		return nil
	}
	return &TokenStore{db: db}
}

// InstanceToken implements gateway.TokenResolver. A missing instance or a
// settings blob without a token yields an empty string, not an error: the
// caller falls back to the admin credential.
func (s *TokenStore) InstanceToken(ctx context.Context, name string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("reconciler: token store not initialized")
	}

	var token sql.NullString
	expr := dbutil.JSONExtractTextExpr(s.db, "settings", "token")
	errScan := s.db.WithContext(ctx).
		Model(&models.Instance{}).
		Select(expr).
		Where("name = ?", name).
		Limit(1).
		Scan(&token).Error
	if errScan != nil {
		return "", fmt.Errorf("reconciler: read token for %s: %w", name, errScan)
	}
	if !token.Valid {
		return "", nil
	}
	return strings.TrimSpace(token.String), nil
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
